package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Checkout     CheckoutConfig
	Telegram     TelegramConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.App.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"STOREFRONT_CORS_ORIGINS"`
	// MetricsPort serves /metrics from background workers. Empty disables it.
	MetricsPort string `envconfig:"STOREFRONT_METRICS_PORT"`
}

func (a *AppConfig) normalize() error {
	a.LogFormat = strings.ToLower(strings.TrimSpace(a.LogFormat))
	switch a.LogFormat {
	case "":
		a.LogFormat = LogFormatJSON
	case LogFormatJSON, LogFormatConsole:
	default:
		return fmt.Errorf("%s must be %s or %s, got %q", EnvLogFormat, LogFormatJSON, LogFormatConsole, a.LogFormat)
	}
	return nil
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STOREFRONT_DB_HOST"`
	Port     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	User     string `envconfig:"STOREFRONT_DB_USER"`
	Password string `envconfig:"STOREFRONT_DB_PASSWORD"`
	Name     string `envconfig:"STOREFRONT_DB_NAME"`
	SSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"STOREFRONT_SQLITE_PATH" default:"storefront.db"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery logs statements slower than this at warn level; zero disables it.
	SlowQuery time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
	// Namespace prefixes every key so several environments can share one instance.
	Namespace string `envconfig:"STOREFRONT_REDIS_NAMESPACE" default:"sf"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"STOREFRONT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"24h"`
	OutboxRetention time.Duration `envconfig:"STOREFRONT_CRON_OUTBOX_RETENTION" default:"720h"`
	DLQRetention    time.Duration `envconfig:"STOREFRONT_CRON_DLQ_RETENTION" default:"2160h"`
	CartIdleTTL     time.Duration `envconfig:"STOREFRONT_CRON_CART_IDLE_TTL" default:"720h"`
	// JobTimeout bounds a single job run; zero means no bound.
	JobTimeout time.Duration `envconfig:"STOREFRONT_CRON_JOB_TIMEOUT" default:"15m"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-order-events"`
	OrdersSubscription string `envconfig:"STOREFRONT_PUBSUB_ORDERS_SUBSCRIPTION" default:"storefront-order-notifications"`
	// Ordering keys messages by order ID; the subscription must have ordering enabled too.
	Ordering bool `envconfig:"STOREFRONT_PUBSUB_ORDERING" default:"false"`
	// MaxOutstanding caps unacked messages held by the subscriber.
	MaxOutstanding int `envconfig:"STOREFRONT_PUBSUB_MAX_OUTSTANDING" default:"100"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CheckoutConfig holds the wizard timings. The payment delays drive the simulated gateway.
type CheckoutConfig struct {
	CardSettleDelay   time.Duration `envconfig:"STOREFRONT_CHECKOUT_CARD_DELAY" default:"3s"`
	WalletSettleDelay time.Duration `envconfig:"STOREFRONT_CHECKOUT_WALLET_DELAY" default:"2s"`
	SuccessResetDelay time.Duration `envconfig:"STOREFRONT_CHECKOUT_RESET_DELAY" default:"3s"`
	GatewayTimeout    time.Duration `envconfig:"STOREFRONT_CHECKOUT_GATEWAY_TIMEOUT" default:"30s"`
	SessionTTL        time.Duration `envconfig:"STOREFRONT_CHECKOUT_SESSION_TTL" default:"2h"`
	SessionStore      string        `envconfig:"STOREFRONT_CHECKOUT_SESSION_STORE" default:"redis"`
	PromoWindow       time.Duration `envconfig:"STOREFRONT_CHECKOUT_PROMO_WINDOW" default:"1m"`
	PromoLimit        int           `envconfig:"STOREFRONT_CHECKOUT_PROMO_LIMIT" default:"10"`
}

// UsesRedisSessions reports whether checkout sessions should be kept in Redis.
func (c CheckoutConfig) UsesRedisSessions() bool {
	return !strings.EqualFold(strings.TrimSpace(c.SessionStore), SessionStoreMemory)
}

type TelegramConfig struct {
	BotToken    string        `envconfig:"STOREFRONT_TELEGRAM_BOT_TOKEN"`
	ChatID      string        `envconfig:"STOREFRONT_TELEGRAM_CHAT_ID"`
	BaseURL     string        `envconfig:"STOREFRONT_TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
	Timeout     time.Duration `envconfig:"STOREFRONT_TELEGRAM_TIMEOUT" default:"10s"`
	MaxAttempts int           `envconfig:"STOREFRONT_TELEGRAM_MAX_ATTEMPTS" default:"1"`
}

// Enabled reports whether both the bot token and target chat are configured.
func (t TelegramConfig) Enabled() bool {
	return strings.TrimSpace(t.BotToken) != "" && strings.TrimSpace(t.ChatID) != ""
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DBDriverSQLite
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
