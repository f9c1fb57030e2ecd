package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"

	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

const (
	EnvAppEnv    = "STOREFRONT_APP_ENV"
	EnvPort      = "STOREFRONT_APP_PORT"
	EnvLogLevel  = "STOREFRONT_LOG_LEVEL"
	EnvLogFormat = "STOREFRONT_LOG_FORMAT"

	EnvDBDSN  = "STOREFRONT_DB_DSN"
	EnvDBHost = "STOREFRONT_DB_HOST"
	EnvDBUser = "STOREFRONT_DB_USER"
	EnvDBName = "STOREFRONT_DB_NAME"

	EnvUseSQLite = "STOREFRONT_USE_SQLITE"

	EnvRedisURL       = "STOREFRONT_REDIS_URL"
	EnvRedisNamespace = "STOREFRONT_REDIS_NAMESPACE"

	EnvGCPProjectID      = "STOREFRONT_GCP_PROJECT_ID"
	EnvPubSubOrdersTopic = "STOREFRONT_PUBSUB_ORDERS_TOPIC"
	EnvPubSubOrdersSub   = "STOREFRONT_PUBSUB_ORDERS_SUBSCRIPTION"
	EnvPubSubOrdering    = "STOREFRONT_PUBSUB_ORDERING"

	EnvCheckoutCardDelay      = "STOREFRONT_CHECKOUT_CARD_DELAY"
	EnvCheckoutSessionStore   = "STOREFRONT_CHECKOUT_SESSION_STORE"
	EnvCheckoutGatewayTimeout = "STOREFRONT_CHECKOUT_GATEWAY_TIMEOUT"

	EnvTelegramBotToken = "STOREFRONT_TELEGRAM_BOT_TOKEN"
	EnvTelegramChatID   = "STOREFRONT_TELEGRAM_CHAT_ID"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
