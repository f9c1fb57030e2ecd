package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

var errUsage = errors.New("usage")

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "read migrations from this directory instead of the embedded set")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	_ = godotenv.Load()

	if err := run(context.Background(), opts); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", opts.cmd, err)
		if errors.Is(err, errUsage) {
			flag.Usage()
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Console:     cfg.App.LogFormat == config.LogFormatConsole,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "cmd": opts.cmd, "dir": opts.dir})

	// create and validate only touch files.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return fmt.Errorf("%w: -name is required", errUsage)
		}
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.Create(dir, opts.name, time.Now())
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "path", path), "migration created")
		return nil
	case "validate":
		if err := migrate.Validate(source(opts.dir)); err != nil {
			return err
		}
		logg.Info(ctx, "migrations valid")
		return nil
	case "up", "down", "status", "version":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, opts.cmd)
	}
	if opts.cmd == "version" && opts.version == "" {
		return fmt.Errorf("%w: -version is required", errUsage)
	}

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()

	if client.Driver() == config.DBDriverSQLite {
		if opts.cmd != "up" {
			return fmt.Errorf("%w: only up is supported on sqlite", errUsage)
		}
		if err := migrate.SyncModels(ctx, client); err != nil {
			return err
		}
		logg.Info(ctx, "sqlite schema synced from models")
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	src := source(opts.dir)
	if opts.cmd == "version" {
		err = migrate.To(ctx, sqlDB, src, opts.version)
	} else {
		err = migrate.Run(ctx, sqlDB, src, opts.cmd)
	}
	if err != nil {
		return err
	}
	logg.Info(ctx, "migrate finished")
	return nil
}

func source(dir string) migrate.Source {
	if dir == "" {
		return migrate.Embedded()
	}
	return migrate.FromDir(dir)
}
