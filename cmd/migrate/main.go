package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/angelmondragon/haulbid-backend/pkg/config"
	"github.com/angelmondragon/haulbid-backend/pkg/db"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
	"github.com/angelmondragon/haulbid-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

type options struct {
	dir     string
	name    string
	version string
}

// offline commands never open a database connection.
var offline = map[string]func(ctx context.Context, opts options) error{
	"create": func(_ context.Context, opts options) error {
		if opts.name == "" {
			return fmt.Errorf("missing -name for create")
		}
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	},
	"validate": func(_ context.Context, opts options) error {
		var err error
		if opts.dir == "" {
			err = migrate.ValidateEmbedded()
		} else {
			err = migrate.ValidateDir(opts.dir)
		}
		if err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	},
}

var online = map[string]func(ctx context.Context, r *migrate.Runner, opts options) error{
	"up": func(ctx context.Context, r *migrate.Runner, _ options) error {
		return r.Up(ctx)
	},
	"down": func(ctx context.Context, r *migrate.Runner, _ options) error {
		return r.Down(ctx)
	},
	"status": func(ctx context.Context, r *migrate.Runner, _ options) error {
		return r.Status(ctx)
	},
	"version": func(ctx context.Context, r *migrate.Runner, opts options) error {
		if opts.version == "" {
			current, err := r.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Println("schema version:", current)
			return nil
		}
		target, err := migrate.ParseVersion(opts.version)
		if err != nil {
			return err
		}
		return r.MigrateTo(ctx, target)
	},
}

func main() {
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: "+commandList())
	var opts options
	flag.StringVar(&opts.dir, "dir", "", "migrations directory on disk (default: embedded set, or "+migrate.DefaultDir+" for create)")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS for -cmd=version; empty prints the current one")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx := logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "dir": opts.dir})

	if run, ok := offline[*cmd]; ok {
		exitOnError(ctx, logg, *cmd, run(ctx, opts))
		return
	}
	run, ok := online[*cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown -cmd value %q (want %s)\n", *cmd, commandList())
		os.Exit(2)
	}

	cfg, err := config.Load()
	exitOnError(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "dir": opts.dir, "env": cfg.App.Env})

	if cfg.App.IsProd() && *cmd == "down" {
		logg.Warn(ctx, "rolling back a migration in prod")
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOnError(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	exitOnError(ctx, logg, "sql database", err)

	runner, err := migrate.NewRunner(sqlDB, opts.dir)
	exitOnError(ctx, logg, "runner", err)

	logg.Info(logg.WithField(ctx, "embedded", runner.Embedded()), "migrate ready")
	if err := run(ctx, runner, opts); err != nil {
		dbClient.Close()
		exitOnError(ctx, logg, *cmd, err)
	}
}

func commandList() string {
	names := make([]string, 0, len(offline)+len(online))
	for name := range offline {
		names = append(names, name)
	}
	for name := range online {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func exitOnError(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("migrate %s failed", step), err)
	os.Exit(1)
}
