package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/plombea/plombea-backend/pkg/config"
	"github.com/plombea/plombea-backend/pkg/db"
	"github.com/plombea/plombea-backend/pkg/logger"
	"github.com/plombea/plombea-backend/pkg/migrate"
)

type cliArgs struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	var args cliArgs
	flag.StringVar(&args.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&args.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&args.name, "name", "", "migration name (for create)")
	flag.StringVar(&args.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	_ = godotenv.Load()

	// create and validate work on files alone and need no config or database.
	switch args.cmd {
	case "create":
		if args.name == "" {
			fail("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(args.dir, args.name)
		if err != nil {
			fail("failed to create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(args.dir); err != nil {
			fail("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	if err := runDBCommand(args); err != nil {
		fail("%v", err)
	}
}

func runDBCommand(args cliArgs) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": args.cmd,
		"dir": args.dir,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	logg.Info(ctx, "migrate ready")

	switch args.cmd {
	case "up", "down", "status":
		if err := migrate.Run(ctx, sqlDB, args.dir, args.cmd); err != nil {
			return fmt.Errorf("goose %s failed: %w", args.cmd, err)
		}
	case "version":
		if args.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		if err := migrate.MigrateToVersion(ctx, sqlDB, args.dir, args.version); err != nil {
			return fmt.Errorf("goose version migrate failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown -cmd value: %s", args.cmd)
	}
	return nil
}

func fail(format string, fmtArgs ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", fmtArgs...)
	os.Exit(1)
}
