package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/fieldreport/pkg/config"
	"github.com/angelmondragon/fieldreport/pkg/db"
	"github.com/angelmondragon/fieldreport/pkg/logger"
	"github.com/angelmondragon/fieldreport/pkg/migrate"
)

const usage = `usage: migrate <command> [flags]

commands against the configured database:
  up | down | reset | status
  version -to YYYYMMDDHHMMSS

commands against the source tree (no config needed):
  create -name "add device column" [-dir path]
  validate [-dir path]
`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(context.Background(), os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	dir := fs.String("dir", migrate.DefaultDir, "migrations source directory")
	name := fs.String("name", "", "migration name")
	to := fs.String("to", "", "target version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch cmd {
	case "create":
		if *name == "" {
			return errors.New("-name is required")
		}
		path, err := migrate.CreateSQLMigration(*dir, *name)
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		if err := migrate.ValidateDir(*dir); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	case "up", "down", "reset", "status", "version":
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
	if cmd == "version" && *to == "" {
		return errors.New("-to is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":     cfg.App.Env,
		"cmd":     cmd,
		"dialect": dbClient.Dialect(),
	})
	logg.Info(ctx, "running migrations")

	if cmd == "version" {
		return migrate.MigrateToVersion(ctx, sqlDB, dbClient.Dialect(), *to)
	}
	return migrate.Run(ctx, sqlDB, dbClient.Dialect(), cmd)
}
