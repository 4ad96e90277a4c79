package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/jmorland/securepay-backend/internal/infrastructure/config"
)

func main() {
	var (
		action = flag.String("action", "up", "Migration action: up, down, version")
		source = flag.String("source", "file://migrations", "Migration source URL")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// golang-migrate selects its driver by URL scheme.
	url := strings.Replace(cfg.Database.URL, "postgres://", "pgx5://", 1)

	m, err := migrate.New(*source, url)
	if err != nil {
		logger.Error("failed to initialize migrator", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	switch *action {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "version":
		var version uint
		var dirty bool
		version, dirty, err = m.Version()
		if err == nil {
			logger.Info("migration status", "version", version, "dirty", dirty)
		}
	default:
		logger.Error("unknown action", "action", *action)
		os.Exit(1)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no pending migrations")
		return
	}
	if err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
	logger.Info("migration complete", "action", *action)
}
