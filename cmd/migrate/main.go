// Command migrate applies or rolls back the gateway's PostgreSQL schema.
package main

import (
	"errors"
	"flag"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"go.uber.org/zap"

	"github.com/cory-johannsen/shardgate/internal/config"
	"github.com/cory-johannsen/shardgate/internal/observability"
	"github.com/cory-johannsen/shardgate/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	direction := flag.String("direction", "up", "up, down, or version")
	steps := flag.Int("steps", 0, "limit the migration to this many steps (0 = all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	m, err := postgres.NewMigrator(cfg.Database.DSN())
	if err != nil {
		logger.Fatal("opening migrator", zap.Error(err))
	}
	defer m.Close()

	start := time.Now()
	switch *direction {
	case "up":
		err = migrateBy(m, *steps, m.Up)
	case "down":
		err = migrateBy(m, -*steps, m.Down)
	case "version":
	default:
		logger.Fatal("unknown direction", zap.String("direction", *direction))
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("schema already current")
		err = nil
	}
	if err != nil {
		logger.Fatal("migration failed", zap.String("direction", *direction), zap.Error(err))
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Fatal("reading schema version", zap.Error(err))
	}
	logger.Info("schema version",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// migrateBy moves n steps when n is non-zero, otherwise runs all.
func migrateBy(m *migrate.Migrate, n int, all func() error) error {
	if n != 0 {
		return m.Steps(n)
	}
	return all()
}
