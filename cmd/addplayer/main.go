// Package main provides a CLI tool for creating player accounts.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/shardgate/internal/config"
	"github.com/cory-johannsen/shardgate/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	username := flag.String("username", "", "player username (required)")
	email := flag.String("email", "", "player email address")
	password := flag.String("password", "", "player password (required)")
	flag.Parse()

	if *username == "" || *password == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database, zap.NewNop())
	if err != nil {
		log.Fatalf("connecting to database: %v", err)
	}
	defer pool.Close()

	repo := postgres.NewPlayerRepository(pool.DB())

	p, err := repo.Create(ctx, *username, *email, *password)
	if errors.Is(err, postgres.ErrPlayerExists) {
		log.Fatalf("player %q already exists", *username)
	}
	if err != nil {
		log.Fatalf("creating player: %v", err)
	}

	fmt.Fprintf(os.Stdout, "created player %s (#%d) [%s]\n", p.Username, p.ID, time.Since(start))
}
