// Package main provides the gateway binary: player and shard logins, the
// persistent websocket connection, character hand-off, and chat fan-out.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/shardgate/internal/app"
	"github.com/cory-johannsen/shardgate/internal/config"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	gw, cleanup, err := app.Initialize(ctx, cfg)
	if err != nil {
		log.Fatalf("initializing gateway: %v", err)
	}
	defer cleanup()

	gw.Logger.Info("gateway initialized", zap.Duration("startup", time.Since(start)))

	if err := gw.Run(ctx); err != nil {
		gw.Logger.Error("server error", zap.Error(err))
		cleanup()
		log.Fatalf("gateway stopped: %v", err)
	}
}
