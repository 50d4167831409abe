// Package app assembles the gateway's service graph.
package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/shardgate/internal/config"
	"github.com/cory-johannsen/shardgate/internal/server"
)

// App is the assembled gateway.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Lifecycle *server.Lifecycle
}

// Run serves until a signal, ctx cancellation, or a service failure.
func (a *App) Run(ctx context.Context) error {
	a.Logger.Info("gateway starting",
		zap.String("http_addr", a.Config.Server.Addr()),
		zap.Bool("tls", a.Config.Server.TLSEnabled()),
		zap.String("health_addr", a.Config.Health.Addr()),
	)
	return a.Lifecycle.Run(ctx)
}
