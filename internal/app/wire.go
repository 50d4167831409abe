//go:build wireinject

package app

import (
	"context"

	"github.com/google/wire"

	"github.com/cory-johannsen/shardgate/internal/config"
)

// Initialize builds the gateway from cfg. The returned cleanup closes the
// backing store connections and flushes the logger.
func Initialize(ctx context.Context, cfg config.Config) (*App, func(), error) {
	wire.Build(
		ProviderSet,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}
