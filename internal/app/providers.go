package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/cory-johannsen/shardgate/internal/api"
	"github.com/cory-johannsen/shardgate/internal/auth"
	"github.com/cory-johannsen/shardgate/internal/chat"
	"github.com/cory-johannsen/shardgate/internal/config"
	"github.com/cory-johannsen/shardgate/internal/frontend/handlers"
	"github.com/cory-johannsen/shardgate/internal/frontend/ws"
	"github.com/cory-johannsen/shardgate/internal/game/character"
	"github.com/cory-johannsen/shardgate/internal/health"
	"github.com/cory-johannsen/shardgate/internal/levelmeta"
	"github.com/cory-johannsen/shardgate/internal/observability"
	"github.com/cory-johannsen/shardgate/internal/routing"
	"github.com/cory-johannsen/shardgate/internal/server"
	"github.com/cory-johannsen/shardgate/internal/session"
	"github.com/cory-johannsen/shardgate/internal/shard"
	"github.com/cory-johannsen/shardgate/internal/storage/postgres"
)

const (
	// shutdownTimeout bounds the HTTP server's graceful shutdown.
	shutdownTimeout = 10 * time.Second
	// pingTimeout bounds the PostgreSQL health probe.
	pingTimeout = 5 * time.Second
)

// ProviderSet is every constructor the gateway injector draws on.
var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvidePool,
	ProvideDB,
	postgres.NewPlayerRepository,
	postgres.NewCharacterRepository,
	postgres.NewLevelRepository,
	ProvideDirectory,
	ProvideRegistry,
	auth.NewSecretStore,
	ProvideGateway,
	ProvideRouter,
	ProvideRoster,
	ProvideRelay,
	ProvideLevelMetadata,
	ProvideDispatcher,
	ProvideGuard,
	ProvideHealth,
	ProvideAPI,
	ProvideHTTPServer,
	ProvideGRPCServer,
	ProvideLifecycle,
)

// ProvideLogger builds the root logger.
func ProvideLogger(cfg config.Config) (*zap.Logger, func(), error) {
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	return logger, func() { _ = logger.Sync() }, nil
}

// ProvidePool connects to PostgreSQL.
func ProvidePool(ctx context.Context, cfg config.Config, logger *zap.Logger) (*postgres.Pool, func(), error) {
	start := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database, observability.Component(logger, "postgres"))
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(start)),
	)
	return pool, pool.Close, nil
}

// ProvideDB exposes the underlying pgx pool to the repositories.
func ProvideDB(pool *postgres.Pool) *pgxpool.Pool {
	return pool.DB()
}

// levelStore persists the shard list.
type levelStore interface {
	ReplaceAll(ctx context.Context, descriptors []shard.Descriptor) error
	List(ctx context.Context) ([]shard.Descriptor, error)
}

// ProvideDirectory builds the shard directory from the configured levels file
// or, when none is configured, from the levels table.
func ProvideDirectory(ctx context.Context, cfg config.Config, levels *postgres.LevelRepository, logger *zap.Logger) (*shard.Directory, error) {
	return loadDirectory(ctx, cfg.Game, levels, observability.Component(logger, "shards"))
}

// loadDirectory persists the levels file, replacing every stored level, then
// publishes the list. Without a file the stored list is published as is.
//
// Postcondition: The returned directory holds exactly the applied list.
func loadDirectory(ctx context.Context, game config.GameConfig, levels levelStore, logger *zap.Logger) (*shard.Directory, error) {
	var (
		descriptors []shard.Descriptor
		err         error
		source      string
	)
	if game.LevelsFile != "" {
		source = game.LevelsFile
		descriptors, err = shard.LoadFile(game.LevelsFile)
		if err != nil {
			return nil, err
		}
		if err := levels.ReplaceAll(ctx, descriptors); err != nil {
			return nil, fmt.Errorf("persisting shard list: %w", err)
		}
	} else {
		source = "database"
		descriptors, err = levels.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading shard list: %w", err)
		}
	}

	dir := shard.NewDirectory()
	if err := dir.Reload(descriptors); err != nil {
		return nil, fmt.Errorf("publishing shard list: %w", err)
	}
	if _, ok := dir.Lookup(game.StarterLevel); !ok {
		logger.Warn("starter level has no registered shard", zap.String("level", game.StarterLevel))
	}
	logger.Info("shard directory loaded",
		zap.String("source", source),
		zap.Strings("levels", dir.Levels()),
	)
	return dir, nil
}

// ProvideRegistry builds the session registry.
func ProvideRegistry(cfg config.Config, logger *zap.Logger) *session.Registry {
	return session.NewRegistry(cfg.Session.TTL, observability.Component(logger, "sessions"))
}

// ProvideGateway builds the credential gateway.
func ProvideGateway(players *postgres.PlayerRepository, dir *shard.Directory, reg *session.Registry, secrets *auth.SecretStore, logger *zap.Logger) *auth.Gateway {
	return auth.NewGateway(players, dir, reg, secrets, observability.Component(logger, "auth"))
}

// ProvideRouter builds the character router.
func ProvideRouter(characters *postgres.CharacterRepository, dir *shard.Directory, logger *zap.Logger) *routing.Router {
	return routing.NewRouter(characters, dir, observability.Component(logger, "routing"))
}

// ProvideRoster builds the character roster.
func ProvideRoster(cfg config.Config, characters *postgres.CharacterRepository, logger *zap.Logger) *routing.Roster {
	return routing.NewRoster(characters, cfg.Game.CharacterCap, cfg.Game.StarterLevel,
		character.Position{X: cfg.Game.StarterX, Y: cfg.Game.StarterY},
		observability.Component(logger, "roster"))
}

// ProvideRelay builds the chat relay.
func ProvideRelay(reg *session.Registry, logger *zap.Logger) *chat.Relay {
	return chat.NewRelay(reg, observability.Component(logger, "chat"))
}

// ProvideLevelMetadata connects the level metadata cache.
func ProvideLevelMetadata(ctx context.Context, cfg config.Config, logger *zap.Logger) (*levelmeta.Store, func(), error) {
	store, err := levelmeta.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	logger.Info("redis connected")
	return store, func() { _ = store.Close() }, nil
}

// ProvideDispatcher builds the persistent-connection message dispatcher.
func ProvideDispatcher(cfg config.Config, gw *auth.Gateway, router *routing.Router, relay *chat.Relay, logger *zap.Logger) *handlers.Dispatcher {
	return handlers.NewDispatcher(gw, router, relay, cfg.Game, observability.Component(logger, "dispatch"))
}

// ProvideGuard builds the websocket upgrade guard.
func ProvideGuard(cfg config.Config, reg *session.Registry, d *handlers.Dispatcher, logger *zap.Logger) *ws.Guard {
	return ws.NewGuard(reg, d, cfg.Session, observability.Component(logger, "ws"))
}

// ProvideHealth builds the health checker with a probe per backing store.
func ProvideHealth(cfg config.Config, pool *postgres.Pool, store *levelmeta.Store, logger *zap.Logger) *health.Checker {
	c := health.NewChecker(cfg.Health.Interval, observability.Component(logger, "health"))
	c.AddProbe("postgres", func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return pool.Ping(pingCtx)
	})
	c.AddProbe("redis", store.Ping)
	return c
}

// ProvideAPI builds the request/response router.
func ProvideAPI(
	cfg config.Config,
	gw *auth.Gateway,
	reg *session.Registry,
	roster *routing.Roster,
	router *routing.Router,
	store *levelmeta.Store,
	checker *health.Checker,
	guard *ws.Guard,
	logger *zap.Logger,
) http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:        observability.Component(logger, "api"),
		Credentials:   gw,
		Sessions:      reg,
		Characters:    roster,
		Coordinates:   router,
		Levels:        store,
		Health:        checker,
		Upgrade:       guard,
		Session:       cfg.Session,
		SecureCookies: cfg.Server.TLSEnabled(),
	})
}

// ProvideHTTPServer builds the HTTP listener for the API and the upgrade route.
func ProvideHTTPServer(cfg config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}

// ProvideGRPCServer builds the gRPC server carrying the health service.
func ProvideGRPCServer(checker *health.Checker) *grpc.Server {
	s := grpc.NewServer()
	checker.Register(s)
	return s
}

// ProvideLifecycle registers every long-running service. Services stop in
// reverse order, so live connections are closed after the HTTP listener
// stops admitting upgrades.
func ProvideLifecycle(
	cfg config.Config,
	httpSrv *http.Server,
	grpcSrv *grpc.Server,
	checker *health.Checker,
	reg *session.Registry,
	logger *zap.Logger,
) *server.Lifecycle {
	lc := server.NewLifecycle(logger)

	lc.Add("connections", connectionsService(reg, logger))

	lc.Add("http", &server.FuncService{
		StartFn: func() error {
			var err error
			if cfg.Server.TLSEnabled() {
				err = httpSrv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
			} else {
				err = httpSrv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		},
		StopFn: func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(ctx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
		},
	})

	lc.Add("grpc-health", &server.FuncService{
		StartFn: func() error {
			lis, err := net.Listen("tcp", cfg.Health.Addr())
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.Health.Addr(), err)
			}
			logger.Info("gRPC health listening", zap.String("addr", lis.Addr().String()))
			return grpcSrv.Serve(lis)
		},
		StopFn: grpcSrv.GracefulStop,
	})

	lc.Add("health-checker", server.NewLoopService(checker.Run))

	lc.Add("session-sweeper", server.NewLoopService(sweepLoop(reg, cfg.Session.SweepInterval)))
	return lc
}

// sweeper revokes expired sessions.
type sweeper interface {
	Sweep() int
}

// sweepLoop returns a loop that sweeps reg every interval until cancelled.
func sweepLoop(reg sweeper, interval time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				reg.Sweep()
			}
		}
	}
}

// liveSet lists live connections.
type liveSet interface {
	AllLive() []session.LiveConnection
}

// connectionsService idles until stopped and then closes every live
// connection. Hijacked websocket connections are invisible to
// http.Server.Shutdown.
func connectionsService(live liveSet, logger *zap.Logger) server.Service {
	stop := make(chan struct{})
	return &server.FuncService{
		StartFn: func() error {
			<-stop
			return nil
		},
		StopFn: func() {
			conns := live.AllLive()
			for _, lc := range conns {
				_ = lc.Conn.Close()
			}
			logger.Info("live connections closed", zap.Int("count", len(conns)))
			close(stop)
		},
	}
}
