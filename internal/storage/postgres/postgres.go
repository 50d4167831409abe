// Package postgres stores players, characters, and the shard list in
// PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/shardgate/internal/config"
)

// uniqueViolation is the SQLSTATE of a unique constraint violation.
const uniqueViolation = "23505"

// connectTimeout bounds the initial ping in NewPool.
const connectTimeout = 10 * time.Second

// Pool owns the gateway's connection pool.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool opens a pool and verifies the database answers. Query traces go to
// logger: every query at debug level when debug is enabled, otherwise only
// failures.
//
// Precondition: cfg must pass config validation; logger must be non-nil.
// Postcondition: Returns a pool that answered a ping, or a non-nil error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.Tracer = queryTracer(logger)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Pool{pool: pool}, nil
}

// queryTracer adapts pgx trace logging to zap.
func queryTracer(logger *zap.Logger) *tracelog.TraceLog {
	level := tracelog.LogLevelError
	if logger.Core().Enabled(zapcore.DebugLevel) {
		level = tracelog.LogLevelDebug
	}
	return &tracelog.TraceLog{
		LogLevel: level,
		Logger: tracelog.LoggerFunc(func(_ context.Context, lvl tracelog.LogLevel, msg string, data map[string]any) {
			fields := make([]zap.Field, 0, len(data))
			for k, v := range data {
				fields = append(fields, zap.Any(k, v))
			}
			switch {
			case lvl <= tracelog.LogLevelError:
				logger.Error(msg, fields...)
			case lvl == tracelog.LogLevelWarn:
				logger.Warn(msg, fields...)
			default:
				logger.Debug(msg, fields...)
			}
		}),
	}
}

// Ping reports whether the database answers before ctx is done.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases every connection. The pool is unusable afterwards.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the pgx pool the repositories query through.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}

// isDuplicateKeyError reports whether err is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
