// Package levelmeta caches per-level metadata blobs published by shards.
//
// Each level holds one payload and the content hash the shard computed for it.
// Clients present their last known hash and receive the payload only when it
// has changed.
package levelmeta

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cory-johannsen/shardgate/internal/config"
	"github.com/cory-johannsen/shardgate/internal/gateerr"
)

const keyPrefix = "shardgate"

const (
	fieldHash    = "hash"
	fieldPayload = "payload"
)

// ErrNoMetadata is returned when no metadata was ever published for a level.
var ErrNoMetadata = fmt.Errorf("level metadata: %w", gateerr.ErrNotFound)

// metadataKey returns the Redis key holding a level's hash and payload.
func metadataKey(level string) string {
	return fmt.Sprintf("%s:levelmeta:%s", keyPrefix, level)
}

// Result is the outcome of a Fetch.
type Result struct {
	// Unchanged is true when the caller's known hash matches the stored one;
	// Hash and Payload are then empty.
	Unchanged bool
	Hash      string
	Payload   []byte
}

// Store is a Redis-backed level metadata cache.
type Store struct {
	client *redis.Client
}

// New connects to Redis using cfg.
//
// Postcondition: Returns a Store whose client answered a ping, or an error.
func New(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &Store{client: client}, nil
}

// NewWithClient creates a Store over an existing client.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Publish replaces the metadata of level with payload and its content hash.
//
// Precondition: level and hash must be non-empty.
// Postcondition: Hash and payload are written together in one transaction.
func (s *Store) Publish(ctx context.Context, level, hash string, payload []byte) error {
	if level == "" || hash == "" {
		return gateerr.Protocolf("level and hash are required")
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, metadataKey(level), fieldHash, hash, fieldPayload, payload)
		return nil
	})
	if err != nil {
		return gateerr.Store("publishing level metadata", err)
	}
	return nil
}

// Fetch returns the metadata of level, or Unchanged when knownHash equals
// the stored hash.
//
// Postcondition: Returns ErrNoMetadata when nothing was published for level.
func (s *Store) Fetch(ctx context.Context, level, knownHash string) (Result, error) {
	vals, err := s.client.HMGet(ctx, metadataKey(level), fieldHash, fieldPayload).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Result{}, gateerr.Store("fetching level metadata", err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return Result{}, fmt.Errorf("level %q: %w", level, ErrNoMetadata)
	}

	hash, _ := vals[0].(string)
	if knownHash != "" && knownHash == hash {
		return Result{Unchanged: true}, nil
	}
	payload, _ := vals[1].(string)
	return Result{Hash: hash, Payload: []byte(payload)}, nil
}

// Ping checks that Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
