// Package routing resolves a player's character to the shard simulating it
// and manages the player-facing character roster.
package routing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/shardgate/internal/game/character"
	"github.com/cory-johannsen/shardgate/internal/gateerr"
	"github.com/cory-johannsen/shardgate/internal/shard"
	"github.com/cory-johannsen/shardgate/internal/storage/postgres"
)

// ErrShardNotRegistered is returned when a character's level has no shard in
// the directory. It matches gateerr.ErrNotFound but is distinct from
// ErrCharacterNotFound.
var ErrShardNotRegistered = fmt.Errorf("shard not registered: %w", gateerr.ErrNotFound)

// ErrCharacterNotFound is returned when a named character does not exist.
var ErrCharacterNotFound = fmt.Errorf("character not found: %w", gateerr.ErrNotFound)

// CharacterStore defines the character persistence operations the router and
// roster require.
type CharacterStore interface {
	GetByName(ctx context.Context, name string) (*character.Character, error)
	Create(ctx context.Context, c *character.Character) (*character.Character, error)
	ListByOwner(ctx context.Context, owner string) ([]*character.Character, error)
	CountByOwner(ctx context.Context, owner string) (int, error)
	Update(ctx context.Context, c *character.Character) error
}

// ShardLookup resolves a level name to its shard descriptor.
type ShardLookup interface {
	Lookup(level string) (shard.Descriptor, bool)
}

// Destination is where a player connects to simulate a character.
type Destination struct {
	Level   string
	Address string
	Port    int
}

// Router hands characters off to their shard.
type Router struct {
	characters CharacterStore
	shards     ShardLookup
	logger     *zap.Logger
}

// NewRouter creates a Router.
//
// Precondition: all arguments must be non-nil.
func NewRouter(characters CharacterStore, shards ShardLookup, logger *zap.Logger) *Router {
	return &Router{characters: characters, shards: shards, logger: logger}
}

// ResolveOrCreate finds the named character, creating it for player at the
// starter level and position when absent, and returns the coordinates of the
// shard simulating its level.
//
// Postcondition: Returns ErrConflict if a concurrent create claimed the name,
// ErrStoreUnavailable on any other store failure, and ErrShardNotRegistered
// if the level has no shard. An existing character is never overwritten.
func (r *Router) ResolveOrCreate(ctx context.Context, player, name, starterLevel string, starterPos character.Position) (Destination, error) {
	level, err := r.resolveLevel(ctx, player, name, starterLevel, starterPos)
	if err != nil {
		return Destination{}, err
	}

	desc, ok := r.shards.Lookup(level)
	if !ok {
		r.logger.Warn("no shard registered for level",
			zap.String("character", name),
			zap.String("level", level),
		)
		return Destination{}, fmt.Errorf("level %q: %w", level, ErrShardNotRegistered)
	}
	return Destination{Level: level, Address: desc.Address, Port: desc.Port}, nil
}

func (r *Router) resolveLevel(ctx context.Context, player, name, starterLevel string, starterPos character.Position) (string, error) {
	c, err := r.characters.GetByName(ctx, name)
	if err == nil {
		return c.Level, nil
	}
	if !errors.Is(err, postgres.ErrCharacterNotFound) {
		r.logger.Error("loading character", zap.String("character", name), zap.Error(err))
		return "", gateerr.Store("loading character", err)
	}

	created, err := r.characters.Create(ctx, character.New(name, player, starterLevel, starterPos))
	switch {
	case errors.Is(err, postgres.ErrCharacterNameTaken):
		return "", fmt.Errorf("character %q: %w", name, gateerr.ErrConflict)
	case err != nil:
		r.logger.Error("creating character", zap.String("character", name), zap.Error(err))
		return "", gateerr.Store("creating character", err)
	}

	r.logger.Info("character created",
		zap.String("character", created.Name),
		zap.String("owner", player),
		zap.String("level", created.Level),
	)
	return created.Level, nil
}

// Coordinates returns the shard coordinates registered for level.
//
// Postcondition: Returns ErrShardNotRegistered if the level is unknown.
func (r *Router) Coordinates(level string) (Destination, error) {
	desc, ok := r.shards.Lookup(level)
	if !ok {
		return Destination{}, fmt.Errorf("level %q: %w", level, ErrShardNotRegistered)
	}
	return Destination{Level: level, Address: desc.Address, Port: desc.Port}, nil
}
