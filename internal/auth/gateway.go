// Package auth implements the credential gateway: player and shard logins
// that issue sessions, and shard-side re-verification of players.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/shardgate/internal/gateerr"
	"github.com/cory-johannsen/shardgate/internal/session"
	"github.com/cory-johannsen/shardgate/internal/shard"
	"github.com/cory-johannsen/shardgate/internal/storage/postgres"
)

// PlayerStore verifies player credentials.
type PlayerStore interface {
	Authenticate(ctx context.Context, username, password string) (postgres.Player, error)
}

// ShardLookup resolves a level name to its shard descriptor.
type ShardLookup interface {
	Lookup(level string) (shard.Descriptor, bool)
}

// SessionIssuer mints sessions.
type SessionIssuer interface {
	Issue(kind session.Kind, name string) session.Session
}

// LoginResult is the outcome of a credential check. A rejected login is a
// result with Authorized=false, never an error.
type LoginResult struct {
	Authorized bool
	Session    session.Session
	// Secret is the player's ephemeral secret; empty for shard logins.
	Secret string
}

// Gateway verifies player and shard credentials and issues sessions.
type Gateway struct {
	players  PlayerStore
	shards   ShardLookup
	sessions SessionIssuer
	secrets  *SecretStore
	logger   *zap.Logger
}

// NewGateway creates a Gateway.
//
// Precondition: all arguments must be non-nil.
func NewGateway(players PlayerStore, shards ShardLookup, sessions SessionIssuer, secrets *SecretStore, logger *zap.Logger) *Gateway {
	return &Gateway{
		players:  players,
		shards:   shards,
		sessions: sessions,
		secrets:  secrets,
		logger:   logger,
	}
}

// LoginPlayer checks a player's credentials. On success it issues a player
// session and mints a new ephemeral secret, invalidating the previous one.
//
// Postcondition: Returns Authorized=false for an unknown user or wrong
// password with no state created; ErrProtocol for empty input; and
// ErrStoreUnavailable when the credential check itself failed.
func (g *Gateway) LoginPlayer(ctx context.Context, username, password string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, gateerr.Protocolf("username and password are required")
	}

	_, err := g.players.Authenticate(ctx, username, password)
	switch {
	case errors.Is(err, postgres.ErrPlayerNotFound), errors.Is(err, postgres.ErrInvalidCredentials):
		g.logger.Info("player login rejected", zap.String("username", username))
		return LoginResult{}, nil
	case err != nil:
		g.logger.Error("player credential check failed", zap.String("username", username), zap.Error(err))
		return LoginResult{}, gateerr.Store("authenticating player", err)
	}

	secret, err := g.secrets.Mint(username)
	if err != nil {
		g.logger.Error("minting player secret", zap.String("username", username), zap.Error(err))
		return LoginResult{}, gateerr.Store("minting secret", err)
	}
	s := g.sessions.Issue(session.KindPlayer, username)

	g.logger.Info("player logged in", zap.String("username", username))
	return LoginResult{Authorized: true, Session: s, Secret: secret}, nil
}

// LoginShard authorizes a shard for level iff a descriptor is registered for
// it and its key matches.
//
// Postcondition: Returns Authorized=false for an unknown level or wrong key;
// ErrProtocol for empty input.
func (g *Gateway) LoginShard(level, key string) (LoginResult, error) {
	if level == "" || key == "" {
		return LoginResult{}, gateerr.Protocolf("level and key are required")
	}

	desc, ok := g.shards.Lookup(level)
	if !ok || subtle.ConstantTimeCompare([]byte(desc.Key), []byte(key)) != 1 {
		g.logger.Warn("shard login rejected", zap.String("level", level))
		return LoginResult{}, nil
	}

	s := g.sessions.Issue(session.KindShard, level)
	g.logger.Info("shard logged in", zap.String("level", level))
	return LoginResult{Authorized: true, Session: s}, nil
}

// VerifyPlayerSecret reports whether secret is the current ephemeral secret
// of username. The caller must already hold a shard session.
func (g *Gateway) VerifyPlayerSecret(username, secret string) bool {
	ok := g.secrets.Verify(username, secret)
	if !ok {
		g.logger.Debug("player secret rejected", zap.String("username", username))
	}
	return ok
}
