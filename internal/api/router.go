// Package api implements the gateway's request/response surface.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cory-johannsen/shardgate/internal/auth"
	"github.com/cory-johannsen/shardgate/internal/config"
	"github.com/cory-johannsen/shardgate/internal/game/character"
	"github.com/cory-johannsen/shardgate/internal/health"
	"github.com/cory-johannsen/shardgate/internal/levelmeta"
	"github.com/cory-johannsen/shardgate/internal/routing"
	"github.com/cory-johannsen/shardgate/internal/session"
)

// Credentials performs logins and player re-verification.
type Credentials interface {
	LoginPlayer(ctx context.Context, username, password string) (auth.LoginResult, error)
	LoginShard(level, key string) (auth.LoginResult, error)
	VerifyPlayerSecret(username, secret string) bool
}

// Sessions resolves and revokes sessions.
type Sessions interface {
	SessionResolver
	Revoke(id string) bool
}

// Characters is the character listing, creation, and shard view.
type Characters interface {
	List(ctx context.Context, player string) ([]character.Summary, error)
	Create(ctx context.Context, player, name string) (character.Summary, error)
	Get(ctx context.Context, name string) (*character.Character, error)
	Update(ctx context.Context, c *character.Character) error
}

// Coordinates resolves a level to its shard address.
type Coordinates interface {
	Coordinates(level string) (routing.Destination, error)
}

// LevelMetadata is the level metadata cache.
type LevelMetadata interface {
	Publish(ctx context.Context, level, hash string, payload []byte) error
	Fetch(ctx context.Context, level, knownHash string) (levelmeta.Result, error)
}

// HealthReporter reports backing store reachability.
type HealthReporter interface {
	Report() health.Report
}

// RouterConfig holds the dependencies of the API router.
type RouterConfig struct {
	Logger      *zap.Logger
	Credentials Credentials
	Sessions    Sessions
	Characters  Characters
	Coordinates Coordinates
	Levels      LevelMetadata
	Health      HealthReporter
	// Upgrade serves GET /ws.
	Upgrade http.Handler
	Session config.SessionConfig
	// SecureCookies marks session cookies Secure; set when serving TLS.
	SecureCookies bool
}

// NewRouter creates the API router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	h := &handler{cfg: cfg}

	// The upgrade route bypasses the API middleware, which would hide the
	// connection hijacker.
	r.Handle("/ws", cfg.Upgrade).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(recovery(cfg.Logger))
	api.Use(accessLog(cfg.Logger))

	api.HandleFunc("/players/login", h.loginPlayer).Methods(http.MethodPost)
	api.HandleFunc("/shards/login", h.loginShard).Methods(http.MethodPost)
	api.HandleFunc("/health", h.health).Methods(http.MethodGet)

	anySession := api.PathPrefix("/logout").Subrouter()
	anySession.Use(requireSession(cfg.Sessions, cfg.Session.CookieName))
	anySession.HandleFunc("", h.logout).Methods(http.MethodPost)

	shardOnly := requireSession(cfg.Sessions, cfg.Session.CookieName, session.KindShard)
	playerOnly := requireSession(cfg.Sessions, cfg.Session.CookieName, session.KindPlayer)

	shards := api.PathPrefix("/shards").Subrouter()
	shards.Use(shardOnly)
	shards.HandleFunc("/verify-player", h.verifyPlayer).Methods(http.MethodPost)
	shards.HandleFunc("/ping", h.ping).Methods(http.MethodGet)

	levels := api.PathPrefix("/levels/{level}").Subrouter()
	levels.Handle("/metadata", shardOnly(http.HandlerFunc(h.publishMetadata))).Methods(http.MethodPut)
	levels.Handle("/metadata", playerOnly(http.HandlerFunc(h.fetchMetadata))).Methods(http.MethodGet)
	levels.Handle("/address", playerOnly(http.HandlerFunc(h.levelAddress))).Methods(http.MethodGet)

	chars := api.PathPrefix("/characters").Subrouter()
	chars.Use(shardOnly)
	chars.HandleFunc("/{name}", h.getCharacter).Methods(http.MethodGet)
	chars.HandleFunc("/{name}", h.updateCharacter).Methods(http.MethodPut)

	me := api.PathPrefix("/me").Subrouter()
	me.Use(playerOnly)
	me.HandleFunc("/characters", h.listCharacters).Methods(http.MethodGet)
	me.HandleFunc("/characters", h.createCharacter).Methods(http.MethodPost)

	return r
}
