// Package config provides Viper-based configuration loading for the gateway.
package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the request/response and websocket listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// TLSCert is the path to the PEM certificate. Empty disables TLS.
	TLSCert string `mapstructure:"tls_cert"`
	// TLSKey is the path to the PEM private key. Required when TLSCert is set.
	TLSKey       string        `mapstructure:"tls_key"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TLSEnabled reports whether both certificate and key paths are configured.
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCert != "" && s.TLSKey != ""
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a PostgreSQL URL with the credentials escaped.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// RedisConfig holds the level metadata cache connection settings.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g. redis://localhost:6379/0).
	URL          string `mapstructure:"url"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// GameConfig holds character seeding and shard directory settings.
type GameConfig struct {
	// StarterLevel is the level new characters are created in.
	StarterLevel string  `mapstructure:"starter_level"`
	StarterX     float64 `mapstructure:"starter_x"`
	StarterY     float64 `mapstructure:"starter_y"`
	// CharacterCap is the maximum number of characters per player.
	CharacterCap int `mapstructure:"character_cap"`
	// LevelsFile is the YAML shard list applied at startup. Empty means the
	// directory is loaded from the database instead.
	LevelsFile string `mapstructure:"levels_file"`
}

// SessionConfig holds session issuance and live connection settings.
type SessionConfig struct {
	// TTL is the session lifetime. Sessions are in-memory, so it must be
	// positive to keep the registry bounded.
	TTL time.Duration `mapstructure:"ttl"`
	// SweepInterval is how often expired sessions are revoked.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// CookieName is the cookie carrying the session token.
	CookieName string `mapstructure:"cookie_name"`
	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int `mapstructure:"send_buffer"`
	// WriteTimeout bounds a single websocket frame write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ReadLimit is the maximum inbound websocket message size in bytes.
	ReadLimit int64 `mapstructure:"read_limit"`
}

// HealthConfig holds the gRPC health service settings.
type HealthConfig struct {
	GRPCHost string        `mapstructure:"grpc_host"`
	GRPCPort int           `mapstructure:"grpc_port"`
	Interval time.Duration `mapstructure:"interval"`
}

// Addr returns the "host:port" gRPC address.
func (h HealthConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.GRPCHost, h.GRPCPort)
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Game     GameConfig     `mapstructure:"game"`
	Session  SessionConfig  `mapstructure:"session"`
	Health   HealthConfig   `mapstructure:"health"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var v violations
	v.server(c.Server)
	v.database(c.Database)
	v.redis(c.Redis)
	v.logging(c.Logging)
	v.game(c.Game)
	v.session(c.Session)
	v.health(c.Health)
	if len(v) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed: %s", strings.Join(v, "; "))
}

// violations collects every failed check so one Load reports them all.
type violations []string

func (v *violations) check(ok bool, format string, args ...any) {
	if !ok {
		*v = append(*v, fmt.Sprintf(format, args...))
	}
}

func (v *violations) port(key string, port int) {
	v.check(port >= 1 && port <= 65535, "%s must be 1-65535, got %d", key, port)
}

func (v *violations) oneOf(key, got string, allowed ...string) {
	v.check(slices.Contains(allowed, got), "%s must be one of [%s], got %q", key, strings.Join(allowed, ", "), got)
}

func (v *violations) server(s ServerConfig) {
	v.port("server.port", s.Port)
	v.check((s.TLSCert == "") == (s.TLSKey == ""), "server.tls_cert and server.tls_key must be set together")
	v.check(s.ReadTimeout >= 0, "server.read_timeout must not be negative")
	v.check(s.WriteTimeout >= 0, "server.write_timeout must not be negative")
}

func (v *violations) database(d DatabaseConfig) {
	v.check(d.Host != "", "database.host must not be empty")
	v.port("database.port", d.Port)
	v.check(d.User != "", "database.user must not be empty")
	v.check(d.Name != "", "database.name must not be empty")
	v.oneOf("database.sslmode", d.SSLMode, "disable", "require", "verify-ca", "verify-full")
	v.check(d.MaxConns >= 1, "database.max_conns must be >= 1, got %d", d.MaxConns)
	v.check(d.MinConns >= 0, "database.min_conns must be >= 0, got %d", d.MinConns)
	v.check(d.MinConns <= d.MaxConns, "database.min_conns must not exceed database.max_conns")
}

func (v *violations) redis(r RedisConfig) {
	v.check(r.URL != "", "redis.url must not be empty")
	v.check(r.PoolSize >= 1, "redis.pool_size must be >= 1, got %d", r.PoolSize)
}

func (v *violations) logging(l LoggingConfig) {
	v.oneOf("logging.level", l.Level, "debug", "info", "warn", "error")
	v.oneOf("logging.format", l.Format, "json", "console")
}

func (v *violations) game(g GameConfig) {
	v.check(g.StarterLevel != "", "game.starter_level must not be empty")
	v.check(g.CharacterCap >= 1, "game.character_cap must be >= 1, got %d", g.CharacterCap)
}

func (v *violations) session(s SessionConfig) {
	v.check(s.TTL > 0, "session.ttl must be positive")
	v.check(s.SweepInterval > 0, "session.sweep_interval must be positive")
	v.check(s.CookieName != "", "session.cookie_name must not be empty")
	v.check(s.SendBuffer >= 1, "session.send_buffer must be >= 1, got %d", s.SendBuffer)
	v.check(s.WriteTimeout > 0, "session.write_timeout must be positive")
	v.check(s.ReadLimit >= 1, "session.read_limit must be >= 1, got %d", s.ReadLimit)
}

func (v *violations) health(h HealthConfig) {
	v.check(h.GRPCHost != "", "health.grpc_host must not be empty")
	v.port("health.grpc_port", h.GRPCPort)
	v.check(h.Interval > 0, "health.interval must be positive")
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with GATEWAY_ prefix
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance populated only with default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "gateway")
	v.SetDefault("database.password", "gateway")
	v.SetDefault("database.name", "gateway")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("game.starter_level", "Grassland")
	v.SetDefault("game.starter_x", 128)
	v.SetDefault("game.starter_y", 128)
	v.SetDefault("game.character_cap", 5)

	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.sweep_interval", "1m")
	v.SetDefault("session.cookie_name", "session")
	v.SetDefault("session.send_buffer", 64)
	v.SetDefault("session.write_timeout", "10s")
	v.SetDefault("session.read_limit", 64*1024)

	v.SetDefault("health.grpc_host", "127.0.0.1")
	v.SetDefault("health.grpc_port", 50061)
	v.SetDefault("health.interval", "30s")
}
