// Package session provides session issuance and live connection tracking for
// the gateway.
//
// The Registry is the single source of truth for who is reachable over a live
// connection. It owns both the issued sessions and the binding from a session
// ID to its current connection.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind is the identity kind a session was issued to.
type Kind int

const (
	KindPlayer Kind = iota + 1
	KindShard
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindShard:
		return "shard"
	}
	return "unknown"
}

// ErrUnknownSession is returned when binding to a session that was never
// issued, was revoked, or has expired.
var ErrUnknownSession = errors.New("unknown session")

// Session is a credential issued at login.
type Session struct {
	ID   string
	Kind Kind
	// Name is the player username or the shard level name.
	Name     string
	IssuedAt time.Time
	// ExpiresAt is zero when the session never expires.
	ExpiresAt time.Time
}

// Expired reports whether the session has expired at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Conn is a live connection handle that frames can be sent to.
type Conn interface {
	// Send queues an encoded frame for delivery.
	Send(frame []byte) error
	// Close tears down the connection. It must be safe to call more than once.
	Close() error
}

// LiveConnection is a session bound to a connection.
type LiveConnection struct {
	Session     Session
	Conn        Conn
	ConnectedAt time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the registry's time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry tracks issued sessions and their live connections.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session        // session ID → session
	live     map[string]LiveConnection // session ID → current binding

	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewRegistry creates an empty Registry. A ttl of zero disables expiry.
//
// Precondition: logger must be non-nil; ttl must be >= 0.
func NewRegistry(ttl time.Duration, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]Session),
		live:     make(map[string]LiveConnection),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Issue mints a new session for the given identity.
//
// Precondition: name must be non-empty.
// Postcondition: The returned session is resolvable by Lookup until revoked or expired.
func (r *Registry) Issue(kind Kind, name string) Session {
	now := r.now()
	s := Session{
		ID:       uuid.NewString(),
		Kind:     kind,
		Name:     name,
		IssuedAt: now,
	}
	if r.ttl > 0 {
		s.ExpiresAt = now.Add(r.ttl)
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Debug("session issued",
		zap.String("kind", kind.String()),
		zap.String("name", name),
	)
	return s
}

// Lookup resolves a session ID.
//
// Postcondition: Returns (session, true) for a live, unexpired session, or
// (Session{}, false) otherwise.
func (r *Registry) Lookup(id string) (Session, bool) {
	if id == "" {
		return Session{}, false
	}
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s.Expired(r.now()) {
		return Session{}, false
	}
	return s, true
}

// Revoke destroys a session and closes its live connection, if any.
//
// Postcondition: Returns true if the session existed.
func (r *Registry) Revoke(id string) bool {
	r.mu.Lock()
	_, existed := r.sessions[id]
	lc, bound := r.live[id]
	delete(r.sessions, id)
	delete(r.live, id)
	r.mu.Unlock()

	if bound {
		_ = lc.Conn.Close()
	}
	return existed
}

// Bind registers conn as the live connection for session id. If the session
// already has a live connection, that connection is superseded: it is removed
// from the registry and closed, so exactly one connection is ever reachable
// per session.
//
// Precondition: conn must be non-nil.
// Postcondition: Returns the superseded connection (nil if none), or
// ErrUnknownSession if id does not resolve.
func (r *Registry) Bind(id string, conn Conn) (Conn, error) {
	now := r.now()

	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok || s.Expired(now) {
		r.mu.Unlock()
		return nil, ErrUnknownSession
	}
	prev, hadPrev := r.live[id]
	r.live[id] = LiveConnection{Session: s, Conn: conn, ConnectedAt: now}
	r.mu.Unlock()

	if hadPrev && prev.Conn != conn {
		r.logger.Info("live connection superseded",
			zap.String("kind", s.Kind.String()),
			zap.String("name", s.Name),
		)
		_ = prev.Conn.Close()
		return prev.Conn, nil
	}
	return nil, nil
}

// Rebind moves conn from session prevID to session nextID in one step, so no
// snapshot ever sees conn under both. A live connection already bound to
// nextID is superseded and closed as in Bind. The abandoned prevID session is
// revoked unless another connection has since taken it over.
//
// Precondition: conn must be non-nil.
// Postcondition: Returns the superseded connection (nil if none), or
// ErrUnknownSession with every binding unchanged if nextID does not resolve.
func (r *Registry) Rebind(prevID, nextID string, conn Conn) (Conn, error) {
	if prevID == nextID {
		return r.Bind(nextID, conn)
	}
	now := r.now()

	r.mu.Lock()
	s, ok := r.sessions[nextID]
	if !ok || s.Expired(now) {
		r.mu.Unlock()
		return nil, ErrUnknownSession
	}
	prev, hadPrev := r.live[nextID]
	r.live[nextID] = LiveConnection{Session: s, Conn: conn, ConnectedAt: now}
	if lc, bound := r.live[prevID]; !bound || lc.Conn == conn {
		delete(r.live, prevID)
		delete(r.sessions, prevID)
	}
	r.mu.Unlock()

	if hadPrev && prev.Conn != conn {
		r.logger.Info("live connection superseded",
			zap.String("kind", s.Kind.String()),
			zap.String("name", s.Name),
		)
		_ = prev.Conn.Close()
		return prev.Conn, nil
	}
	return nil, nil
}

// Unbind removes the binding of conn to session id. It is a no-op when the
// session has no binding or is bound to a different connection, so a close
// racing with a takeover never removes the newer binding.
//
// Postcondition: Returns true if a binding was removed.
func (r *Registry) Unbind(id string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	lc, ok := r.live[id]
	if !ok || lc.Conn != conn {
		return false
	}
	delete(r.live, id)
	return true
}

// Live returns the current binding for session id.
func (r *Registry) Live(id string) (LiveConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lc, ok := r.live[id]
	return lc, ok
}

// AllLive returns a point-in-time snapshot of every live connection.
//
// Postcondition: The returned slice is owned by the caller; later binds and
// unbinds do not affect it.
func (r *Registry) AllLive() []LiveConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]LiveConnection, 0, len(r.live))
	for _, lc := range r.live {
		out = append(out, lc)
	}
	return out
}

// ByIdentity returns the live connections of every session issued to the
// given identity.
func (r *Registry) ByIdentity(kind Kind, name string) []LiveConnection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []LiveConnection
	for _, lc := range r.live {
		if lc.Session.Kind == kind && lc.Session.Name == name {
			out = append(out, lc)
		}
	}
	return out
}

// ByUsername returns the live connections of a player.
func (r *Registry) ByUsername(username string) []LiveConnection {
	return r.ByIdentity(KindPlayer, username)
}

// Sweep revokes every expired session and closes its live connection.
//
// Postcondition: Returns the number of sessions revoked.
func (r *Registry) Sweep() int {
	now := r.now()

	r.mu.Lock()
	var closing []Conn
	n := 0
	for id, s := range r.sessions {
		if !s.Expired(now) {
			continue
		}
		if lc, ok := r.live[id]; ok {
			closing = append(closing, lc.Conn)
			delete(r.live, id)
		}
		delete(r.sessions, id)
		n++
	}
	r.mu.Unlock()

	for _, c := range closing {
		_ = c.Close()
	}
	if n > 0 {
		r.logger.Info("expired sessions revoked", zap.Int("count", n))
	}
	return n
}

// SessionCount returns the number of issued, unrevoked sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// LiveCount returns the number of live connections.
func (r *Registry) LiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}
