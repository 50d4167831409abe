// Package ws admits persistent websocket connections for issued sessions.
package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/shardgate/internal/config"
	"github.com/cory-johannsen/shardgate/internal/session"
)

// FrameHandler processes one inbound frame from an admitted client.
// Frames from one client are handled sequentially in arrival order.
type FrameHandler interface {
	HandleFrame(ctx context.Context, c *Client, frame []byte)
}

// Registry resolves session tokens and binds connections to them.
type Registry interface {
	Binder
	Lookup(id string) (session.Session, bool)
}

// Guard is the only path by which a raw connection becomes a live session
// connection. It rejects an upgrade without a resolvable session token before
// any handshake bytes are written.
type Guard struct {
	registry Registry
	handler  FrameHandler
	cfg      config.SessionConfig
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewGuard creates a Guard.
//
// Precondition: registry, handler, and logger must be non-nil.
func NewGuard(registry Registry, handler FrameHandler, cfg config.SessionConfig, logger *zap.Logger) *Guard {
	return &Guard{
		registry: registry,
		handler:  handler,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP implements http.Handler.
//
// Postcondition: Either the request was answered with 401 and the transport
// closed, or the connection was upgraded, bound to its session, and served
// until it closed; the binding is removed on return.
func (g *Guard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := session.TokenFromRequest(r, g.cfg.CookieName)
	sess, ok := g.registry.Lookup(token)
	if !ok {
		g.logger.Warn("upgrade rejected",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Bool("token_present", token != ""),
		)
		w.Header().Set("Connection", "close")
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket handshake failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	if g.cfg.ReadLimit > 0 {
		conn.SetReadLimit(g.cfg.ReadLimit)
	}

	client := newClient(conn, sess, g.registry, g.cfg.SendBuffer, g.cfg.WriteTimeout, g.logger)
	if _, err := g.registry.Bind(sess.ID, client); err != nil {
		g.logger.Warn("binding admitted connection", zap.String("name", sess.Name), zap.Error(err))
		_ = client.Close()
		return
	}
	g.serve(r.Context(), client, r.RemoteAddr)
}

func (g *Guard) serve(ctx context.Context, c *Client, addr string) {
	start := time.Now()
	s := c.Session()
	g.logger.Info("connection admitted",
		zap.String("kind", s.Kind.String()),
		zap.String("name", s.Name),
		zap.String("remote_addr", addr),
	)

	go c.writePump()
	defer func() {
		g.registry.Unbind(c.Session().ID, c)
		_ = c.Close()
		g.logger.Info("connection closed",
			zap.String("name", c.Session().Name),
			zap.String("remote_addr", addr),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Debug("websocket read failed", zap.String("remote_addr", addr), zap.Error(err))
			}
			return
		}
		g.handler.HandleFrame(ctx, c, frame)
	}
}
