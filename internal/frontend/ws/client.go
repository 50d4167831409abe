package ws

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/shardgate/internal/session"
)

// Binder ties sessions to live connections.
type Binder interface {
	Bind(id string, conn session.Conn) (session.Conn, error)
	Rebind(prevID, nextID string, conn session.Conn) (session.Conn, error)
	Unbind(id string, conn session.Conn) bool
}

// Client is one admitted websocket connection. Outbound frames are queued in
// an outbox and written by a single writer goroutine; inbound frames are read
// and handled in arrival order by the reader.
type Client struct {
	conn   *websocket.Conn
	outbox *session.Outbox
	binder Binder
	logger *zap.Logger

	writeTimeout time.Duration

	mu   sync.RWMutex
	sess session.Session

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn, sess session.Session, binder Binder, sendBuffer int, writeTimeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		conn:         conn,
		outbox:       session.NewOutbox(sess.ID, sendBuffer),
		binder:       binder,
		logger:       logger,
		writeTimeout: writeTimeout,
		sess:         sess,
		done:         make(chan struct{}),
	}
}

// Session returns the session the connection is currently bound to.
func (c *Client) Session() session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

// Send queues a frame for the writer. A connection whose queue is full has
// stalled and is closed in the background so the sender never waits on it.
//
// Postcondition: Returns nil if the frame was queued.
func (c *Client) Send(frame []byte) error {
	if err := c.outbox.Push(frame); err != nil {
		if !c.outbox.IsClosed() {
			s := c.Session()
			c.logger.Warn("closing stalled connection",
				zap.String("kind", s.Kind.String()),
				zap.String("name", s.Name),
			)
			go c.Close()
		}
		return err
	}
	return nil
}

// Rebind moves the connection from its current session to next. The session
// it leaves is revoked.
//
// Postcondition: On success the connection is reachable only through next.
// On error the original binding is unchanged.
func (c *Client) Rebind(next session.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.ID == next.ID {
		return nil
	}
	if _, err := c.binder.Rebind(c.sess.ID, next.ID, c); err != nil {
		return fmt.Errorf("binding session: %w", err)
	}
	c.sess = next
	return nil
}

// Close tears down the connection. Calling Close more than once is safe.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.outbox.Close()
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.conn.Close()
	})
	return nil
}

// Done is closed once the connection is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// writePump drains the outbox to the socket until the outbox is closed or a
// write fails.
func (c *Client) writePump() {
	defer c.Close()
	for frame := range c.outbox.Frames() {
		if c.writeTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}
