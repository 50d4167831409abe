// Package chat fans chat messages out to live connections.
package chat

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/shardgate/internal/protocol"
	"github.com/cory-johannsen/shardgate/internal/session"
)

// LiveSource provides the point-in-time set of live connections.
type LiveSource interface {
	AllLive() []session.LiveConnection
}

// Relay delivers chat messages.
type Relay struct {
	live   LiveSource
	logger *zap.Logger
}

// NewRelay creates a Relay.
//
// Precondition: live and logger must be non-nil.
func NewRelay(live LiveSource, logger *zap.Logger) *Relay {
	return &Relay{live: live, logger: logger}
}

// Send routes a message by scope. Global is broadcast; Team and Whisper have
// no delivery and are dropped.
//
// Postcondition: Returns the number of connections the frame was queued to.
func (r *Relay) Send(scope protocol.ChatType, from, message string) (int, error) {
	switch scope {
	case protocol.ChatGlobal:
		return r.BroadcastGlobal(from, message)
	default:
		r.logger.Debug("chat scope not delivered",
			zap.String("scope", string(scope)),
			zap.String("from", from),
		)
		return 0, nil
	}
}

// BroadcastGlobal sends one chat-message frame to every connection live at
// call time, the sender's included.
//
// Postcondition: Each connection in the snapshot is sent the frame exactly
// once. A failed send to one connection does not stop delivery to the rest.
func (r *Relay) BroadcastGlobal(from, message string) (int, error) {
	frame, err := protocol.Encode(protocol.ChatMessage(protocol.ChatGlobal, from, message))
	if err != nil {
		return 0, fmt.Errorf("encoding chat message: %w", err)
	}

	delivered := 0
	for _, lc := range r.live.AllLive() {
		if err := lc.Conn.Send(frame); err != nil {
			r.logger.Warn("chat delivery failed",
				zap.String("session", lc.Session.ID),
				zap.String("name", lc.Session.Name),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	r.logger.Debug("global chat broadcast", zap.String("from", from), zap.Int("recipients", delivered))
	return delivered, nil
}
