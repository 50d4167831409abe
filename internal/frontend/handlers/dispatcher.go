// Package handlers dispatches inbound persistent-connection messages.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/shardgate/internal/auth"
	"github.com/cory-johannsen/shardgate/internal/config"
	"github.com/cory-johannsen/shardgate/internal/frontend/ws"
	"github.com/cory-johannsen/shardgate/internal/game/character"
	"github.com/cory-johannsen/shardgate/internal/gateerr"
	"github.com/cory-johannsen/shardgate/internal/protocol"
	"github.com/cory-johannsen/shardgate/internal/routing"
	"github.com/cory-johannsen/shardgate/internal/session"
)

// Client is the live connection a message arrived on.
type Client interface {
	Session() session.Session
	Send(frame []byte) error
	Rebind(next session.Session) error
}

// Authenticator logs players in.
type Authenticator interface {
	LoginPlayer(ctx context.Context, username, password string) (auth.LoginResult, error)
}

// CharacterRouter hands characters off to shards.
type CharacterRouter interface {
	ResolveOrCreate(ctx context.Context, player, name, starterLevel string, starterPos character.Position) (routing.Destination, error)
}

// ChatSender relays chat messages.
type ChatSender interface {
	Send(scope protocol.ChatType, from, message string) (int, error)
}

// messageContext carries everything a message handler needs.
type messageContext struct {
	ctx    context.Context
	client Client
	msg    protocol.Message
}

// messageHandlerFunc handles one decoded message. A nil reply sends nothing.
type messageHandlerFunc func(mctx *messageContext) (*protocol.Reply, error)

// Dispatcher routes decoded frames to per-type handlers and writes replies.
type Dispatcher struct {
	auth     Authenticator
	router   CharacterRouter
	chat     ChatSender
	game     config.GameConfig
	logger   *zap.Logger
	handlers map[string]messageHandlerFunc
}

// NewDispatcher creates a Dispatcher.
//
// Precondition: authn, router, chat, and logger must be non-nil.
func NewDispatcher(authn Authenticator, router CharacterRouter, chat ChatSender, game config.GameConfig, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		auth:   authn,
		router: router,
		chat:   chat,
		game:   game,
		logger: logger,
	}
	d.handlers = map[string]messageHandlerFunc{
		protocol.TypeAuth:            d.handleAuth,
		protocol.TypeLoadCharacter:   d.handleLoadCharacter,
		protocol.TypeSendChatMessage: d.handleSendChat,
	}
	return d
}

// Handles reports whether a handler is registered for typ.
func (d *Dispatcher) Handles(typ string) bool {
	_, ok := d.handlers[typ]
	return ok
}

// HandleFrame implements ws.FrameHandler.
func (d *Dispatcher) HandleFrame(ctx context.Context, c *ws.Client, frame []byte) {
	d.Handle(ctx, c, frame)
}

// Handle decodes frame and runs its handler. Unknown types are ignored;
// malformed frames and handler failures get a generic error reply. The
// connection always stays open.
func (d *Dispatcher) Handle(ctx context.Context, c Client, frame []byte) {
	s := c.Session()
	msg, err := protocol.Decode(frame)
	if errors.Is(err, protocol.ErrUnknownType) {
		d.logger.Warn("ignoring message", zap.String("name", s.Name), zap.Error(err))
		return
	}
	if err != nil {
		d.logger.Debug("malformed message", zap.String("name", s.Name), zap.Error(err))
		d.reply(c, protocol.ErrorReply(err))
		return
	}

	h, ok := d.handlers[msg.Type()]
	if !ok {
		d.logger.Warn("no handler for message", zap.String("type", msg.Type()))
		return
	}
	reply, err := h(&messageContext{ctx: ctx, client: c, msg: msg})
	if err != nil {
		level := zap.DebugLevel
		if errors.Is(err, gateerr.ErrStoreUnavailable) {
			level = zap.ErrorLevel
		}
		d.logger.Log(level, "message failed",
			zap.String("type", msg.Type()),
			zap.String("name", s.Name),
			zap.Error(err),
		)
		d.reply(c, protocol.ErrorReply(err))
		return
	}
	if reply != nil {
		d.reply(c, *reply)
	}
}

func (d *Dispatcher) reply(c Client, r protocol.Reply) {
	frame, err := protocol.Encode(r)
	if err != nil {
		d.logger.Error("encoding reply", zap.Error(err))
		return
	}
	if err := c.Send(frame); err != nil {
		d.logger.Debug("reply not delivered", zap.Error(err))
	}
}

// requirePlayer returns the caller's player session or ErrUnauthorized.
func requirePlayer(c Client) (session.Session, error) {
	s := c.Session()
	if s.Kind != session.KindPlayer {
		return session.Session{}, fmt.Errorf("%s session: %w", s.Kind, gateerr.ErrUnauthorized)
	}
	return s, nil
}

func (d *Dispatcher) handleAuth(mctx *messageContext) (*protocol.Reply, error) {
	req := mctx.msg.(protocol.AuthRequest)
	res, err := d.auth.LoginPlayer(mctx.ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	if !res.Authorized {
		r := protocol.AuthResponse(false, "", "")
		return &r, nil
	}
	if err := mctx.client.Rebind(res.Session); err != nil {
		return nil, err
	}
	r := protocol.AuthResponse(true, res.Session.ID, res.Secret)
	return &r, nil
}

func (d *Dispatcher) handleLoadCharacter(mctx *messageContext) (*protocol.Reply, error) {
	s, err := requirePlayer(mctx.client)
	if err != nil {
		return nil, err
	}
	req := mctx.msg.(protocol.LoadCharacterRequest)
	dest, err := d.router.ResolveOrCreate(mctx.ctx, s.Name, req.Character, d.game.StarterLevel,
		character.Position{X: d.game.StarterX, Y: d.game.StarterY})
	if err != nil {
		return nil, err
	}
	r := protocol.LoadCharacterResponse(dest.Level, dest.Address, dest.Port)
	return &r, nil
}

func (d *Dispatcher) handleSendChat(mctx *messageContext) (*protocol.Reply, error) {
	s, err := requirePlayer(mctx.client)
	if err != nil {
		return nil, err
	}
	req := mctx.msg.(protocol.SendChatRequest)
	if _, err := d.chat.Send(req.Scope, s.Name, req.Message); err != nil {
		return nil, err
	}
	return nil, nil
}
