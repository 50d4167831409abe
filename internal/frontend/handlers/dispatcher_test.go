package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/shardgate/internal/auth"
	"github.com/cory-johannsen/shardgate/internal/config"
	"github.com/cory-johannsen/shardgate/internal/game/character"
	"github.com/cory-johannsen/shardgate/internal/gateerr"
	"github.com/cory-johannsen/shardgate/internal/protocol"
	"github.com/cory-johannsen/shardgate/internal/routing"
	"github.com/cory-johannsen/shardgate/internal/session"
)

type fakeClient struct {
	mu      sync.Mutex
	sess    session.Session
	frames  []map[string]any
	rebinds []session.Session
}

func (c *fakeClient) Session() session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *fakeClient) Send(frame []byte) error {
	var m map[string]any
	if err := json.Unmarshal(frame, &m); err != nil {
		return err
	}
	c.mu.Lock()
	c.frames = append(c.frames, m)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Rebind(next session.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess = next
	c.rebinds = append(c.rebinds, next)
	return nil
}

func (c *fakeClient) last(t *testing.T) map[string]any {
	t.Helper()
	require.NotEmpty(t, c.frames)
	return c.frames[len(c.frames)-1]
}

type fakeAuth struct {
	result auth.LoginResult
	err    error
}

func (f *fakeAuth) LoginPlayer(context.Context, string, string) (auth.LoginResult, error) {
	return f.result, f.err
}

type fakeRouter struct {
	gotPlayer, gotName, gotLevel string
	gotPos                       character.Position
	dest                         routing.Destination
	err                          error
}

func (f *fakeRouter) ResolveOrCreate(_ context.Context, player, name, level string, pos character.Position) (routing.Destination, error) {
	f.gotPlayer, f.gotName, f.gotLevel, f.gotPos = player, name, level, pos
	return f.dest, f.err
}

type fakeChat struct {
	scopes []protocol.ChatType
	from   []string
}

func (f *fakeChat) Send(scope protocol.ChatType, from, _ string) (int, error) {
	f.scopes = append(f.scopes, scope)
	f.from = append(f.from, from)
	return 1, nil
}

var testGame = config.GameConfig{StarterLevel: "Grassland", StarterX: 128, StarterY: 128, CharacterCap: 5}

func newTestDispatcher(t *testing.T, a *fakeAuth, r *fakeRouter, c *fakeChat) *Dispatcher {
	t.Helper()
	return NewDispatcher(a, r, c, testGame, zaptest.NewLogger(t))
}

func playerClient(name string) *fakeClient {
	return &fakeClient{sess: session.Session{ID: "s-" + name, Kind: session.KindPlayer, Name: name}}
}

func TestDispatcher_AllInboundTypesHandled(t *testing.T) {
	d := newTestDispatcher(t, &fakeAuth{}, &fakeRouter{}, &fakeChat{})
	for _, typ := range protocol.InboundTypes() {
		assert.True(t, d.Handles(typ), "no handler for %q", typ)
	}
}

func TestDispatcher_LoadCharacter(t *testing.T) {
	r := &fakeRouter{dest: routing.Destination{Level: "Grassland", Address: "10.0.0.5", Port: 7777}}
	d := newTestDispatcher(t, &fakeAuth{}, r, &fakeChat{})
	c := playerClient("alice")

	d.Handle(context.Background(), c, []byte(`{"type":"load-character","args":{"character":"Zog"}}`))

	assert.Equal(t, "alice", r.gotPlayer)
	assert.Equal(t, "Zog", r.gotName)
	assert.Equal(t, "Grassland", r.gotLevel)
	assert.Equal(t, character.Position{X: 128, Y: 128}, r.gotPos)

	f := c.last(t)
	assert.Equal(t, protocol.TypeLoadCharacterResponse, f["type"])
	assert.Equal(t, false, f["error"])
	assert.Equal(t, map[string]any{"level": "Grassland", "address": "10.0.0.5", "port": float64(7777)}, f["data"])
}

func TestDispatcher_LoadCharacterErrorsAreGeneric(t *testing.T) {
	cases := map[string]struct {
		err    error
		reason string
	}{
		"store":    {gateerr.Store("loading", errors.New("pq: password=hunter2")), protocol.ReasonAPIError},
		"conflict": {gateerr.ErrConflict, protocol.ReasonConflict},
		"no shard": {routing.ErrShardNotRegistered, protocol.ReasonNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			d := newTestDispatcher(t, &fakeAuth{}, &fakeRouter{err: tc.err}, &fakeChat{})
			c := playerClient("alice")
			d.Handle(context.Background(), c, []byte(`{"type":"load-character","args":{"character":"Zog"}}`))

			f := c.last(t)
			assert.Equal(t, true, f["error"])
			assert.Equal(t, tc.reason, f["reason"])
			assert.NotContains(t, f, "data")
		})
	}
}

func TestDispatcher_ShardCannotLoadCharacter(t *testing.T) {
	r := &fakeRouter{}
	d := newTestDispatcher(t, &fakeAuth{}, r, &fakeChat{})
	c := &fakeClient{sess: session.Session{ID: "s", Kind: session.KindShard, Name: "Grassland"}}

	d.Handle(context.Background(), c, []byte(`{"type":"load-character","args":{"character":"Zog"}}`))
	assert.Equal(t, protocol.ReasonUnauthorized, c.last(t)["reason"])
	assert.Empty(t, r.gotName)
}

func TestDispatcher_MalformedFrameRepliesAndContinues(t *testing.T) {
	r := &fakeRouter{dest: routing.Destination{Level: "Grassland", Address: "a", Port: 1}}
	d := newTestDispatcher(t, &fakeAuth{}, r, &fakeChat{})
	c := playerClient("alice")

	d.Handle(context.Background(), c, []byte(`{not json`))
	assert.Equal(t, map[string]any{"error": true, "reason": protocol.ReasonAPIError}, c.last(t))

	d.Handle(context.Background(), c, []byte(`{"type":"load-character","args":{"character":"Zog"}}`))
	assert.Equal(t, protocol.TypeLoadCharacterResponse, c.last(t)["type"])
}

func TestDispatcher_UnknownTypeIsNoOp(t *testing.T) {
	d := newTestDispatcher(t, &fakeAuth{}, &fakeRouter{}, &fakeChat{})
	c := playerClient("alice")
	d.Handle(context.Background(), c, []byte(`{"type":"dance","args":{}}`))
	assert.Empty(t, c.frames)
}

func TestDispatcher_UnknownChatTypeIsDropped(t *testing.T) {
	ch := &fakeChat{}
	d := newTestDispatcher(t, &fakeAuth{}, &fakeRouter{}, ch)
	c := playerClient("alice")

	d.Handle(context.Background(), c, []byte(`{"type":"send-chat-message","args":{"type":"Shout","message":"hey"}}`))

	assert.Empty(t, ch.scopes)
	assert.Empty(t, c.frames)
}

func TestDispatcher_OverlongCharacterNameNeverRouted(t *testing.T) {
	r := &fakeRouter{}
	d := newTestDispatcher(t, &fakeAuth{}, r, &fakeChat{})
	c := playerClient("alice")

	name := strings.Repeat("x", character.MaxNameLength+1)
	d.Handle(context.Background(), c, []byte(`{"type":"load-character","args":{"character":"`+name+`"}}`))

	assert.Empty(t, r.gotName, "router not consulted")
	assert.Equal(t, map[string]any{"error": true, "reason": protocol.ReasonAPIError}, c.last(t))
}

func TestDispatcher_Chat(t *testing.T) {
	ch := &fakeChat{}
	d := newTestDispatcher(t, &fakeAuth{}, &fakeRouter{}, ch)
	c := playerClient("alice")

	d.Handle(context.Background(), c, []byte(`{"type":"send-chat-message","args":{"type":"Global","message":"hi"}}`))
	d.Handle(context.Background(), c, []byte(`{"type":"send-chat-message","args":{"type":"Wisper","message":"psst"}}`))

	assert.Equal(t, []protocol.ChatType{protocol.ChatGlobal, protocol.ChatWhisper}, ch.scopes)
	assert.Equal(t, []string{"alice", "alice"}, ch.from)
	assert.Empty(t, c.frames, "chat requests get no direct reply")
}

func TestDispatcher_AuthSuccessRebinds(t *testing.T) {
	next := session.Session{ID: "new", Kind: session.KindPlayer, Name: "bob"}
	a := &fakeAuth{result: auth.LoginResult{Authorized: true, Session: next, Secret: "sekrit"}}
	d := newTestDispatcher(t, a, &fakeRouter{}, &fakeChat{})
	c := playerClient("alice")

	d.Handle(context.Background(), c, []byte(`{"type":"auth","args":{"username":"bob","password":"pw"}}`))

	require.Len(t, c.rebinds, 1)
	assert.Equal(t, "new", c.Session().ID)
	f := c.last(t)
	assert.Equal(t, protocol.TypeAuthResponse, f["type"])
	assert.Equal(t, map[string]any{"auth": true, "session": "new", "secret": "sekrit"}, f["data"])
}

func TestDispatcher_AuthRejected(t *testing.T) {
	d := newTestDispatcher(t, &fakeAuth{}, &fakeRouter{}, &fakeChat{})
	c := playerClient("alice")

	d.Handle(context.Background(), c, []byte(`{"type":"auth","args":{"username":"bob","password":"bad"}}`))

	assert.Empty(t, c.rebinds)
	f := c.last(t)
	assert.Equal(t, false, f["error"])
	assert.Equal(t, map[string]any{"auth": false}, f["data"])
}

func TestDispatcher_AuthStoreFailure(t *testing.T) {
	a := &fakeAuth{err: gateerr.Store("authenticating", errors.New("timeout"))}
	d := newTestDispatcher(t, a, &fakeRouter{}, &fakeChat{})
	c := playerClient("alice")

	d.Handle(context.Background(), c, []byte(`{"type":"auth","args":{"username":"bob","password":"pw"}}`))
	assert.Equal(t, map[string]any{"error": true, "reason": protocol.ReasonAPIError}, c.last(t))
}
