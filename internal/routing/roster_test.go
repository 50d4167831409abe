package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/shardgate/internal/game/character"
	"github.com/cory-johannsen/shardgate/internal/gateerr"
)

func TestRoster_CreateAndList(t *testing.T) {
	store := newMemStore()
	r := NewRoster(store, 5, "Grassland", starter, zaptest.NewLogger(t))
	ctx := context.Background()

	s, err := r.Create(ctx, "alice", "Zog")
	require.NoError(t, err)
	assert.Equal(t, character.Summary{Name: "Zog", Level: "Grassland"}, s)

	_, err = r.Create(ctx, "bob", "Bob")
	require.NoError(t, err)

	list, err := r.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []character.Summary{{Name: "Zog", Level: "Grassland"}}, list)

	empty, err := r.List(ctx, "carol")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestRoster_CapEnforced(t *testing.T) {
	store := newMemStore()
	r := NewRoster(store, 5, "Grassland", starter, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := r.Create(ctx, "alice", fmt.Sprintf("char%d", i))
		require.NoError(t, err)
	}
	_, err := r.Create(ctx, "alice", "sixth")
	assert.ErrorIs(t, err, gateerr.ErrCharacterCap)
	assert.ErrorIs(t, err, gateerr.ErrConflict)

	_, err = store.GetByName(ctx, "sixth")
	assert.Error(t, err, "no record is created past the cap")
}

func TestRoster_DuplicateName(t *testing.T) {
	r := NewRoster(newMemStore(), 5, "Grassland", starter, zaptest.NewLogger(t))
	ctx := context.Background()
	_, err := r.Create(ctx, "alice", "Zog")
	require.NoError(t, err)

	_, err = r.Create(ctx, "bob", "Zog")
	assert.ErrorIs(t, err, gateerr.ErrConflict)
	assert.NotErrorIs(t, err, gateerr.ErrCharacterCap)
}

func TestRoster_InvalidName(t *testing.T) {
	r := NewRoster(newMemStore(), 5, "Grassland", starter, zaptest.NewLogger(t))
	_, err := r.Create(context.Background(), "alice", "   ")
	assert.ErrorIs(t, err, gateerr.ErrProtocol)
}

func TestRoster_GetAndUpdate(t *testing.T) {
	store := newMemStore()
	r := NewRoster(store, 5, "Grassland", starter, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := r.Get(ctx, "Zog")
	assert.ErrorIs(t, err, ErrCharacterNotFound)

	_, err = r.Create(ctx, "alice", "Zog")
	require.NoError(t, err)

	c, err := r.Get(ctx, "Zog")
	require.NoError(t, err)
	c.Level = "Caves"
	c.Stats = json.RawMessage(`{"hp":3}`)
	require.NoError(t, r.Update(ctx, c))

	got, err := r.Get(ctx, "Zog")
	require.NoError(t, err)
	assert.Equal(t, "Caves", got.Level)
	assert.JSONEq(t, `{"hp":3}`, string(got.Stats))

	err = r.Update(ctx, character.New("Nobody", "alice", "Caves", character.Position{}))
	assert.ErrorIs(t, err, ErrCharacterNotFound)
}

// Property: a player never owns more than the cap, whatever the sequence of
// creates.
func TestPropertyRosterNeverExceedsCap(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := rapid.IntRange(1, 6).Draw(t, "cap")
		r := NewRoster(newMemStore(), limit, "Grassland", starter, zap.NewNop())
		ctx := context.Background()

		attempts := rapid.IntRange(0, 12).Draw(t, "attempts")
		for i := 0; i < attempts; i++ {
			_, _ = r.Create(ctx, "alice", fmt.Sprintf("c%d", i))
		}
		list, err := r.List(ctx, "alice")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		want := attempts
		if want > limit {
			want = limit
		}
		if len(list) != want {
			t.Fatalf("owns %d characters, want %d", len(list), want)
		}
	})
}
