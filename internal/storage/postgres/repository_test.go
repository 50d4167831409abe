package postgres_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/shardgate/internal/game/character"
	"github.com/cory-johannsen/shardgate/internal/shard"
	"github.com/cory-johannsen/shardgate/internal/storage/postgres"
	"github.com/cory-johannsen/shardgate/internal/testutil"
)

var seq atomic.Int64

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%1_000_000, seq.Add(1))
}

func setupRepos(t *testing.T) (*pgxpool.Pool, *postgres.PlayerRepository, *postgres.CharacterRepository) {
	t.Helper()
	pool := testutil.NewPool(t)
	return pool, postgres.NewPlayerRepository(pool), postgres.NewCharacterRepository(pool)
}

func TestPlayerRepository_CreateAndAuthenticate(t *testing.T) {
	_, players, _ := setupRepos(t)
	ctx := context.Background()
	name := uniqueName("alice")

	created, err := players.Create(ctx, name, "alice@example.com", "pw-123")
	require.NoError(t, err)
	assert.Greater(t, created.ID, int64(0))
	assert.NotEqual(t, "pw-123", created.PasswordHash)

	got, err := players.Authenticate(ctx, name, "pw-123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = players.Authenticate(ctx, name, "wrong")
	assert.ErrorIs(t, err, postgres.ErrInvalidCredentials)

	_, err = players.Authenticate(ctx, uniqueName("ghost"), "pw")
	assert.ErrorIs(t, err, postgres.ErrPlayerNotFound)

	_, err = players.Create(ctx, name, "", "other")
	assert.ErrorIs(t, err, postgres.ErrPlayerExists)
}

func TestCharacterRepository_CreateGetList(t *testing.T) {
	_, players, chars := setupRepos(t)
	ctx := context.Background()
	owner := uniqueName("owner")
	_, err := players.Create(ctx, owner, "", "pw")
	require.NoError(t, err)

	name := uniqueName("Zog")
	created, err := chars.Create(ctx, character.New(name, owner, "Grassland", character.Position{X: 128, Y: 128}))
	require.NoError(t, err)
	assert.Greater(t, created.ID, int64(0))
	assert.False(t, created.CreatedAt.IsZero())
	assert.JSONEq(t, `{}`, string(created.Stats))

	got, err := chars.GetByName(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, owner, got.Owner)
	assert.Equal(t, "Grassland", got.Level)
	assert.Equal(t, character.Position{X: 128, Y: 128}, got.Position)

	_, err = chars.Create(ctx, uniqueCharacter(owner))
	require.NoError(t, err)

	list, err := chars.ListByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, name, list[0].Name)

	n, err := chars.CountByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	empty, err := chars.ListByOwner(ctx, uniqueName("nobody"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func uniqueCharacter(owner string) *character.Character {
	return character.New(uniqueName("c"), owner, "Grassland", character.Position{})
}

func TestCharacterRepository_DuplicateNameNeverOverwrites(t *testing.T) {
	_, players, chars := setupRepos(t)
	ctx := context.Background()
	a, b := uniqueName("a"), uniqueName("b")
	for _, u := range []string{a, b} {
		_, err := players.Create(ctx, u, "", "pw")
		require.NoError(t, err)
	}

	name := uniqueName("Zog")
	_, err := chars.Create(ctx, character.New(name, a, "Grassland", character.Position{}))
	require.NoError(t, err)

	_, err = chars.Create(ctx, character.New(name, b, "Caves", character.Position{}))
	assert.ErrorIs(t, err, postgres.ErrCharacterNameTaken)

	got, err := chars.GetByName(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, a, got.Owner)
	assert.Equal(t, "Grassland", got.Level)
}

func TestCharacterRepository_GetByName_NotFound(t *testing.T) {
	_, _, chars := setupRepos(t)
	_, err := chars.GetByName(context.Background(), uniqueName("missing"))
	assert.ErrorIs(t, err, postgres.ErrCharacterNotFound)
}

func TestCharacterRepository_Update(t *testing.T) {
	_, players, chars := setupRepos(t)
	ctx := context.Background()
	owner := uniqueName("owner")
	_, err := players.Create(ctx, owner, "", "pw")
	require.NoError(t, err)

	c, err := chars.Create(ctx, uniqueCharacter(owner))
	require.NoError(t, err)

	c.Level = "Caves"
	c.Position = character.Position{X: 3.5, Y: -2}
	c.Stats = json.RawMessage(`{"hp":10}`)
	require.NoError(t, chars.Update(ctx, c))

	got, err := chars.GetByName(ctx, c.Name)
	require.NoError(t, err)
	assert.Equal(t, "Caves", got.Level)
	assert.Equal(t, c.Position, got.Position)
	assert.JSONEq(t, `{"hp":10}`, string(got.Stats))

	missing := uniqueCharacter(owner)
	assert.ErrorIs(t, chars.Update(ctx, missing), postgres.ErrCharacterNotFound)
}

func TestLevelRepository_ReplaceAll(t *testing.T) {
	pool, _, _ := setupRepos(t)
	ctx := context.Background()
	levels := postgres.NewLevelRepository(pool)

	first := []shard.Descriptor{
		{Level: "Grassland", Key: "k1", Address: "10.0.0.5", Port: 7777},
		{Level: "Caves", Key: "k2", Address: "10.0.0.6", Port: 7778},
	}
	require.NoError(t, levels.ReplaceAll(ctx, first))

	got, err := levels.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Caves", got[0].Level)

	require.NoError(t, levels.ReplaceAll(ctx, first[:1]))
	got, err = levels.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, first[:1], got)
}

func TestLevelRepository_ReplaceAllRollsBackOnFailure(t *testing.T) {
	pool, _, _ := setupRepos(t)
	ctx := context.Background()
	levels := postgres.NewLevelRepository(pool)

	good := []shard.Descriptor{{Level: "Grassland", Key: "k1", Address: "10.0.0.5", Port: 7777}}
	require.NoError(t, levels.ReplaceAll(ctx, good))

	dup := []shard.Descriptor{
		{Level: "Caves", Key: "k", Address: "a", Port: 1},
		{Level: "Caves", Key: "k", Address: "a", Port: 1},
	}
	assert.Error(t, levels.ReplaceAll(ctx, dup))

	got, err := levels.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, good, got)
}
