package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/shardgate/internal/config"
	"github.com/cory-johannsen/shardgate/internal/session"
	"github.com/cory-johannsen/shardgate/internal/shard"
)

type fakeLevels struct {
	stored   []shard.Descriptor
	replaced bool
	err      error
}

func (f *fakeLevels) ReplaceAll(_ context.Context, d []shard.Descriptor) error {
	if f.err != nil {
		return f.err
	}
	f.stored = d
	f.replaced = true
	return nil
}

func (f *fakeLevels) List(context.Context) ([]shard.Descriptor, error) {
	return f.stored, f.err
}

const levelsYAML = `levels:
  - level: Grassland
    key: grass-key
    address: 10.0.0.5
    port: 7777
  - level: Swamp
    key: swamp-key
    address: 10.0.0.6
    port: 7778
`

func writeLevels(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "levels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(levelsYAML), 0o600))
	return path
}

func TestLoadDirectory_FromFilePersistsAndPublishes(t *testing.T) {
	store := &fakeLevels{stored: []shard.Descriptor{{Level: "Old", Key: "k", Address: "h", Port: 1}}}
	game := config.GameConfig{StarterLevel: "Grassland", LevelsFile: writeLevels(t)}

	dir, err := loadDirectory(context.Background(), game, store, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.True(t, store.replaced)
	assert.Len(t, store.stored, 2)
	assert.ElementsMatch(t, []string{"Grassland", "Swamp"}, dir.Levels())
	_, ok := dir.Lookup("Old")
	assert.False(t, ok, "levels file replaces the stored list")
}

func TestLoadDirectory_FromDatabase(t *testing.T) {
	store := &fakeLevels{stored: []shard.Descriptor{{Level: "Grassland", Key: "k", Address: "h", Port: 1}}}

	dir, err := loadDirectory(context.Background(), config.GameConfig{StarterLevel: "Grassland"}, store, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, store.replaced)
	d, ok := dir.Lookup("Grassland")
	require.True(t, ok)
	assert.Equal(t, "h", d.Address)
}

func TestLoadDirectory_PersistFailure(t *testing.T) {
	store := &fakeLevels{err: errors.New("connection reset")}
	game := config.GameConfig{StarterLevel: "Grassland", LevelsFile: writeLevels(t)}

	_, err := loadDirectory(context.Background(), game, store, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "persisting shard list")
}

func TestLoadDirectory_MissingFile(t *testing.T) {
	game := config.GameConfig{StarterLevel: "Grassland", LevelsFile: filepath.Join(t.TempDir(), "absent.yaml")}
	_, err := loadDirectory(context.Background(), game, &fakeLevels{}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

type countingSweeper struct{ n atomic.Int32 }

func (c *countingSweeper) Sweep() int {
	c.n.Add(1)
	return 0
}

func TestSweepLoop(t *testing.T) {
	sw := &countingSweeper{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweepLoop(sw, 5*time.Millisecond)(ctx) }()

	require.Eventually(t, func() bool { return sw.n.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

type closeCounter struct{ closed atomic.Int32 }

func (c *closeCounter) Send([]byte) error { return nil }
func (c *closeCounter) Close() error {
	c.closed.Add(1)
	return nil
}

func TestConnectionsService_ClosesLiveOnStop(t *testing.T) {
	reg := session.NewRegistry(0, zaptest.NewLogger(t))
	conns := []*closeCounter{{}, {}}
	for i, c := range conns {
		s := reg.Issue(session.KindPlayer, []string{"alice", "bob"}[i])
		_, err := reg.Bind(s.ID, c)
		require.NoError(t, err)
	}

	svc := connectionsService(reg, zaptest.NewLogger(t))
	done := make(chan error, 1)
	go func() { done <- svc.Start() }()

	svc.Stop()
	require.NoError(t, <-done)
	for _, c := range conns {
		assert.Equal(t, int32(1), c.closed.Load())
	}
}
