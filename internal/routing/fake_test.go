package routing

import (
	"context"
	"sync"

	"github.com/cory-johannsen/shardgate/internal/game/character"
	"github.com/cory-johannsen/shardgate/internal/storage/postgres"
)

// memStore is an in-memory CharacterStore enforcing name uniqueness.
type memStore struct {
	mu      sync.Mutex
	byName  map[string]*character.Character
	order   []string
	creates int
	err     error
	// beforeCreate runs before the uniqueness check; tests use it to
	// simulate a concurrent creator.
	beforeCreate func()
}

func newMemStore() *memStore {
	return &memStore{byName: make(map[string]*character.Character)}
}

func (m *memStore) GetByName(_ context.Context, name string) (*character.Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.byName[name]
	if !ok {
		return nil, postgres.ErrCharacterNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) Create(_ context.Context, c *character.Character) (*character.Character, error) {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if _, exists := m.byName[c.Name]; exists {
		return nil, postgres.ErrCharacterNameTaken
	}
	m.creates++
	cp := *c
	cp.ID = int64(m.creates)
	m.byName[c.Name] = &cp
	m.order = append(m.order, c.Name)
	out := cp
	return &out, nil
}

func (m *memStore) ListByOwner(_ context.Context, owner string) ([]*character.Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*character.Character
	for _, name := range m.order {
		if c := m.byName[name]; c.Owner == owner {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) CountByOwner(ctx context.Context, owner string) (int, error) {
	list, err := m.ListByOwner(ctx, owner)
	return len(list), err
}

func (m *memStore) Update(_ context.Context, c *character.Character) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	existing, ok := m.byName[c.Name]
	if !ok {
		return postgres.ErrCharacterNotFound
	}
	existing.Level = c.Level
	existing.Position = c.Position
	existing.Stats = character.Document(c.Stats)
	existing.Inventory = character.Document(c.Inventory)
	existing.Equipment = character.Document(c.Equipment)
	return nil
}
