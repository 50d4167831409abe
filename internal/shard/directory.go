// Package shard provides the directory of level-simulation shards.
package shard

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// Descriptor describes one level shard.
type Descriptor struct {
	// Level is the unique level name the shard simulates.
	Level string `yaml:"level"`
	// Key is the shared secret the shard presents at login.
	Key     string `yaml:"key"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// Validate checks the descriptor's invariants.
func (d Descriptor) Validate() error {
	if d.Level == "" {
		return fmt.Errorf("shard descriptor has no level name")
	}
	if d.Key == "" {
		return fmt.Errorf("shard %q has no key", d.Level)
	}
	if d.Address == "" {
		return fmt.Errorf("shard %q has no address", d.Level)
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("shard %q port must be 1-65535, got %d", d.Level, d.Port)
	}
	return nil
}

// Directory maps level names to shard descriptors.
//
// The whole set is an immutable map published through an atomic pointer, so a
// Reload is one swap: concurrent lookups see either the previous set or the new
// one, never a partial set. All methods are safe for concurrent use.
type Directory struct {
	levels atomic.Pointer[map[string]Descriptor]
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	d := &Directory{}
	empty := map[string]Descriptor{}
	d.levels.Store(&empty)
	return d
}

// Reload replaces the entire directory with descriptors.
//
// Precondition: every descriptor must be valid and level names must be unique.
// Postcondition: On success the new set is visible to all subsequent lookups.
// On error the directory is unchanged.
func (d *Directory) Reload(descriptors []Descriptor) error {
	next := make(map[string]Descriptor, len(descriptors))
	for _, desc := range descriptors {
		if err := desc.Validate(); err != nil {
			return err
		}
		if _, dup := next[desc.Level]; dup {
			return fmt.Errorf("duplicate shard level %q", desc.Level)
		}
		next[desc.Level] = desc
	}
	d.levels.Store(&next)
	return nil
}

// Lookup returns the descriptor registered for level.
//
// Postcondition: Returns (descriptor, true) if found, or (Descriptor{}, false) otherwise.
func (d *Directory) Lookup(level string) (Descriptor, bool) {
	desc, ok := (*d.levels.Load())[level]
	return desc, ok
}

// Levels returns the registered level names in sorted order.
func (d *Directory) Levels() []string {
	m := *d.levels.Load()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered shards.
func (d *Directory) Len() int {
	return len(*d.levels.Load())
}

// Snapshot returns every registered descriptor, sorted by level name, taken
// from a single published set.
func (d *Directory) Snapshot() []Descriptor {
	m := *d.levels.Load()
	out := make([]Descriptor, 0, len(m))
	for _, desc := range m {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}
