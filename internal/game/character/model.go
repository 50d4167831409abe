// Package character defines the character record the gateway routes on.
//
// The gateway owns only a character's identity, owner, and level placement.
// Stats, inventory, and equipment are opaque JSON documents maintained by the
// shard simulating the character.
package character

import (
	"encoding/json"
	"time"
)

// MaxNameLength is the longest accepted character name.
const MaxNameLength = 64

// Position is a location within a level.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Character represents a character's persistent state.
//
// ID is set by the persistence layer; a zero value indicates an unsaved character.
type Character struct {
	ID int64

	Name     string
	Owner    string // player username
	Level    string // level name the character is in
	Position Position

	Stats     json.RawMessage
	Inventory json.RawMessage
	Equipment json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is the player-facing listing entry for a character.
type Summary struct {
	Name  string `json:"name"`
	Level string `json:"level"`
}

// Summarize returns the listing entry for c.
func (c *Character) Summarize() Summary {
	return Summary{Name: c.Name, Level: c.Level}
}

// emptyDocument is stored for stats, inventory, and equipment until a shard
// writes real values.
var emptyDocument = json.RawMessage(`{}`)

// New builds an unsaved character placed at level/pos and owned by owner.
//
// Precondition: name, owner, and level must be non-empty.
// Postcondition: Returns a character with empty JSON documents.
func New(name, owner, level string, pos Position) *Character {
	return &Character{
		Name:      name,
		Owner:     owner,
		Level:     level,
		Position:  pos,
		Stats:     emptyDocument,
		Inventory: emptyDocument,
		Equipment: emptyDocument,
	}
}

// Document returns raw, or an empty JSON object when raw is empty.
func Document(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return emptyDocument
	}
	return raw
}
