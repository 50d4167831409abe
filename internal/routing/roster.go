package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/shardgate/internal/game/character"
	"github.com/cory-johannsen/shardgate/internal/gateerr"
	"github.com/cory-johannsen/shardgate/internal/storage/postgres"
)

// Roster is the player-facing character listing and creation surface, plus
// the shard-facing character view.
type Roster struct {
	characters   CharacterStore
	limit        int
	starterLevel string
	starterPos   character.Position
	logger       *zap.Logger
}

// NewRoster creates a Roster enforcing limit characters per player. New
// characters are placed at starterLevel/starterPos.
//
// Precondition: limit must be > 0; characters and logger must be non-nil.
func NewRoster(characters CharacterStore, limit int, starterLevel string, starterPos character.Position, logger *zap.Logger) *Roster {
	return &Roster{
		characters:   characters,
		limit:        limit,
		starterLevel: starterLevel,
		starterPos:   starterPos,
		logger:       logger,
	}
}

// List returns the summaries of every character owned by player.
func (r *Roster) List(ctx context.Context, player string) ([]character.Summary, error) {
	chars, err := r.characters.ListByOwner(ctx, player)
	if err != nil {
		r.logger.Error("listing characters", zap.String("owner", player), zap.Error(err))
		return nil, gateerr.Store("listing characters", err)
	}
	out := make([]character.Summary, 0, len(chars))
	for _, c := range chars {
		out = append(out, c.Summarize())
	}
	return out, nil
}

// Create makes a new character for player at the starter level.
//
// Precondition: name must be non-empty and at most character.MaxNameLength bytes.
// Postcondition: Returns ErrCharacterCap if player already owns limit
// characters, ErrConflict if the name is taken. No record is created on error.
func (r *Roster) Create(ctx context.Context, player, name string) (character.Summary, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > character.MaxNameLength {
		return character.Summary{}, gateerr.Protocolf("character name must be 1-%d characters", character.MaxNameLength)
	}

	// The count and the insert are separate statements; two concurrent creates
	// by the same player can both pass the check.
	n, err := r.characters.CountByOwner(ctx, player)
	if err != nil {
		r.logger.Error("counting characters", zap.String("owner", player), zap.Error(err))
		return character.Summary{}, gateerr.Store("counting characters", err)
	}
	if n >= r.limit {
		return character.Summary{}, gateerr.ErrCharacterCap
	}

	created, err := r.characters.Create(ctx, character.New(name, player, r.starterLevel, r.starterPos))
	switch {
	case errors.Is(err, postgres.ErrCharacterNameTaken):
		return character.Summary{}, fmt.Errorf("character %q: %w", name, gateerr.ErrConflict)
	case err != nil:
		r.logger.Error("creating character", zap.String("character", name), zap.Error(err))
		return character.Summary{}, gateerr.Store("creating character", err)
	}
	return created.Summarize(), nil
}

// Get returns the full record of the named character.
//
// Postcondition: Returns ErrCharacterNotFound if absent.
func (r *Roster) Get(ctx context.Context, name string) (*character.Character, error) {
	c, err := r.characters.GetByName(ctx, name)
	switch {
	case errors.Is(err, postgres.ErrCharacterNotFound):
		return nil, fmt.Errorf("character %q: %w", name, ErrCharacterNotFound)
	case err != nil:
		r.logger.Error("loading character", zap.String("character", name), zap.Error(err))
		return nil, gateerr.Store("loading character", err)
	}
	return c, nil
}

// Update persists shard-reported state for the named character.
//
// Postcondition: Returns ErrCharacterNotFound if absent.
func (r *Roster) Update(ctx context.Context, c *character.Character) error {
	err := r.characters.Update(ctx, c)
	switch {
	case errors.Is(err, postgres.ErrCharacterNotFound):
		return fmt.Errorf("character %q: %w", c.Name, ErrCharacterNotFound)
	case err != nil:
		r.logger.Error("updating character", zap.String("character", c.Name), zap.Error(err))
		return gateerr.Store("updating character", err)
	}
	return nil
}
