package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/shardgate/internal/game/character"
)

// ErrCharacterNotFound is returned when a character lookup yields no results.
var ErrCharacterNotFound = errors.New("character not found")

// ErrCharacterNameTaken is returned when creating a character with a name already in use.
var ErrCharacterNameTaken = errors.New("character name already taken")

const characterColumns = `id, name, owner, level, pos_x, pos_y,
	stats, inventory, equipment, created_at, updated_at`

// CharacterRepository provides character persistence operations.
type CharacterRepository struct {
	db *pgxpool.Pool
}

// NewCharacterRepository creates a CharacterRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewCharacterRepository(db *pgxpool.Pool) *CharacterRepository {
	return &CharacterRepository{db: db}
}

func scanCharacter(row pgx.Row) (*character.Character, error) {
	var c character.Character
	err := row.Scan(
		&c.ID, &c.Name, &c.Owner, &c.Level, &c.Position.X, &c.Position.Y,
		&c.Stats, &c.Inventory, &c.Equipment, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new character and returns it with ID and timestamps set.
//
// Precondition: c.Name, c.Owner, and c.Level must be non-empty.
// Postcondition: Returns the created character, or ErrCharacterNameTaken if the
// name is already in use. An existing character is never overwritten.
func (r *CharacterRepository) Create(ctx context.Context, c *character.Character) (*character.Character, error) {
	out, err := scanCharacter(r.db.QueryRow(ctx, `
		INSERT INTO characters (name, owner, level, pos_x, pos_y, stats, inventory, equipment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+characterColumns,
		c.Name, c.Owner, c.Level, c.Position.X, c.Position.Y,
		character.Document(c.Stats), character.Document(c.Inventory), character.Document(c.Equipment),
	))
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrCharacterNameTaken
		}
		return nil, fmt.Errorf("inserting character: %w", err)
	}
	return out, nil
}

// GetByName retrieves a character by its unique name.
//
// Postcondition: Returns the Character or ErrCharacterNotFound.
func (r *CharacterRepository) GetByName(ctx context.Context, name string) (*character.Character, error) {
	c, err := scanCharacter(r.db.QueryRow(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCharacterNotFound
		}
		return nil, fmt.Errorf("querying character: %w", err)
	}
	return c, nil
}

// ListByOwner returns all characters owned by the given player, oldest first.
//
// Postcondition: Returns a slice (may be empty) or a non-nil error.
func (r *CharacterRepository) ListByOwner(ctx context.Context, owner string) ([]*character.Character, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+characterColumns+` FROM characters WHERE owner = $1 ORDER BY created_at ASC, id ASC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("listing characters: %w", err)
	}
	chars, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*character.Character, error) {
		return scanCharacter(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning characters of %s: %w", owner, err)
	}
	return chars, nil
}

// CountByOwner returns how many characters the given player owns.
func (r *CharacterRepository) CountByOwner(ctx context.Context, owner string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM characters WHERE owner = $1`, owner,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting characters: %w", err)
	}
	return n, nil
}

// Update persists the shard-owned state of a character: its level, position,
// stats, inventory, and equipment.
//
// Postcondition: Returns nil on success, ErrCharacterNotFound if no row matched.
func (r *CharacterRepository) Update(ctx context.Context, c *character.Character) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE characters
		SET level = $2, pos_x = $3, pos_y = $4,
		    stats = $5, inventory = $6, equipment = $7, updated_at = NOW()
		WHERE name = $1`,
		c.Name, c.Level, c.Position.X, c.Position.Y,
		character.Document(c.Stats), character.Document(c.Inventory), character.Document(c.Equipment),
	)
	if err != nil {
		return fmt.Errorf("updating character: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCharacterNotFound
	}
	return nil
}
