package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/shardgate/internal/shard"
)

// LevelRepository persists the shard list so the directory can be rebuilt
// without the init file.
type LevelRepository struct {
	db *pgxpool.Pool
}

// NewLevelRepository creates a LevelRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewLevelRepository(db *pgxpool.Pool) *LevelRepository {
	return &LevelRepository{db: db}
}

// ReplaceAll clears the levels table and inserts descriptors in one transaction.
//
// Postcondition: Other transactions observe either the previous rows or the
// new rows, never a mix.
func (r *LevelRepository) ReplaceAll(ctx context.Context, descriptors []shard.Descriptor) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM levels`); err != nil {
			return fmt.Errorf("clearing levels: %w", err)
		}

		batch := &pgx.Batch{}
		for _, d := range descriptors {
			batch.Queue(
				`INSERT INTO levels (name, key, address, port) VALUES ($1, $2, $3, $4)`,
				d.Level, d.Key, d.Address, d.Port,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting levels: %w", err)
		}
		return nil
	})
}

// List returns every persisted shard descriptor ordered by level name.
func (r *LevelRepository) List(ctx context.Context) ([]shard.Descriptor, error) {
	rows, err := r.db.Query(ctx, `SELECT name, key, address, port FROM levels ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing levels: %w", err)
	}
	descs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shard.Descriptor, error) {
		var d shard.Descriptor
		err := row.Scan(&d.Level, &d.Key, &d.Address, &d.Port)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning level row: %w", err)
	}
	return descs, nil
}
