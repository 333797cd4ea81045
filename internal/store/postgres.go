package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pixelwall/gateway-server-go/internal/config"
	apperrors "github.com/pixelwall/gateway-server-go/internal/errors"
)

// PGStore is the self-hosted grid store backend: the gateway owns the
// grid_cells table directly instead of calling the external store service.
type PGStore struct {
	db *sqlx.DB
}

func NewPGStore(db *sqlx.DB) *PGStore {
	return &PGStore{db: db}
}

// Init creates the table if needed and pre-populates every coordinate with
// the default color. The grid is dense from the start; cells are never
// created or deleted individually afterwards.
func (s *PGStore) Init(ctx context.Context) error {
	const createTable = `
		CREATE TABLE IF NOT EXISTS grid_cells (
			x          INT NOT NULL,
			y          INT NOT NULL,
			color      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (x, y)
		)`
	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return apperrors.StoreUnavailable(err)
	}

	const populate = `
		INSERT INTO grid_cells (x, y, color)
		SELECT gx, gy, $1
		FROM generate_series(0, $2) AS gx, generate_series(0, $2) AS gy
		ON CONFLICT (x, y) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, populate, config.DefaultColor, config.GridSize-1); err != nil {
		return apperrors.StoreUnavailable(err)
	}
	return nil
}

func (s *PGStore) ReadAll(ctx context.Context) (map[Coord]string, error) {
	var rows []struct {
		X     int    `db:"x"`
		Y     int    `db:"y"`
		Color string `db:"color"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT x, y, color FROM grid_cells`); err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}

	cells := make(map[Coord]string, len(rows))
	for _, row := range rows {
		cells[Coord{X: row.X, Y: row.Y}] = row.Color
	}
	return cells, nil
}

// WriteCell upserts one cell. Re-applying the same color is harmless; the
// returned timestamp is the store's write-acceptance time.
func (s *PGStore) WriteCell(ctx context.Context, c Coord, color string) (time.Time, error) {
	const upsert = `
		INSERT INTO grid_cells (x, y, color, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (x, y) DO UPDATE SET color = EXCLUDED.color, updated_at = now()
		RETURNING updated_at`

	var ts time.Time
	if err := s.db.GetContext(ctx, &ts, upsert, c.X, c.Y, color); err != nil {
		return time.Time{}, apperrors.StoreUnavailable(err)
	}
	return ts, nil
}

func (s *PGStore) ResetAll(ctx context.Context) error {
	const reset = `UPDATE grid_cells SET color = $1, updated_at = now()`
	if _, err := s.db.ExecContext(ctx, reset, config.DefaultColor); err != nil {
		return apperrors.StoreUnavailable(err)
	}
	return nil
}
