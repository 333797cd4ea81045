package store

import (
	"context"
	"time"
)

// Coord addresses one cell of the grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Store is the durable grid state. WriteCell returns the store's
// write-acceptance timestamp and must be idempotent under retry: re-applying
// the same coordinate and color is a no-op for correctness even if it bumps
// the timestamp. Errors wrap apperrors.ErrStoreUnavailable.
type Store interface {
	ReadAll(ctx context.Context) (map[Coord]string, error)
	WriteCell(ctx context.Context, c Coord, color string) (time.Time, error)
	ResetAll(ctx context.Context) error
}
