package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelwall/gateway-server-go/internal/config"
	apperrors "github.com/pixelwall/gateway-server-go/internal/errors"
	"github.com/pixelwall/gateway-server-go/internal/store"
)

// memStore is a full in-memory grid: dense from construction, like the real
// store after initialization.
type memStore struct {
	mu    sync.Mutex
	cells map[store.Coord]string
}

func newMemStore() *memStore {
	cells := make(map[store.Coord]string, config.GridSize*config.GridSize)
	for x := 0; x < config.GridSize; x++ {
		for y := 0; y < config.GridSize; y++ {
			cells[store.Coord{X: x, Y: y}] = config.DefaultColor
		}
	}
	return &memStore{cells: cells}
}

func (s *memStore) ReadAll(ctx context.Context) (map[store.Coord]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[store.Coord]string, len(s.cells))
	for c, color := range s.cells {
		out[c] = color
	}
	return out, nil
}

func (s *memStore) WriteCell(ctx context.Context, c store.Coord, color string) (time.Time, error) {
	s.mu.Lock()
	s.cells[c] = color
	s.mu.Unlock()
	return time.Now(), nil
}

func (s *memStore) ResetAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.cells {
		s.cells[c] = config.DefaultColor
	}
	return nil
}

type failingStore struct{}

func (failingStore) ReadAll(context.Context) (map[store.Coord]string, error) {
	return nil, apperrors.StoreUnavailable(errors.New("connection refused"))
}

func (failingStore) WriteCell(context.Context, store.Coord, string) (time.Time, error) {
	return time.Time{}, apperrors.StoreUnavailable(errors.New("connection refused"))
}

func (failingStore) ResetAll(context.Context) error {
	return apperrors.StoreUnavailable(errors.New("connection refused"))
}

type canvasResponse struct {
	GridSize int          `json:"gridSize"`
	Cells    []canvasCell `json:"cells"`
}

func getCanvas(t *testing.T, h *CanvasHandler) canvasResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp canvasResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGetCanvas(t *testing.T) {
	st := newMemStore()
	_, err := st.WriteCell(context.Background(), store.Coord{X: 5, Y: 5}, "#FF0000")
	require.NoError(t, err)

	resp := getCanvas(t, NewCanvasHandler(st))

	assert.Equal(t, config.GridSize, resp.GridSize)
	assert.Len(t, resp.Cells, config.GridSize*config.GridSize)

	colors := make(map[store.Coord]string, len(resp.Cells))
	for _, c := range resp.Cells {
		colors[store.Coord{X: c.X, Y: c.Y}] = c.Color
	}
	assert.Equal(t, "#FF0000", colors[store.Coord{X: 5, Y: 5}])
	assert.Equal(t, config.DefaultColor, colors[store.Coord{X: 0, Y: 0}])
}

func TestResetIsIdempotent(t *testing.T) {
	st := newMemStore()
	h := NewCanvasHandler(st)

	for _, c := range []store.Coord{{X: 1, Y: 2}, {X: 49, Y: 49}, {X: 0, Y: 0}} {
		_, err := st.WriteCell(context.Background(), c, "#123456")
		require.NoError(t, err)
	}

	// Reset twice: the second pass must be a no-op.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/reset", nil)
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := getCanvas(t, h)
		require.Len(t, resp.Cells, config.GridSize*config.GridSize)
		for _, c := range resp.Cells {
			require.Equal(t, config.DefaultColor, c.Color)
		}
	}
}

func TestCanvasStoreUnavailable(t *testing.T) {
	h := NewCanvasHandler(failingStore{})

	t.Run("get", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("reset", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/reset", nil)
		rec := httptest.NewRecorder()
		h.Routes().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
