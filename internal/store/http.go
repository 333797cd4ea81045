package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pixelwall/gateway-server-go/internal/config"
	apperrors "github.com/pixelwall/gateway-server-go/internal/errors"
)

// HTTPStore talks to the external grid store service:
// GET /cells, PUT /cells, POST /reset. Transport errors are retried once;
// writes are idempotent so the retry is safe.
type HTTPStore struct {
	baseURL string
	client  *http.Client
}

func NewHTTPStore(baseURL string) *HTTPStore {
	return &HTTPStore{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: config.StoreRequestTimeout,
		},
	}
}

type cellJSON struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color"`
}

type readAllResponse struct {
	Cells []cellJSON `json:"cells"`
}

type writeCellResponse struct {
	Timestamp int64 `json:"timestamp"`
}

func (s *HTTPStore) ReadAll(ctx context.Context) (map[Coord]string, error) {
	body, err := s.do(ctx, http.MethodGet, "/cells", nil)
	if err != nil {
		return nil, err
	}

	var resp readAllResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apperrors.StoreUnavailable(fmt.Errorf("decode cells: %w", err))
	}

	cells := make(map[Coord]string, len(resp.Cells))
	for _, c := range resp.Cells {
		cells[Coord{X: c.X, Y: c.Y}] = c.Color
	}
	return cells, nil
}

func (s *HTTPStore) WriteCell(ctx context.Context, c Coord, color string) (time.Time, error) {
	payload, _ := json.Marshal(cellJSON{X: c.X, Y: c.Y, Color: color})

	body, err := s.do(ctx, http.MethodPut, "/cells", payload)
	if err != nil {
		return time.Time{}, err
	}

	var resp writeCellResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return time.Time{}, apperrors.StoreUnavailable(fmt.Errorf("decode write response: %w", err))
	}
	return time.UnixMilli(resp.Timestamp), nil
}

func (s *HTTPStore) ResetAll(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodPost, "/reset", nil)
	return err
}

func (s *HTTPStore) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	body, err := s.doOnce(ctx, method, path, payload)
	if err == nil {
		return body, nil
	}
	if ctx.Err() != nil {
		return nil, apperrors.StoreUnavailable(ctx.Err())
	}
	return s.doOnce(ctx, method, path, payload)
}

func (s *HTTPStore) doOnce(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.StoreUnavailable(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperrors.StoreUnavailable(fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode))
	}
	return body, nil
}
