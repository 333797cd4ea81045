package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/pixelwall/gateway-server-go/internal/config"
	"github.com/pixelwall/gateway-server-go/internal/httputil"
	"github.com/pixelwall/gateway-server-go/internal/store"
)

// CanvasHandler serves the current grid over plain HTTP so a joining client
// can paint the initial canvas before live edits start arriving.
type CanvasHandler struct {
	store store.Store
}

func NewCanvasHandler(gridStore store.Store) *CanvasHandler {
	return &CanvasHandler{store: gridStore}
}

func (h *CanvasHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.GetCanvas)
	r.Post("/reset", h.Reset)

	return r
}

type canvasCell struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color"`
}

// GET /canvas
func (h *CanvasHandler) GetCanvas(w http.ResponseWriter, r *http.Request) {
	cells, err := h.store.ReadAll(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to read grid")
		httputil.WriteError(w, err)
		return
	}

	out := make([]canvasCell, 0, len(cells))
	for coord, color := range cells {
		out = append(out, canvasCell{X: coord.X, Y: coord.Y, Color: color})
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"gridSize": config.GridSize,
		"cells":    out,
	})
}

// POST /canvas/reset
func (h *CanvasHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.store.ResetAll(r.Context()); err != nil {
		log.Error().Err(err).Msg("failed to reset grid")
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
