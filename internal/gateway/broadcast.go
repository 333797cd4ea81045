package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/pixelwall/gateway-server-go/internal/errors"
	"github.com/pixelwall/gateway-server-go/internal/protocol"
	redisclient "github.com/pixelwall/gateway-server-go/internal/redis"
	"github.com/pixelwall/gateway-server-go/internal/session"
	"github.com/pixelwall/gateway-server-go/internal/store"
)

const anonymousName = "Anonymous"

const persistTimeout = 10 * time.Second

// handleEdit runs the optimistic broadcast pipeline: validate locally,
// publish to the relay without waiting, and persist concurrently. The store
// write races the broadcast on purpose; serializing them would cost the
// latency that defines this system.
func (g *Gateway) handleEdit(s *session.Session, m protocol.PixelUpdate) {
	if err := m.Validate(); err != nil {
		appErr, _ := apperrors.AsAppError(err)
		s.Send(protocol.Encode(protocol.NewError(appErr.Message)))
		return
	}

	event := protocol.NewPixelUpdated(m.X, m.Y, m.Color, g.authorName(m, s), time.Now().UnixMilli())
	payload := protocol.Encode(event)

	go g.persistEdit(store.Coord{X: m.X, Y: m.Y}, m.Color)

	ctx, cancel := g.busContext()
	defer cancel()
	if err := g.bus.Publish(ctx, redisclient.EditChannel, payload); err != nil {
		// Local sessions still see the edit; other instances catch up when
		// the bus recovers.
		g.degraded.Store(true)
		log.Warn().Err(err).
			Int("x", m.X).Int("y", m.Y).
			Msg("relay publish failed, broadcasting to local sessions only")
		g.deliverLocal(payload)
		return
	}
	g.degraded.Store(false)
}

// onEditMessage is the edit-relay subscription callback. Local fan-out
// happens only here under a healthy bus, so the originating instance
// delivers each edit exactly once, through the same path as everyone else.
func (g *Gateway) onEditMessage(payload []byte) {
	g.deliverLocal(payload)
}

func (g *Gateway) deliverLocal(payload []byte) {
	g.registry.ForEachLive(func(s *session.Session) {
		s.Send(payload)
	})
}

// persistEdit issues the durable write. Failures are logged and counted
// against nothing: the broadcast already happened and is never retracted.
func (g *Gateway) persistEdit(c store.Coord, color string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if _, err := g.store.WriteCell(ctx, c, color); err != nil {
		g.storeWriteFailures.Add(1)
		log.Error().Err(err).
			Int("x", c.X).Int("y", c.Y).Str("color", color).
			Msg("grid store write failed, broadcast not retracted")
	}
}

// authorName resolves the display name attached to a broadcast: the edit's
// own username field wins, then the session's name, then Anonymous.
func (g *Gateway) authorName(m protocol.PixelUpdate, s *session.Session) string {
	if name := strings.TrimSpace(m.Username); name != "" {
		return name
	}
	if name := s.DisplayName(); name != "" {
		return name
	}
	return anonymousName
}
