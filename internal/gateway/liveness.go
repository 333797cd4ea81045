package gateway

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pixelwall/gateway-server-go/internal/session"
)

// livenessLoop probes every session each interval and evicts those that did
// not answer the previous probe. A zombie connection lives at most about two
// intervals.
func (g *Gateway) livenessLoop() {
	ticker := time.NewTicker(g.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			g.sweepSessions()
		}
	}
}

func (g *Gateway) sweepSessions() {
	evicted := 0

	g.registry.ForEach(func(s *session.Session) {
		if !s.IsOpen() {
			g.registry.Remove(s.ID)
			evicted++
			return
		}
		if !s.Alive() {
			log.Info().Str("sessionId", s.ID).Msg("evicting unresponsive session")
			s.Close()
			g.registry.Remove(s.ID)
			evicted++
			return
		}
		s.ClearAlive()
		if err := s.Probe(); err != nil {
			// Probe write failed: the transport is already gone.
			log.Debug().Err(err).Str("sessionId", s.ID).Msg("liveness probe failed")
			s.Close()
			g.registry.Remove(s.ID)
			evicted++
		}
	})

	if evicted > 0 {
		log.Info().Int("count", evicted).Msg("removed dead sessions")
		g.publishPresence()
	}
}
