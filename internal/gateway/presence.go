package gateway

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pixelwall/gateway-server-go/internal/protocol"
	redisclient "github.com/pixelwall/gateway-server-go/internal/redis"
	"github.com/pixelwall/gateway-server-go/internal/session"
)

// instanceSnapshot is one instance's membership lease on the presence
// side-channel. It expires by TTL; a crashed instance's entry simply
// disappears without anyone cleaning it up.
type instanceSnapshot struct {
	InstanceID string   `json:"instanceId"`
	Count      int      `json:"count"`
	Names      []string `json:"names"`
	UpdatedAt  int64    `json:"updatedAt"`
}

type presenceNotice struct {
	InstanceID string `json:"instanceId"`
}

// publishPresence writes this instance's snapshot under its lease key and
// nudges every instance (self included, via loopback) to refresh. When the
// bus is down, local sessions still get instance-local counts.
func (g *Gateway) publishPresence() {
	count, names := g.registry.Snapshot()
	payload, _ := json.Marshal(instanceSnapshot{
		InstanceID: g.instanceID,
		Count:      count,
		Names:      names,
		UpdatedAt:  time.Now().UnixMilli(),
	})

	ctx, cancel := g.busContext()
	defer cancel()

	if err := g.bus.SetWithExpiry(ctx, redisclient.PresenceKey(g.instanceID), payload, g.opts.PresenceTTL); err != nil {
		g.degraded.Store(true)
		log.Warn().Err(err).Msg("presence lease write failed, pushing local-only presence")
		g.pushPresence(count, names)
		return
	}

	notice, _ := json.Marshal(presenceNotice{InstanceID: g.instanceID})
	if err := g.bus.Publish(ctx, redisclient.PresenceChannel, notice); err != nil {
		g.degraded.Store(true)
		log.Warn().Err(err).Msg("presence notice publish failed, pushing local-only presence")
		g.pushPresence(count, names)
		return
	}
	g.degraded.Store(false)
}

// onPresenceNotice is the presence-relay subscription callback.
func (g *Gateway) onPresenceNotice([]byte) {
	g.refreshPresence()
}

// refreshPresence recomputes the global view from all non-expired leases and
// pushes it to local sessions. No instance needs to know how many instances
// exist; whatever the scan returns is the membership.
func (g *Gateway) refreshPresence() {
	ctx, cancel := g.busContext()
	defer cancel()

	entries, err := g.bus.GetAllMatching(ctx, redisclient.PresenceKeyPattern)
	if err != nil {
		g.degraded.Store(true)
		log.Warn().Err(err).Msg("presence scan failed, pushing local-only presence")
		count, names := g.registry.Snapshot()
		g.pushPresence(count, names)
		return
	}
	g.degraded.Store(false)

	total := 0
	nameSet := make(map[string]struct{})
	for key, raw := range entries {
		var snap instanceSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("skipping malformed presence entry")
			continue
		}
		total += snap.Count
		for _, name := range snap.Names {
			nameSet[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)

	g.pushPresence(total, names)
}

func (g *Gateway) pushPresence(total int, names []string) {
	now := time.Now().UnixMilli()
	stats := protocol.Encode(protocol.NewStats(total, now))
	users := protocol.Encode(protocol.NewUserList(names, now))

	g.registry.ForEachLive(func(s *session.Session) {
		s.Send(stats)
		s.Send(users)
	})
}

// presenceLoop is the heartbeat: even with no membership changes the lease
// is renewed well inside its TTL, and the view is recomputed in case another
// instance expired.
func (g *Gateway) presenceLoop() {
	ticker := time.NewTicker(g.opts.PresenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			g.publishPresence()
			g.refreshPresence()
		}
	}
}
