package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/pixelwall/gateway-server-go/internal/errors"
	"github.com/pixelwall/gateway-server-go/internal/protocol"
	redisclient "github.com/pixelwall/gateway-server-go/internal/redis"
	"github.com/pixelwall/gateway-server-go/internal/registry"
	"github.com/pixelwall/gateway-server-go/internal/relay"
	"github.com/pixelwall/gateway-server-go/internal/session"
	"github.com/pixelwall/gateway-server-go/internal/store"
)

const busCallTimeout = 5 * time.Second

type Options struct {
	PresenceTTL      time.Duration
	PresenceInterval time.Duration
	PingInterval     time.Duration
}

func (o *Options) applyDefaults() {
	if o.PresenceTTL == 0 {
		o.PresenceTTL = 60 * time.Second
	}
	if o.PresenceInterval == 0 {
		o.PresenceInterval = 30 * time.Second
	}
	if o.PingInterval == 0 {
		o.PingInterval = 30 * time.Second
	}
}

// Gateway is one instance of the fan-out engine: it owns this instance's
// connection registry, relays accepted edits through the bus, aggregates
// presence across instances, and evicts dead sessions.
type Gateway struct {
	instanceID string
	registry   *registry.Registry
	bus        relay.Bus
	store      store.Store
	opts       Options

	// degraded is set while the relay bus is unreachable and the instance
	// serves local-only broadcasts.
	degraded atomic.Bool

	storeWriteFailures atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

func New(instanceID string, bus relay.Bus, gridStore store.Store, opts Options) *Gateway {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		instanceID: instanceID,
		registry:   registry.New(),
		bus:        bus,
		store:      gridStore,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the relay channels and launches the presence heartbeat
// and liveness monitor.
func (g *Gateway) Start() {
	g.bus.Subscribe(g.ctx, redisclient.EditChannel, g.onEditMessage)
	g.bus.Subscribe(g.ctx, redisclient.PresenceChannel, g.onPresenceNotice)

	go g.presenceLoop()
	go g.livenessLoop()

	log.Info().
		Str("instanceId", g.instanceID).
		Dur("presenceInterval", g.opts.PresenceInterval).
		Dur("pingInterval", g.opts.PingInterval).
		Msg("gateway started")
}

// Stop cancels the background loops and closes every local session. The
// instance's presence lease is left to expire by TTL.
func (g *Gateway) Stop() {
	g.cancel()
	g.registry.ForEach(func(s *session.Session) {
		s.Close()
		g.registry.Remove(s.ID)
	})
	log.Info().Str("instanceId", g.instanceID).Msg("gateway stopped")
}

func (g *Gateway) InstanceID() string {
	return g.instanceID
}

// Degraded reports whether the last relay bus interaction failed. Exposed on
// /health as a readiness signal.
func (g *Gateway) Degraded() bool {
	return g.degraded.Load()
}

// StoreWriteFailures counts durable writes that were lost after their
// broadcast already went out.
func (g *Gateway) StoreWriteFailures() int64 {
	return g.storeWriteFailures.Load()
}

// LocalSnapshot returns this instance's connection count and distinct
// display names.
func (g *Gateway) LocalSnapshot() (int, []string) {
	return g.registry.Snapshot()
}

// Connect registers a session and sends the welcome acknowledgment. The
// presence publish loops back through the bus so the joining client sees
// correct global counts promptly.
func (g *Gateway) Connect(s *session.Session) {
	g.registry.Add(s)
	s.Send(protocol.Encode(protocol.NewConnected(s.ID)))

	log.Info().
		Str("sessionId", s.ID).
		Int("localSessions", g.registry.Len()).
		Msg("session connected")

	g.publishPresence()
}

// Disconnect removes a session. Liveness eviction and client-initiated
// disconnects both land here.
func (g *Gateway) Disconnect(s *session.Session) {
	s.Close()
	g.registry.Remove(s.ID)

	log.Info().
		Str("sessionId", s.ID).
		Int("localSessions", g.registry.Len()).
		Msg("session disconnected")

	g.publishPresence()
}

// HandleMessage processes one inbound frame from s. The caller's read loop
// invokes it synchronously, so a single session's messages are handled in
// the order received.
func (g *Gateway) HandleMessage(s *session.Session, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok {
			s.Send(protocol.Encode(protocol.NewError(appErr.Message)))
		} else {
			s.Send(protocol.Encode(protocol.NewError("Invalid message format")))
		}
		return
	}

	switch m := msg.(type) {
	case protocol.SetUsername:
		// Invalid names leave the session anonymous; no error reply.
		if g.registry.SetDisplayName(s.ID, m.Username) {
			g.publishPresence()
		}

	case protocol.PixelUpdate:
		g.handleEdit(s, m)

	case protocol.Ping:
		s.Send(protocol.Encode(protocol.NewPong(time.Now().UnixMilli())))

	case protocol.Unknown:
		log.Debug().
			Str("sessionId", s.ID).
			Str("type", m.Type).
			Msg("ignoring unrecognized message type")
	}
}

func (g *Gateway) busContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(g.ctx, busCallTimeout)
}
