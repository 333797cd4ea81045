package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelwall/gateway-server-go/internal/gateway"
	"github.com/pixelwall/gateway-server-go/internal/protocol"
	"github.com/pixelwall/gateway-server-go/internal/relay"
)

// loopbackBus delivers publishes synchronously to local subscribers, like a
// healthy relay serving a single instance.
type loopbackBus struct {
	mu   sync.Mutex
	subs map[string][]relay.Handler
	kv   map[string][]byte
}

func newLoopbackBus() *loopbackBus {
	return &loopbackBus{
		subs: make(map[string][]relay.Handler),
		kv:   make(map[string][]byte),
	}
}

func (b *loopbackBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	handlers := append([]relay.Handler(nil), b.subs[channel]...)
	b.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (b *loopbackBus) Subscribe(ctx context.Context, channel string, h relay.Handler) {
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], h)
	b.mu.Unlock()
}

func (b *loopbackBus) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	b.kv[key] = value
	b.mu.Unlock()
	return nil
}

func (b *loopbackBus) GetAllMatching(ctx context.Context, pattern string) (map[string][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	result := make(map[string][]byte)
	for key, value := range b.kv {
		if strings.HasPrefix(key, prefix) {
			result[key] = value
		}
	}
	return result, nil
}

func dialTestServer(t *testing.T) *websocket.Conn {
	t.Helper()

	gw := gateway.New("test-instance", newLoopbackBus(), newMemStore(), gateway.Options{
		PresenceTTL:      time.Minute,
		PresenceInterval: time.Hour,
		PingInterval:     time.Hour,
	})
	gw.Start()
	t.Cleanup(gw.Stop)

	r := chi.NewRouter()
	r.Get("/ws", NewWSHandler(gw).ServeHTTP)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	return conn
}

// readUntilType skips frames until one with the wanted discriminator
// arrives. Presence pushes interleave with everything else, so tests filter
// rather than assume strict ordering.
func readUntilType(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for time.Now().Before(deadline) {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg["type"] == typ {
			return msg
		}
	}
	t.Fatalf("no %q frame received before deadline", typ)
	return nil
}

func TestWebSocketSession(t *testing.T) {
	conn := dialTestServer(t)

	welcome := readUntilType(t, conn, protocol.TypeConnected)
	assert.NotEmpty(t, welcome["clientId"])

	t.Run("valid edit is broadcast back", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]any{
			"type": "pixel_update", "x": 5, "y": 5, "color": "#FF0000",
		}))

		updated := readUntilType(t, conn, protocol.TypePixelUpdated)
		assert.Equal(t, float64(5), updated["x"])
		assert.Equal(t, float64(5), updated["y"])
		assert.Equal(t, "#FF0000", updated["color"])
		assert.Equal(t, "Anonymous", updated["username"])
	})

	t.Run("out of bounds edit gets an error reply", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]any{
			"type": "pixel_update", "x": 50, "y": 5, "color": "#FF0000",
		}))

		errMsg := readUntilType(t, conn, protocol.TypeError)
		assert.Contains(t, errMsg["message"], "x")
	})

	t.Run("ping gets a pong", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))

		pong := readUntilType(t, conn, protocol.TypePong)
		assert.NotZero(t, pong["timestamp"])
	})

	t.Run("set_username shows up in the user list", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]any{
			"type": "set_username", "username": "alice",
		}))

		users := readUntilType(t, conn, protocol.TypeUserList)
		assert.Contains(t, users["users"], "alice")
	})
}
