package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/pixelwall/gateway-server-go/internal/gateway"
	"github.com/pixelwall/gateway-server-go/internal/session"
)

const maxMessageSize = 4096

// WSHandler upgrades HTTP requests to WebSocket sessions and runs them
// against the gateway.
type WSHandler struct {
	gw       *gateway.Gateway
	upgrader websocket.Upgrader
}

func NewWSHandler(gw *gateway.Gateway) *WSHandler {
	return &WSHandler{
		gw: gw,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	sess := session.New(uuid.NewString(), conn)

	h.gw.Connect(sess)
	defer h.gw.Disconnect(sess)

	go sess.WritePump()
	h.readPump(sess, conn)
}

// readPump processes inbound frames in order until the connection drops.
func (h *WSHandler) readPump(sess *session.Session, conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("sessionId", sess.ID).Msg("websocket read error")
			}
			return
		}
		h.gw.HandleMessage(sess, data)
	}
}
