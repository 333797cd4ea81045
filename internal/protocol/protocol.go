package protocol

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/pixelwall/gateway-server-go/internal/config"
	apperrors "github.com/pixelwall/gateway-server-go/internal/errors"
)

// Message type discriminators on the wire.
const (
	TypeSetUsername = "set_username"
	TypePixelUpdate = "pixel_update"
	TypePing        = "ping"

	TypeConnected    = "connected"
	TypePixelUpdated = "pixel_updated"
	TypeStats        = "stats"
	TypeUserList     = "user_list"
	TypePong         = "pong"
	TypeError        = "error"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Inbound is the closed set of client messages. Every message is decoded
// into exactly one variant at the boundary; handlers switch exhaustively.
type Inbound interface {
	isInbound()
}

type SetUsername struct {
	Username string
}

type PixelUpdate struct {
	X        int
	Y        int
	Color    string
	Username string
}

type Ping struct{}

// Unknown carries an unrecognized type discriminator. The gateway logs and
// ignores it.
type Unknown struct {
	Type string
}

func (SetUsername) isInbound() {}
func (PixelUpdate) isInbound() {}
func (Ping) isInbound()        {}
func (Unknown) isInbound()     {}

type envelope struct {
	Type     string          `json:"type"`
	Username json.RawMessage `json:"username"`
	X        *int            `json:"x"`
	Y        *int            `json:"y"`
	Color    *string         `json:"color"`
}

// Decode parses one client frame into its variant. A JSON-level failure
// (including wrong field types) returns an error; the caller replies with a
// generic format error. Field-level protocol violations are reported by
// Validate, not here.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	switch env.Type {
	case TypeSetUsername:
		// A missing or non-string username decodes to the empty string,
		// which the registry rejects by leaving the name unset.
		var name string
		if len(env.Username) > 0 {
			_ = json.Unmarshal(env.Username, &name)
		}
		return SetUsername{Username: name}, nil

	case TypePixelUpdate:
		msg := PixelUpdate{}
		if env.X != nil {
			msg.X = *env.X
		}
		if env.Y != nil {
			msg.Y = *env.Y
		}
		if env.Color != nil {
			msg.Color = *env.Color
		}
		if len(env.Username) > 0 {
			_ = json.Unmarshal(env.Username, &msg.Username)
		}
		if env.X == nil || env.Y == nil {
			return msg, apperrors.ValidationError("x and y coordinates are required")
		}
		if env.Color == nil {
			return msg, apperrors.MissingRequired("color")
		}
		return msg, nil

	case TypePing:
		return Ping{}, nil

	default:
		return Unknown{Type: env.Type}, nil
	}
}

// Validate checks coordinate bounds and color format. It runs locally with
// no network calls so invalid edits are rejected fast.
func (m PixelUpdate) Validate() error {
	if m.X < 0 || m.X >= config.GridSize {
		return apperrors.InvalidInput("x", fmt.Sprintf("must be between 0 and %d", config.GridSize-1))
	}
	if m.Y < 0 || m.Y >= config.GridSize {
		return apperrors.InvalidInput("y", fmt.Sprintf("must be between 0 and %d", config.GridSize-1))
	}
	if !colorPattern.MatchString(m.Color) {
		return apperrors.InvalidInput("color", "must match #RRGGBB")
	}
	return nil
}

// ValidColor reports whether s is a well-formed cell color.
func ValidColor(s string) bool {
	return colorPattern.MatchString(s)
}

// Outbound messages. PixelUpdated doubles as the relay payload: the bytes
// published to the edit channel are delivered to clients unchanged.

type Connected struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	ClientID string `json:"clientId"`
}

type PixelUpdated struct {
	Type      string `json:"type"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Color     string `json:"color"`
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}

type Stats struct {
	Type        string `json:"type"`
	ActiveUsers int    `json:"activeUsers"`
	Timestamp   int64  `json:"timestamp"`
}

type UserList struct {
	Type      string   `json:"type"`
	Users     []string `json:"users"`
	Timestamp int64    `json:"timestamp"`
}

type Pong struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewConnected(clientID string) Connected {
	return Connected{Type: TypeConnected, Message: "Connected to pixel canvas", ClientID: clientID}
}

func NewPixelUpdated(x, y int, color, username string, ts int64) PixelUpdated {
	return PixelUpdated{Type: TypePixelUpdated, X: x, Y: y, Color: color, Username: username, Timestamp: ts}
}

func NewStats(activeUsers int, ts int64) Stats {
	return Stats{Type: TypeStats, ActiveUsers: activeUsers, Timestamp: ts}
}

func NewUserList(users []string, ts int64) UserList {
	if users == nil {
		users = []string{}
	}
	return UserList{Type: TypeUserList, Users: users, Timestamp: ts}
}

func NewPong(ts int64) Pong {
	return Pong{Type: TypePong, Timestamp: ts}
}

func NewError(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: message}
}

// Encode marshals an outbound message. Outbound types contain nothing that
// can fail to marshal, so errors are treated as a bug and reported empty.
func Encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
