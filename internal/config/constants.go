package config

import "time"

// Canvas geometry and cell format
const (
	GridSize     = 50
	DefaultColor = "#FFFFFF"
)

// Display name sanitization
const MaxDisplayNameLen = 32

// HTTP server timeouts
const (
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Grid store client
const (
	StoreRequestTimeout = 5 * time.Second
	DBPingTimeout       = 5 * time.Second
)

// Per-session outbound buffer; sends are dropped when it is full
const SessionSendBuffer = 256
