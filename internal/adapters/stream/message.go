// Package stream is the websocket surface: status broadcast to viewers and
// placement commands to actor clients.
package stream

import (
	"encoding/json"
	"time"

	"github.com/okian/saltyscope/internal/domain/model"
)

// Role of a connected client.
type Role string

// Roles. Viewers only receive status; actors also receive placement commands.
const (
	RoleViewer Role = "viewer"
	RoleActor  Role = "actor"
)

// ParseRole defaults to viewer.
func ParseRole(s string) Role {
	if Role(s) == RoleActor {
		return RoleActor
	}
	return RoleViewer
}

// Message types.
const (
	TypeStatus = "status"
	TypePlace  = "place"
	TypeAck    = "ack"
	TypePing   = "ping"
	TypePong   = "pong"
	TypeError  = "error"
)

// ServerMessage is sent to clients.
type ServerMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Status    *model.Snapshot `json:"status,omitempty"`
	Slot      int             `json:"slot,omitempty"`
	Amount    int64           `json:"amount,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ClientMessage is received from clients. Actors answer a place with an ack
// carrying the same ID.
type ClientMessage struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ack struct {
	ok  bool
	msg string
}
