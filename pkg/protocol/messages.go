// ABOUTME: Syncwatch protocol message type definitions
// ABOUTME: Defines the relay envelope, event names and sync-action payloads
package protocol

import (
	"encoding/json"
	"math"
)

// Relay event names
const (
	EventJoinRoom   = "join-room"
	EventLeaveRoom  = "leave-room"
	EventSyncAction = "sync-action"
)

// MessageType identifies a sync-action message
type MessageType string

// Sync message types. SEEK is accepted inbound but never emitted; PLAY always
// carries the position to seek to before resuming.
const (
	TypeLoad  MessageType = "LOAD"
	TypePlay  MessageType = "PLAY"
	TypePause MessageType = "PAUSE"
	TypeSeek  MessageType = "SEEK"

	// typeURLChange is the older name for LOAD, still seen from legacy peers
	typeURLChange MessageType = "URL_CHANGE"
)

// Envelope is the frame exchanged with the relay
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SyncAction is the data of a sync-action event
type SyncAction struct {
	RoomID  string      `json:"roomId"`
	Type    MessageType `json:"type"`
	Payload Payload     `json:"payload"`
}

// Payload holds the union of all sync-action payload fields.
// LOAD uses Locator, PLAY and SEEK use Position, PAUSE uses Position only
// when the sender snapshots position on pause.
type Payload struct {
	Locator  string   `json:"locator,omitempty"`
	Position *float64 `json:"position,omitempty"`
}

// wirePayload accepts the legacy field names on decode
type wirePayload struct {
	Locator  string   `json:"locator"`
	URL      string   `json:"url"`
	Position *float64 `json:"position"`
	Time     *float64 `json:"time"`
}

type wireAction struct {
	RoomID  string          `json:"roomId"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewLoad builds a LOAD action
func NewLoad(roomID, locator string) SyncAction {
	return SyncAction{RoomID: roomID, Type: TypeLoad, Payload: Payload{Locator: locator}}
}

// NewPlay builds a PLAY action at the given position in seconds
func NewPlay(roomID string, position float64) SyncAction {
	p := ClampPosition(position)
	return SyncAction{RoomID: roomID, Type: TypePlay, Payload: Payload{Position: &p}}
}

// NewPause builds a PAUSE action with an empty payload
func NewPause(roomID string) SyncAction {
	return SyncAction{RoomID: roomID, Type: TypePause}
}

// NewPauseAt builds a PAUSE action that snapshots the position
func NewPauseAt(roomID string, position float64) SyncAction {
	p := ClampPosition(position)
	return SyncAction{RoomID: roomID, Type: TypePause, Payload: Payload{Position: &p}}
}

// HasPosition reports whether the payload carries a position
func (p Payload) HasPosition() bool {
	return p.Position != nil
}

// PositionOr returns the payload position or def when absent
func (p Payload) PositionOr(def float64) float64 {
	if p.Position == nil {
		return def
	}
	return *p.Position
}

// ClampPosition maps negative and non-finite positions to 0
func ClampPosition(position float64) float64 {
	if math.IsNaN(position) || math.IsInf(position, 0) || position < 0 {
		return 0
	}
	return position
}
