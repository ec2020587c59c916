// ABOUTME: Transport channel contract
// ABOUTME: Shared interface for relay channels and optional status notifications
package transport

import (
	"context"
	"encoding/json"
)

// Handler receives the data of one inbound event
type Handler func(data json.RawMessage)

// Channel is a bidirectional, room-scoped publish/subscribe link to a relay.
//
// None of the methods report failures: a link that cannot be established
// shows up only as Connected() returning false.
type Channel interface {
	// Connect establishes the link. Calling it while connected is a no-op.
	Connect(ctx context.Context)

	// Disconnect closes the link
	Disconnect()

	// JoinRoom connects when needed and announces membership of roomID
	JoinRoom(ctx context.Context, roomID string)

	// LeaveRoom withdraws membership of roomID
	LeaveRoom(roomID string)

	// Emit sends an event, silently dropping it while disconnected
	Emit(event string, data any)

	// On registers the handler for an event name, replacing any previous one
	On(event string, handler Handler)

	// Off removes the handler for an event name
	Off(event string)

	// Connected reports the link state at this instant
	Connected() bool
}

// StatusNotifier is implemented by channels that can push link state changes
// instead of being polled.
type StatusNotifier interface {
	StatusChanges() <-chan bool
}
