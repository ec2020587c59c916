// ABOUTME: Room-scoped transport channel package
// ABOUTME: WebSocket and in-memory implementations of the relay channel
// Package transport provides the room-scoped publish/subscribe channel that
// links a client to a relay.
//
// The channel is deliberately best-effort: emits while disconnected are
// dropped, there is no retry queue, and connection health is a point-in-time
// boolean that consumers poll. At most one handler is active per event name.
//
// Example:
//
//	ch := transport.NewWebSocket(transport.Config{ServerURL: "localhost:8937"})
//	ch.On(protocol.EventSyncAction, func(data json.RawMessage) { ... })
//	ch.JoinRoom(ctx, "movie-night")
//	ch.Emit(protocol.EventSyncAction, protocol.NewPause("movie-night"))
package transport
