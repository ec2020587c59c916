// ABOUTME: Sync engine package
// ABOUTME: Two-way playback synchronization with echo suppression
// Package engine keeps a local player and a room of peers in agreement.
//
// Local player events become outbound sync actions; inbound actions are
// applied to the player. Applying an inbound action arms a suppression
// window during which the player's own reaction to that command is
// swallowed, so a peer's PLAY never echoes back into the room.
//
// Explicit user actions (Load, Toggle) always emit, whether or not a
// window is open. Only events originating in the adapter are suppressed.
package engine
