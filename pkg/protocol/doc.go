// ABOUTME: Syncwatch wire protocol package
// ABOUTME: Defines the relay envelope and the sync-action message codec
// Package protocol implements the Syncwatch wire protocol.
//
// Every frame exchanged with a relay is an Envelope naming an event
// (join-room, leave-room, sync-action) and carrying its data. The
// sync-action event multiplexes the LOAD, PLAY and PAUSE messages that keep
// the players of one room in lockstep.
//
// Example:
//
//	frame, err := protocol.EncodeEnvelope(protocol.EventSyncAction,
//	    protocol.NewPlay("movie-night", 42.5))
//	...
//	action, err := protocol.DecodeSyncAction(env.Data)
package protocol
