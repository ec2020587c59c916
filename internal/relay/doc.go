// Package relay implements the room fan-out server that sessions connect to.
//
// Clients speak the transport envelope over a websocket at /ws. join-room and
// leave-room update membership; a sync-action is forwarded to every other
// member of its room. The sender must be a member of that room.
//
// Several relays can share rooms through a Redis backplane:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	srv := relay.New(relay.Config{Addr: ":8080", Redis: rdb})
//	err := srv.Run(ctx)
//
// Delivery is best-effort. Nothing is persisted.
package relay
