// ABOUTME: Session controller package
// ABOUTME: Room membership, adapter selection and the user-facing watch surface
// Package session ties a transport channel, a sync engine and player
// adapters together for one room at a time.
//
// Example:
//
//	sess, err := session.New(session.Config{
//		Channel: transport.NewWebSocket(transport.Config{ServerURL: "relay.local:8080"}),
//		Factory: factory,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sess.Close()
//
//	if err := sess.EnterRoom(ctx, "movie-night", "https://youtu.be/dQw4w9WgXcQ"); err != nil {
//		log.Fatal(err)
//	}
//	sess.TogglePlayback()
package session
