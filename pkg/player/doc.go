// ABOUTME: Player adapter package
// ABOUTME: One capability set over streaming-embed, native-media and injected-script players
// Package player defines the Adapter contract that normalizes a concrete
// player into seek/play/pause/volume/load operations and a stream of local
// events.
//
// Implementations live in sub-packages:
//   - embed: streaming players driven through the iframe postMessage API
//   - native: media elements with direct position control (mpv, in-process audio)
//   - sandbox: players inside arbitrary web pages reached by an injected script
//
// Positions are always seconds at this boundary. Adapters convert to their
// backend's native unit internally.
package player
