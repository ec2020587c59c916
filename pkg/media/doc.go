// ABOUTME: Media source resolution package
// ABOUTME: Classifies locators and extracts streaming video ids
// Package media resolves user-supplied locators into media sources.
//
// A locator containing a known streaming host is a streaming-embed source
// and carries the 11-character video id when one can be extracted. Every
// other locator is a native-media source played directly from its URL or
// path.
//
// Example:
//
//	src := media.Resolve("https://youtu.be/dQw4w9WgXcQ")
//	// src.Kind == media.KindStreamingEmbed, src.VideoID == "dQw4w9WgXcQ"
package media
