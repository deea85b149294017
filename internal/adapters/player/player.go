// Package player drives the local media element. The default build ships a
// simulated playback clock so the tooling works anywhere; the gst build tag
// swaps in a GStreamer playbin for real playback.
package player

// Config configures a playback driver.
type Config struct {
	// URI is the media location. The simulated driver ignores it beyond
	// requiring it to be set.
	URI string

	// OnMediaReady fires once when the media element can accept seeks.
	// OnSeekComplete fires after each requested seek lands. Both callbacks
	// run on driver goroutines.
	OnMediaReady   func()
	OnSeekComplete func()
}
