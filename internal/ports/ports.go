package ports

import (
	"time"

	"viewsync/pkg/vsp"
)

// Channel owns one duplex connection per active session. Connect is
// asynchronous; lifecycle and message events come back through callbacks
// registered with the channel implementation, tagged with the epoch they
// were armed under.
type Channel interface {
	Connect(videoID string, epoch uint64)
	Disconnect()
	Send(msg vsp.ClientMessage)
}

// Clock returns the current time. Injected so throttling is testable.
type Clock interface {
	Now() time.Time
}

// IDGen returns unique correlation IDs.
type IDGen interface {
	NewID() string
}

// StateCache is the durable per-video mirror of the last known session
// state on the client side.
type StateCache interface {
	Get(videoID string) (vsp.SessionState, bool, error)
	Put(videoID string, state vsp.SessionState) error
	Forget(videoID string) error
	All() (map[string]vsp.SessionState, error)
}

// EventSink receives session lifecycle telemetry from the hub. Sinks must
// not block the session path; dropping is preferable to stalling.
type EventSink interface {
	SessionConnected(subject, videoID string, state vsp.SessionState)
	SessionUpdated(subject, videoID string, state vsp.SessionState)
	SessionClosed(subject, videoID string, state vsp.SessionState)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) SessionConnected(string, string, vsp.SessionState) {}
func (NopSink) SessionUpdated(string, string, vsp.SessionState)   {}
func (NopSink) SessionClosed(string, string, vsp.SessionState)    {}
