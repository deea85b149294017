package vsp

import (
	"encoding/json"
	"fmt"
)

// SessionState is the replicated playback state for one (subject, video)
// pair. The version counter is bumped by exactly one for every
// locally-initiated mutation made while a replica is live; it is otherwise
// only replaced wholesale by adopting a remote snapshot.
type SessionState struct {
	CurrentTime   float64 `json:"current_time"`
	PlaybackSpeed float64 `json:"playback_speed"`
	Volume        float64 `json:"volume"`
	Version       uint64  `json:"version"`
}

// DefaultSessionState is the state of a session that has never been touched.
func DefaultSessionState() SessionState {
	return SessionState{PlaybackSpeed: 1.0, Volume: 1.0}
}

// Validate checks field ranges: position >= 0, speed > 0, volume in [0, 1].
func (s SessionState) Validate() error {
	if s.CurrentTime < 0 {
		return fmt.Errorf("current_time must be >= 0, got %v", s.CurrentTime)
	}
	if s.PlaybackSpeed <= 0 {
		return fmt.Errorf("playback_speed must be > 0, got %v", s.PlaybackSpeed)
	}
	if s.Volume < 0 || s.Volume > 1 {
		return fmt.Errorf("volume must be in [0, 1], got %v", s.Volume)
	}
	return nil
}

// ClientMessage is a message flowing client -> server. The set is closed;
// decoding rejects unknown tags and encoding switches exhaustively.
type ClientMessage interface {
	clientTag() string
}

// UpdatePlaybackPosition carries a throttled position sample.
type UpdatePlaybackPosition struct {
	CurrentTime float64 `json:"current_time"`
	Version     uint64  `json:"version"`
}

// UpdatePlaybackSpeed carries a discrete speed change.
type UpdatePlaybackSpeed struct {
	PlaybackSpeed float64 `json:"playback_speed"`
	Version       uint64  `json:"version"`
}

// UpdateVolume carries a discrete volume change.
type UpdateVolume struct {
	Volume  float64 `json:"volume"`
	Version uint64  `json:"version"`
}

// SyncState pushes the full local state after the local replica wins a
// resolution.
type SyncState struct {
	CurrentTime   float64 `json:"current_time"`
	PlaybackSpeed float64 `json:"playback_speed"`
	Volume        float64 `json:"volume"`
	Version       uint64  `json:"version"`
}

func (UpdatePlaybackPosition) clientTag() string { return "UpdatePlaybackPosition" }
func (UpdatePlaybackSpeed) clientTag() string    { return "UpdatePlaybackSpeed" }
func (UpdateVolume) clientTag() string           { return "UpdateVolume" }
func (SyncState) clientTag() string              { return "SyncState" }

// ServerMessage is a message flowing server -> client.
type ServerMessage interface {
	serverTag() string
}

// StateSync delivers the authoritative snapshot. Sent once per connection
// establishment and again whenever an update is rejected on version grounds.
type StateSync struct {
	Session SessionState `json:"session"`
}

// VideoMetadata is informational and not part of the consistency protocol.
type VideoMetadata struct {
	Width           int64   `json:"width"`
	Height          int64   `json:"height"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// TestMessage is a diagnostic message.
type TestMessage struct {
	Text string `json:"text"`
}

func (StateSync) serverTag() string     { return "StateSync" }
func (VideoMetadata) serverTag() string { return "VideoMetadata" }
func (TestMessage) serverTag() string   { return "TestMessage" }

type envelope struct {
	Type string `json:"type"`
}

// EncodeClientMessage marshals a client message with its type tag.
func EncodeClientMessage(msg ClientMessage) ([]byte, error) {
	switch m := msg.(type) {
	case UpdatePlaybackPosition:
		return json.Marshal(struct {
			Type string `json:"type"`
			UpdatePlaybackPosition
		}{m.clientTag(), m})
	case UpdatePlaybackSpeed:
		return json.Marshal(struct {
			Type string `json:"type"`
			UpdatePlaybackSpeed
		}{m.clientTag(), m})
	case UpdateVolume:
		return json.Marshal(struct {
			Type string `json:"type"`
			UpdateVolume
		}{m.clientTag(), m})
	case SyncState:
		return json.Marshal(struct {
			Type string `json:"type"`
			SyncState
		}{m.clientTag(), m})
	default:
		return nil, fmt.Errorf("unknown client message %T", msg)
	}
}

// DecodeClientMessage parses a tagged client message.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	switch env.Type {
	case "UpdatePlaybackPosition":
		var m UpdatePlaybackPosition
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", env.Type, err)
		}
		return m, nil
	case "UpdatePlaybackSpeed":
		var m UpdatePlaybackSpeed
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", env.Type, err)
		}
		return m, nil
	case "UpdateVolume":
		var m UpdateVolume
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", env.Type, err)
		}
		return m, nil
	case "SyncState":
		var m SyncState
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", env.Type, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown client message type %q", env.Type)
	}
}

// EncodeServerMessage marshals a server message with its type tag.
func EncodeServerMessage(msg ServerMessage) ([]byte, error) {
	switch m := msg.(type) {
	case StateSync:
		return json.Marshal(struct {
			Type string `json:"type"`
			StateSync
		}{m.serverTag(), m})
	case VideoMetadata:
		return json.Marshal(struct {
			Type string `json:"type"`
			VideoMetadata
		}{m.serverTag(), m})
	case TestMessage:
		return json.Marshal(struct {
			Type string `json:"type"`
			TestMessage
		}{m.serverTag(), m})
	default:
		return nil, fmt.Errorf("unknown server message %T", msg)
	}
}

// DecodeServerMessage parses a tagged server message.
func DecodeServerMessage(data []byte) (ServerMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	switch env.Type {
	case "StateSync":
		var m StateSync
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", env.Type, err)
		}
		return m, nil
	case "VideoMetadata":
		var m VideoMetadata
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", env.Type, err)
		}
		return m, nil
	case "TestMessage":
		var m TestMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", env.Type, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown server message type %q", env.Type)
	}
}
