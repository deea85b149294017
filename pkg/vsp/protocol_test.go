package vsp

import (
	"encoding/json"
	"testing"
)

func TestClientMessageRoundTrip(t *testing.T) {
	messages := []ClientMessage{
		UpdatePlaybackPosition{CurrentTime: 42.5, Version: 3},
		UpdatePlaybackSpeed{PlaybackSpeed: 1.5, Version: 4},
		UpdateVolume{Volume: 0.25, Version: 5},
		SyncState{CurrentTime: 10, PlaybackSpeed: 2, Volume: 0.5, Version: 7},
	}

	for _, msg := range messages {
		data, err := EncodeClientMessage(msg)
		if err != nil {
			t.Fatalf("encode %T: %v", msg, err)
		}
		decoded, err := DecodeClientMessage(data)
		if err != nil {
			t.Fatalf("decode %T: %v", msg, err)
		}
		if decoded != msg {
			t.Fatalf("round trip mismatch: got %#v want %#v", decoded, msg)
		}
	}
}

func TestClientMessageTagMatchesName(t *testing.T) {
	data, err := EncodeClientMessage(UpdatePlaybackPosition{CurrentTime: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env["type"] != "UpdatePlaybackPosition" {
		t.Fatalf("expected type tag, got %v", env["type"])
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	if _, err := DecodeClientMessage([]byte(`{"type":"Bogus"}`)); err == nil {
		t.Fatalf("expected error for unknown client tag")
	}
	if _, err := DecodeServerMessage([]byte(`{"type":"Bogus"}`)); err == nil {
		t.Fatalf("expected error for unknown server tag")
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := DecodeServerMessage([]byte(`not json`)); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestServerMessageRoundTrip(t *testing.T) {
	messages := []ServerMessage{
		StateSync{Session: SessionState{CurrentTime: 100, PlaybackSpeed: 1, Volume: 1, Version: 5}},
		VideoMetadata{Width: 1920, Height: 1080, DurationSeconds: 3600.5},
		TestMessage{Text: "ping"},
	}

	for _, msg := range messages {
		data, err := EncodeServerMessage(msg)
		if err != nil {
			t.Fatalf("encode %T: %v", msg, err)
		}
		decoded, err := DecodeServerMessage(data)
		if err != nil {
			t.Fatalf("decode %T: %v", msg, err)
		}
		if decoded != msg {
			t.Fatalf("round trip mismatch: got %#v want %#v", decoded, msg)
		}
	}
}

func TestSessionStateValidate(t *testing.T) {
	valid := SessionState{CurrentTime: 0, PlaybackSpeed: 1, Volume: 1}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid state: %v", err)
	}

	cases := []SessionState{
		{CurrentTime: -1, PlaybackSpeed: 1, Volume: 1},
		{CurrentTime: 0, PlaybackSpeed: 0, Volume: 1},
		{CurrentTime: 0, PlaybackSpeed: 1, Volume: 1.5},
	}
	for _, state := range cases {
		if err := state.Validate(); err == nil {
			t.Fatalf("expected validation error for %#v", state)
		}
	}
}
