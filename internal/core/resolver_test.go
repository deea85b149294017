package core

import (
	"testing"

	"viewsync/pkg/vsp"
)

func TestResolveRemoteWins(t *testing.T) {
	local := vsp.SessionState{CurrentTime: 42.5, PlaybackSpeed: 1, Volume: 1, Version: 3}
	remote := vsp.SessionState{CurrentTime: 100, PlaybackSpeed: 1.5, Volume: 0.5, Version: 5}

	res := Resolve(local, remote)
	if !res.AdoptRemote || res.PushLocal {
		t.Fatalf("expected remote adoption, got %#v", res)
	}
	if res.State != remote {
		t.Fatalf("expected remote state wholesale, got %#v", res.State)
	}
	if !res.SeekNeeded || res.SeekTo != 100 {
		t.Fatalf("expected seek to 100, got %#v", res)
	}
}

func TestResolveLocalWins(t *testing.T) {
	local := vsp.SessionState{CurrentTime: 10, PlaybackSpeed: 1, Volume: 1, Version: 7}
	remote := vsp.SessionState{CurrentTime: 0, PlaybackSpeed: 1, Volume: 1, Version: 2}

	res := Resolve(local, remote)
	if !res.PushLocal || res.AdoptRemote {
		t.Fatalf("expected local push, got %#v", res)
	}
	if res.State != local {
		t.Fatalf("expected local state kept, got %#v", res.State)
	}
	if !res.SeekNeeded || res.SeekTo != 10 {
		t.Fatalf("expected seek to 10, got %#v", res)
	}
}

func TestResolveLocalWinsAtZeroNeedsNoSeek(t *testing.T) {
	local := vsp.SessionState{CurrentTime: 0, PlaybackSpeed: 2, Volume: 0.5, Version: 4}
	remote := vsp.SessionState{CurrentTime: 55, PlaybackSpeed: 1, Volume: 1, Version: 1}

	res := Resolve(local, remote)
	if !res.PushLocal {
		t.Fatalf("expected local push, got %#v", res)
	}
	if res.SeekNeeded {
		t.Fatalf("position 0 needs no seek")
	}
}

func TestResolveEqualVersions(t *testing.T) {
	local := vsp.SessionState{CurrentTime: 30, PlaybackSpeed: 1, Volume: 1, Version: 6}
	remote := vsp.SessionState{CurrentTime: 30, PlaybackSpeed: 1, Volume: 1, Version: 6}

	res := Resolve(local, remote)
	if res.PushLocal || res.AdoptRemote {
		t.Fatalf("equal versions must not push or adopt, got %#v", res)
	}
	if !res.SeekNeeded || res.SeekTo != 30 {
		t.Fatalf("expected alignment seek to 30, got %#v", res)
	}
}

func TestResolveEqualVersionsAtZero(t *testing.T) {
	local := vsp.DefaultSessionState()
	remote := vsp.DefaultSessionState()

	res := Resolve(local, remote)
	if res.SeekNeeded || res.PushLocal || res.AdoptRemote {
		t.Fatalf("fresh sessions need no action, got %#v", res)
	}
}
