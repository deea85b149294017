package statecache

import (
	"path/filepath"
	"testing"

	"viewsync/pkg/vsp"
)

func TestStorePutGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store, err := NewStoreAt(path)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	if _, ok, err := store.Get("vid-1"); err != nil || ok {
		t.Fatalf("expected empty cache, ok=%v err=%v", ok, err)
	}

	state := vsp.SessionState{CurrentTime: 42.5, PlaybackSpeed: 1.5, Volume: 0.8, Version: 3}
	if err := store.Put("vid-1", state); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := store.Get("vid-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got != state {
		t.Fatalf("got %#v want %#v", got, state)
	}
}

func TestStoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store, err := NewStoreAt(path)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	state := vsp.SessionState{CurrentTime: 10, PlaybackSpeed: 1, Volume: 1, Version: 7}
	if err := store.Put("vid-1", state); err != nil {
		t.Fatalf("put: %v", err)
	}

	// A fresh store over the same file models a process restart.
	reopened, err := NewStoreAt(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok, err := reopened.Get("vid-1")
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if got != state {
		t.Fatalf("got %#v want %#v", got, state)
	}
}

func TestStoreForget(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	store, err := NewStoreAt(path)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Put("vid-1", vsp.DefaultSessionState()); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Forget("vid-1"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if _, ok, _ := store.Get("vid-1"); ok {
		t.Fatalf("expected entry removed")
	}

	all, err := store.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty map, got %d entries", len(all))
	}
}
