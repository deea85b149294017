package statecache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"viewsync/pkg/vsp"
)

// Store saves per-video session state under XDG_STATE_HOME or
// ~/.local/state. The full map is loaded on each read and rewritten on each
// change; entries are never removed automatically, only by Forget.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a state cache at the default location.
func NewStore() (*Store, error) {
	path, err := cachePath()
	if err != nil {
		return nil, err
	}
	return &Store{path: path}, nil
}

// NewStoreAt creates a state cache at an explicit path.
func NewStoreAt(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("cache path required")
	}
	return &Store{path: path}, nil
}

// Get returns the cached state for a video if stored.
func (s *Store) Get(videoID string) (vsp.SessionState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readAll()
	if err != nil {
		return vsp.SessionState{}, false, err
	}
	state, ok := data[videoID]
	return state, ok, nil
}

// Put stores the state for a video.
func (s *Store) Put(videoID string, state vsp.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readAll()
	if err != nil {
		return err
	}
	data[videoID] = state
	return s.writeAll(data)
}

// Forget removes the cached state for a video.
func (s *Store) Forget(videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readAll()
	if err != nil {
		return err
	}
	delete(data, videoID)
	return s.writeAll(data)
}

// All returns every cached entry.
func (s *Store) All() (map[string]vsp.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readAll()
}

func (s *Store) readAll() (map[string]vsp.SessionState, error) {
	data := map[string]vsp.SessionState{}
	file, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return data, nil
		}
		return nil, err
	}
	if len(file) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(file, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) writeAll(data map[string]vsp.SessionState) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, payload, 0o600)
}

func cachePath() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "viewsync", "sessions.json"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "viewsync", "sessions.json"), nil
}
