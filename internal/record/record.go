package record

import (
	"sync"

	"go.uber.org/zap"

	"viewsync/pkg/vsp"
)

// Key identifies one session record: one subject watching one video.
type Key struct {
	Subject string
	VideoID string
}

// Mutation is a client-submitted change. Nil fields are left untouched.
// Version is the counter the client stamped on the update.
type Mutation struct {
	Position *float64
	Speed    *float64
	Volume   *float64
	Version  uint64
}

type entry struct {
	mu    sync.Mutex
	state vsp.SessionState
	dirty bool
	refs  int
}

// Store is the authoritative in-memory session record, backed by sqlite.
// Each key has its own lock, so updates to one session serialize while
// different sessions proceed independently. Writes hit memory first and
// reach the database on release or flush.
type Store struct {
	log *zap.Logger
	db  *DB

	mu      sync.Mutex
	entries map[Key]*entry
}

// NewStore creates a store over an open database.
func NewStore(log *zap.Logger, db *DB) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		log:     log,
		db:      db,
		entries: make(map[Key]*entry),
	}
}

// Acquire pins the record for a key into memory and returns its current
// state. An unseen key starts from the persisted row, or the clean default
// if none exists. Every Acquire must be paired with a Release.
func (s *Store) Acquire(key Key) (vsp.SessionState, error) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		e.refs++
		s.mu.Unlock()
		e.mu.Lock()
		state := e.state
		e.mu.Unlock()
		return state, nil
	}
	s.mu.Unlock()

	state, found, err := s.db.LoadSession(key.Subject, key.VideoID)
	if err != nil {
		return vsp.SessionState{}, err
	}
	if !found {
		state = vsp.DefaultSessionState()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		// Lost the race; someone else loaded it first.
		e.refs++
		e.mu.Lock()
		state = e.state
		e.mu.Unlock()
		return state, nil
	}
	s.entries[key] = &entry{state: state, refs: 1}
	return state, nil
}

// Release drops one reference to the key, persisting any unsaved changes.
// The last release evicts the record from memory, but only after the
// persist: until then the entry stays in the map, so a concurrent Acquire
// keeps seeing the in-memory state instead of a not-yet-final row.
func (s *Store) Release(key Key) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	e.refs--
	last := e.refs <= 0
	s.mu.Unlock()

	e.mu.Lock()
	state, dirty := e.state, e.dirty
	e.dirty = false
	e.mu.Unlock()

	if dirty {
		if err := s.db.SaveSession(key.Subject, key.VideoID, state); err != nil {
			s.log.Error("persist session failed",
				zap.String("subject", key.Subject),
				zap.String("video_id", key.VideoID),
				zap.Error(err))
		}
	}

	if last {
		s.mu.Lock()
		if cur, ok := s.entries[key]; ok && cur == e && cur.refs <= 0 {
			delete(s.entries, key)
		}
		s.mu.Unlock()
	}
}

// Snapshot returns the in-memory state for an acquired key.
func (s *Store) Snapshot(key Key) (vsp.SessionState, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return vsp.SessionState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, true
}

// Apply applies a mutation if its version is not behind the record's.
// The accepted state adopts the submitted version verbatim. A rejected or
// invalid mutation leaves the record untouched and returns the current
// state so the caller can answer with the authoritative copy.
func (s *Store) Apply(key Key, mut Mutation) (vsp.SessionState, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	if !ok {
		return vsp.SessionState{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if mut.Version < e.state.Version {
		return e.state, false
	}

	candidate := e.state
	candidate.Version = mut.Version
	if mut.Position != nil {
		candidate.CurrentTime = *mut.Position
	}
	if mut.Speed != nil {
		candidate.PlaybackSpeed = *mut.Speed
	}
	if mut.Volume != nil {
		candidate.Volume = *mut.Volume
	}
	if err := candidate.Validate(); err != nil {
		s.log.Warn("rejecting invalid mutation",
			zap.String("subject", key.Subject),
			zap.String("video_id", key.VideoID),
			zap.Error(err))
		return e.state, false
	}

	e.state = candidate
	e.dirty = true
	return e.state, true
}

// FlushDirty persists every record with unsaved changes. Called on a timer
// so a crash loses at most one flush interval of updates.
func (s *Store) FlushDirty() {
	s.mu.Lock()
	keys := make([]Key, 0, len(s.entries))
	refs := make([]*entry, 0, len(s.entries))
	for key, e := range s.entries {
		keys = append(keys, key)
		refs = append(refs, e)
	}
	s.mu.Unlock()

	for i, e := range refs {
		e.mu.Lock()
		if !e.dirty {
			e.mu.Unlock()
			continue
		}
		state := e.state
		e.dirty = false
		e.mu.Unlock()

		if err := s.db.SaveSession(keys[i].Subject, keys[i].VideoID, state); err != nil {
			s.log.Error("flush session failed",
				zap.String("subject", keys[i].Subject),
				zap.String("video_id", keys[i].VideoID),
				zap.Error(err))
		}
	}
}
