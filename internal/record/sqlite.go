package record

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"viewsync/pkg/vsp"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	subject    TEXT NOT NULL,
	video_id   TEXT NOT NULL,
	position   REAL NOT NULL,
	speed      REAL NOT NULL,
	volume     REAL NOT NULL,
	version    INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (subject, video_id)
);

CREATE TABLE IF NOT EXISTS videos (
	id               TEXT PRIMARY KEY,
	width            INTEGER NOT NULL,
	height           INTEGER NOT NULL,
	duration_seconds REAL NOT NULL
);
`

// DB is the sqlite persistence layer for session records and video
// metadata.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer keeps sqlite happy under concurrent sessions.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// LoadSession reads the persisted state for one (subject, video) pair.
func (d *DB) LoadSession(subject, videoID string) (vsp.SessionState, bool, error) {
	var state vsp.SessionState
	err := d.db.QueryRow(
		`SELECT position, speed, volume, version FROM sessions
		 WHERE subject = ? AND video_id = ?`,
		subject, videoID,
	).Scan(&state.CurrentTime, &state.PlaybackSpeed, &state.Volume, &state.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return vsp.SessionState{}, false, nil
	}
	if err != nil {
		return vsp.SessionState{}, false, fmt.Errorf("load session: %w", err)
	}
	return state, true, nil
}

// SaveSession upserts the state for one (subject, video) pair.
func (d *DB) SaveSession(subject, videoID string, state vsp.SessionState) error {
	now := time.Now().Unix()
	_, err := d.db.Exec(
		`INSERT INTO sessions (subject, video_id, position, speed, volume, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subject, video_id) DO UPDATE SET
		   position = excluded.position,
		   speed = excluded.speed,
		   volume = excluded.volume,
		   version = excluded.version,
		   updated_at = excluded.updated_at`,
		subject, videoID,
		state.CurrentTime, state.PlaybackSpeed, state.Volume, state.Version,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Video reads stored metadata for a video, if any.
func (d *DB) Video(videoID string) (vsp.VideoMetadata, bool, error) {
	var meta vsp.VideoMetadata
	err := d.db.QueryRow(
		`SELECT width, height, duration_seconds FROM videos WHERE id = ?`,
		videoID,
	).Scan(&meta.Width, &meta.Height, &meta.DurationSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return vsp.VideoMetadata{}, false, nil
	}
	if err != nil {
		return vsp.VideoMetadata{}, false, fmt.Errorf("load video: %w", err)
	}
	return meta, true, nil
}

// SaveVideo upserts metadata for a video.
func (d *DB) SaveVideo(videoID string, meta vsp.VideoMetadata) error {
	_, err := d.db.Exec(
		`INSERT INTO videos (id, width, height, duration_seconds)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   width = excluded.width,
		   height = excluded.height,
		   duration_seconds = excluded.duration_seconds`,
		videoID, meta.Width, meta.Height, meta.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("save video: %w", err)
	}
	return nil
}
