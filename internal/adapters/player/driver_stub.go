//go:build !gst

package player

import (
	"errors"
	"sync"
	"time"
)

// Driver simulates playback with a wall clock: position advances at the
// configured speed from the last seek point. Used when the gst build tag is
// not enabled.
type Driver struct {
	onMediaReady   func()
	onSeekComplete func()

	mu      sync.Mutex
	base    float64
	basedAt time.Time
	speed   float64
	volume  float64
	playing bool
}

// NewDriver creates a simulated driver.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.URI == "" {
		return nil, errors.New("media uri required")
	}
	return &Driver{
		onMediaReady:   cfg.OnMediaReady,
		onSeekComplete: cfg.OnSeekComplete,
		speed:          1.0,
		volume:         1.0,
	}, nil
}

// Start begins simulated playback and reports the media as ready.
func (d *Driver) Start() error {
	d.mu.Lock()
	d.basedAt = time.Now()
	d.playing = true
	ready := d.onMediaReady
	d.mu.Unlock()

	if ready != nil {
		go ready()
	}
	return nil
}

func (d *Driver) Seek(seconds float64) error {
	d.mu.Lock()
	d.base = seconds
	d.basedAt = time.Now()
	complete := d.onSeekComplete
	d.mu.Unlock()

	// Completion must come from outside the caller's stack.
	if complete != nil {
		go complete()
	}
	return nil
}

func (d *Driver) SetSpeed(speed float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playing {
		d.base = d.positionLocked()
		d.basedAt = time.Now()
	}
	d.speed = speed
	return nil
}

func (d *Driver) SetVolume(volume float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volume = volume
	return nil
}

// Position returns the simulated playback position.
func (d *Driver) Position() (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.playing {
		return 0, false
	}
	return d.positionLocked(), true
}

func (d *Driver) positionLocked() float64 {
	return d.base + time.Since(d.basedAt).Seconds()*d.speed
}

// Close stops the simulated playback.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
}
