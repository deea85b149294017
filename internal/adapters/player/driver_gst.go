//go:build gst

package player

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
)

var gstInitOnce sync.Once

// Driver plays media through a GStreamer playbin.
type Driver struct {
	onMediaReady   func()
	onSeekComplete func()

	mu       sync.Mutex
	pipeline *gst.Element
	rate     float64
	started  bool
}

// NewDriver creates a GStreamer driver for the URI.
func NewDriver(cfg Config) (*Driver, error) {
	if cfg.URI == "" {
		return nil, errors.New("media uri required")
	}
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})

	pipeline, err := gst.ParseLaunch(fmt.Sprintf("playbin uri=%s", cfg.URI))
	if err != nil {
		return nil, err
	}
	return &Driver{
		onMediaReady:   cfg.OnMediaReady,
		onSeekComplete: cfg.OnSeekComplete,
		pipeline:       pipeline,
		rate:           1.0,
	}, nil
}

// Start begins playback. The media is reported ready once the pipeline
// accepts the playing state.
func (d *Driver) Start() error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return nil
	}
	if err := d.pipeline.SetState(gst.StatePlaying); err != nil {
		d.mu.Unlock()
		return err
	}
	d.started = true
	ready := d.onMediaReady
	d.mu.Unlock()

	if ready != nil {
		go ready()
	}
	return nil
}

func (d *Driver) Seek(seconds float64) error {
	d.mu.Lock()
	err := d.seekLocked(seconds)
	complete := d.onSeekComplete
	d.mu.Unlock()

	if err == nil && complete != nil {
		go complete()
	}
	return err
}

func (d *Driver) seekLocked(seconds float64) error {
	positionNS := int64(seconds * float64(time.Second))
	return d.pipeline.SeekSimple(gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagKeyUnit, positionNS)
}

// SetSpeed changes the playback rate via a rate seek from the current
// position.
func (d *Driver) SetSpeed(speed float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	position := int64(0)
	if ok, pos := d.pipeline.QueryPosition(gst.FormatTime); ok {
		position = pos
	}
	if !d.pipeline.Seek(speed, gst.FormatTime, gst.SeekFlagFlush,
		gst.SeekTypeSet, position, gst.SeekTypeNone, 0) {
		return errors.New("rate seek refused")
	}
	d.rate = speed
	return nil
}

func (d *Driver) SetVolume(volume float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipeline.SetProperty("volume", volume)
}

// Position returns the playback position in seconds.
func (d *Driver) Position() (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ok, positionNS := d.pipeline.QueryPosition(gst.FormatTime)
	if !ok {
		return 0, false
	}
	return float64(positionNS) / float64(time.Second), true
}

// Close tears the pipeline down.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	_ = d.pipeline.SetState(gst.StateNull)
}
