//go:build !gst

package player

import (
	"testing"
	"time"
)

func TestPositionAdvancesWhilePlaying(t *testing.T) {
	d, err := NewDriver(Config{URI: "file:///tmp/example.mp4"})
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	defer d.Close()

	if _, ok := d.Position(); ok {
		t.Fatalf("position must be unknown before start")
	}

	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	pos, ok := d.Position()
	if !ok || pos <= 0 {
		t.Fatalf("expected advancing position, got %v ok=%v", pos, ok)
	}
}

func TestSeekMovesBase(t *testing.T) {
	d, err := NewDriver(Config{URI: "file:///tmp/example.mp4"})
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	defer d.Close()
	d.Start()

	if err := d.Seek(300); err != nil {
		t.Fatalf("seek: %v", err)
	}
	pos, ok := d.Position()
	if !ok || pos < 300 || pos > 301 {
		t.Fatalf("expected position near 300, got %v", pos)
	}
}

func TestCallbacksFire(t *testing.T) {
	ready := make(chan struct{}, 1)
	seeked := make(chan struct{}, 1)
	d, err := NewDriver(Config{
		URI:            "file:///tmp/example.mp4",
		OnMediaReady:   func() { ready <- struct{}{} },
		OnSeekComplete: func() { seeked <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	defer d.Close()

	d.Start()
	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatalf("media ready never fired")
	}

	d.Seek(10)
	select {
	case <-seeked:
	case <-time.After(time.Second):
		t.Fatalf("seek complete never fired")
	}
}

func TestRejectsEmptyURI(t *testing.T) {
	if _, err := NewDriver(Config{}); err == nil {
		t.Fatalf("expected error for empty uri")
	}
}
