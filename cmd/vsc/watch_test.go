package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"viewsync/internal/core"
	"viewsync/pkg/vsp"
)

type fakeCache struct {
	mu     sync.Mutex
	states map[string]vsp.SessionState
}

func (c *fakeCache) Get(videoID string) (vsp.SessionState, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.states[videoID]
	return state, ok, nil
}

func (c *fakeCache) Put(videoID string, state vsp.SessionState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[videoID] = state
	return nil
}

func (c *fakeCache) Forget(videoID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, videoID)
	return nil
}

func (c *fakeCache) All() (map[string]vsp.SessionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]vsp.SessionState, len(c.states))
	for k, v := range c.states {
		out[k] = v
	}
	return out, nil
}

type fakeChannel struct {
	mu    sync.Mutex
	epoch uint64
}

func (ch *fakeChannel) Connect(videoID string, epoch uint64) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.epoch = epoch
}

func (ch *fakeChannel) Disconnect() {}

func (ch *fakeChannel) Send(msg vsp.ClientMessage) {}

func (ch *fakeChannel) lastEpoch() uint64 {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.epoch
}

type fakeDriver struct {
	position float64
	seeks    chan float64
}

func (d *fakeDriver) Position() (float64, bool) { return d.position, true }
func (d *fakeDriver) Seek(seconds float64) error {
	d.seeks <- seconds
	return nil
}
func (d *fakeDriver) SetSpeed(float64) error  { return nil }
func (d *fakeDriver) SetVolume(float64) error { return nil }

// A player that just started reports positions near zero while the session
// is still loading. The loop must not forward those samples: they would
// overwrite the cached resume position before resolution runs, and an
// equal-version snapshot would then align to ~0 instead of the retained
// position.
func TestWatchLoopIgnoresPositionUntilReady(t *testing.T) {
	cached := vsp.SessionState{CurrentTime: 42.5, PlaybackSpeed: 1, Volume: 1, Version: 3}
	cache := &fakeCache{states: map[string]vsp.SessionState{"video-1": cached}}
	channel := &fakeChannel{}
	driver := &fakeDriver{position: 0.25, seeks: make(chan float64, 4)}

	engine := core.NewEngine(core.Options{
		Cache:   cache,
		Channel: channel,
		Driver:  driver,
	})
	engine.InitSession("video-1")
	defer engine.DestroySession()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		watchLoop(ctx, engine, driver, make(chan core.Status, 8), make(chan vsp.VideoMetadata, 1), 2*time.Millisecond)
	}()

	// Let the loop tick several times while the session is still loading.
	time.Sleep(30 * time.Millisecond)

	if state, _, _ := cache.Get("video-1"); state != cached {
		t.Fatalf("loading-phase samples must not touch the cache, got %#v", state)
	}

	epoch := channel.lastEpoch()
	engine.ChannelOpened(epoch)
	engine.NotifyMediaReady()
	engine.HandleServerMessage(epoch, vsp.StateSync{Session: cached})

	select {
	case target := <-driver.seeks:
		if target != 42.5 {
			t.Fatalf("alignment seek must go to the retained position, got %v", target)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for alignment seek")
	}

	cancel()
	<-done
}
