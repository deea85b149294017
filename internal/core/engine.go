package core

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"viewsync/internal/ports"
	"viewsync/pkg/vsp"
)

// Driver applies resolved playback state to the local media element.
// Implementations must treat SetSpeed/SetVolume as idempotent.
type Driver interface {
	Seek(seconds float64) error
	SetSpeed(speed float64) error
	SetVolume(volume float64) error
}

// ConnectionState is the bootstrap phase of the active session.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateLoading
	StateResolving
	StateSeeking
	StateReady
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateResolving:
		return "resolving"
	case StateSeeking:
		return "seeking"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Status is the user-visible connection status.
type Status string

const (
	StatusConnecting       Status = "connecting"
	StatusWaitingReconnect Status = "waiting to reconnect"
	StatusDegraded         Status = "degraded"
	StatusReady            Status = "ready"
)

// Gates are the three readiness preconditions for resolving. channel_open
// and snapshot_received reset when the channel closes; media_ready survives
// reconnects and resets only with a new session.
type Gates struct {
	ChannelOpen      bool
	SnapshotReceived bool
	MediaReady       bool
}

func (g Gates) allSet() bool {
	return g.ChannelOpen && g.SnapshotReceived && g.MediaReady
}

// SessionInfo is a point-in-time view of the engine's session.
type SessionInfo struct {
	VideoID string
	State   ConnectionState
	Gates   Gates
	Local   vsp.SessionState
}

// Options configures an Engine.
type Options struct {
	Logger  *zap.Logger
	Cache   ports.StateCache
	Channel ports.Channel
	Driver  Driver
	Clock   ports.Clock
	// PositionInterval bounds continuous position telemetry. Zero means
	// DefaultPositionInterval.
	PositionInterval time.Duration
	// OnStatus and OnDegraded are invoked from engine goroutines and must
	// not call back into the engine.
	OnStatus   func(Status)
	OnDegraded func()
	OnMetadata func(vsp.VideoMetadata)
}

// Engine sequences session startup and keeps the local replica consistent
// with the authoritative record. All state is guarded by one mutex: gate
// notifications, timer firings and channel events serialize onto a single
// control path, so no observer sees a transition in progress.
type Engine struct {
	log      *zap.Logger
	cache    ports.StateCache
	channel  ports.Channel
	driver   Driver
	clock    ports.Clock
	interval time.Duration

	onStatus   func(Status)
	onDegraded func()
	onMetadata func(vsp.VideoMetadata)

	mu       sync.Mutex
	videoID  string
	epoch    uint64
	state    ConnectionState
	gates    Gates
	local    vsp.SessionState
	remote   vsp.SessionState
	throttle positionThrottle
	trailing *time.Timer
}

// NewEngine creates an engine. Cache, Channel and Driver are required.
func NewEngine(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = systemClock{}
	}
	return &Engine{
		log:        log,
		cache:      opts.Cache,
		channel:    opts.Channel,
		driver:     opts.Driver,
		clock:      clk,
		interval:   opts.PositionInterval,
		onStatus:   opts.OnStatus,
		onDegraded: opts.OnDegraded,
		onMetadata: opts.OnMetadata,
		state:      StateIdle,
	}
}

// InitSession tears down any prior session and starts a new one for the
// video. The cached state for the video seeds the local replica; a video
// never seen before starts from the clean default at version 0.
func (e *Engine) InitSession(videoID string) {
	e.mu.Lock()
	e.teardownLocked()
	e.epoch++
	epoch := e.epoch
	e.videoID = videoID
	e.gates = Gates{}
	e.state = StateLoading
	e.throttle = newPositionThrottle(e.interval)

	state, ok, err := e.cache.Get(videoID)
	if err != nil {
		e.log.Warn("state cache read failed", zap.String("video_id", videoID), zap.Error(err))
		ok = false
	}
	if !ok {
		state = vsp.DefaultSessionState()
	}
	e.local = state
	e.mu.Unlock()

	e.log.Info("session starting",
		zap.String("video_id", videoID),
		zap.Uint64("cached_version", state.Version))
	e.notifyStatus(StatusConnecting)
	e.channel.Connect(videoID, epoch)
}

// DestroySession tears down the channel and resets to IDLE. The cache entry
// for the video is preserved.
func (e *Engine) DestroySession() {
	e.mu.Lock()
	e.teardownLocked()
	e.videoID = ""
	e.state = StateIdle
	e.gates = Gates{}
	e.mu.Unlock()
}

func (e *Engine) teardownLocked() {
	if e.trailing != nil {
		e.trailing.Stop()
		e.trailing = nil
	}
	if e.videoID != "" {
		e.channel.Disconnect()
	}
}

// Session returns a point-in-time view of the active session.
func (e *Engine) Session() SessionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return SessionInfo{VideoID: e.videoID, State: e.state, Gates: e.gates, Local: e.local}
}

// NotifyMediaReady marks the media element ready. Idempotent; gate order
// does not matter.
func (e *Engine) NotifyMediaReady() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.videoID == "" {
		return
	}
	e.gates.MediaReady = true
	e.maybeResolveLocked()
}

// NotifySeekComplete signals that the media layer finished the correction
// seek. Valid only while SEEKING; ignored otherwise.
func (e *Engine) NotifySeekComplete() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateSeeking {
		return
	}
	e.enterReadyLocked()
}

// ChannelOpened is called by the channel when the socket opens.
func (e *Engine) ChannelOpened(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.staleLocked(epoch) {
		return
	}
	e.gates.ChannelOpen = true
	e.maybeResolveLocked()
}

// ChannelClosed is called on any socket close. The channel_open and
// snapshot_received gates reset so a stale snapshot cannot short-circuit
// the next resolution; media_ready survives.
func (e *Engine) ChannelClosed(epoch uint64, willReconnect bool, retryIn time.Duration) {
	e.mu.Lock()
	if e.staleLocked(epoch) {
		e.mu.Unlock()
		return
	}
	e.gates.ChannelOpen = false
	e.gates.SnapshotReceived = false
	if e.state != StateIdle {
		e.state = StateLoading
	}
	e.mu.Unlock()

	if willReconnect {
		e.log.Info("channel closed, reconnecting", zap.Duration("retry_in", retryIn))
		e.notifyStatus(StatusWaitingReconnect)
		return
	}
	e.notifyStatus(StatusConnecting)
}

// SnapshotTimeout is called when the snapshot wait window expires. The
// session keeps waiting; this only surfaces a degraded-connection notice.
func (e *Engine) SnapshotTimeout(epoch uint64) {
	e.mu.Lock()
	stale := e.staleLocked(epoch)
	e.mu.Unlock()
	if stale {
		return
	}
	e.log.Warn("snapshot not received in time, connection degraded")
	if e.onDegraded != nil {
		e.onDegraded()
	}
	e.notifyStatus(StatusDegraded)
}

// HandleServerMessage dispatches an inbound message from the channel.
func (e *Engine) HandleServerMessage(epoch uint64, msg vsp.ServerMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.staleLocked(epoch) {
		return
	}

	switch m := msg.(type) {
	case vsp.StateSync:
		e.handleStateSyncLocked(m.Session)
	case vsp.VideoMetadata:
		e.log.Debug("video metadata",
			zap.Int64("width", m.Width),
			zap.Int64("height", m.Height),
			zap.Float64("duration_seconds", m.DurationSeconds))
		if e.onMetadata != nil {
			e.onMetadata(m)
		}
	case vsp.TestMessage:
		e.log.Info("test message", zap.String("text", m.Text))
	}
}

func (e *Engine) handleStateSyncLocked(remote vsp.SessionState) {
	switch e.state {
	case StateLoading:
		e.remote = remote
		e.gates.SnapshotReceived = true
		e.maybeResolveLocked()
	case StateReady:
		// The server answers version-rejected updates with its snapshot;
		// re-resolve against the authoritative copy.
		e.state = StateResolving
		e.resolveLocked(remote)
	default:
		// Resolution already ran for this entry.
		e.log.Debug("snapshot ignored", zap.String("state", e.state.String()))
	}
}

func (e *Engine) maybeResolveLocked() {
	if e.state != StateLoading || !e.gates.allSet() {
		return
	}
	e.state = StateResolving
	e.resolveLocked(e.remote)
}

func (e *Engine) resolveLocked(remote vsp.SessionState) {
	res := Resolve(e.local, remote)

	if res.AdoptRemote {
		e.local = res.State
		e.persistLocked()
	}

	if err := e.driver.SetSpeed(res.State.PlaybackSpeed); err != nil {
		e.log.Warn("apply speed failed", zap.Error(err))
	}
	if err := e.driver.SetVolume(res.State.Volume); err != nil {
		e.log.Warn("apply volume failed", zap.Error(err))
	}

	if res.PushLocal {
		e.channel.Send(vsp.SyncState{
			CurrentTime:   e.local.CurrentTime,
			PlaybackSpeed: e.local.PlaybackSpeed,
			Volume:        e.local.Volume,
			Version:       e.local.Version,
		})
	}

	if res.SeekNeeded {
		e.state = StateSeeking
		if err := e.driver.Seek(res.SeekTo); err != nil {
			e.log.Warn("correction seek failed", zap.Error(err))
			e.enterReadyLocked()
		}
		return
	}
	e.enterReadyLocked()
}

func (e *Engine) enterReadyLocked() {
	e.state = StateReady
	e.persistLocked()
	e.notifyStatus(StatusReady)
}

// UpdatePosition records a continuous position sample. While READY it bumps
// the version and transmits subject to the throttle; in any other state it
// only updates the cache.
func (e *Engine) UpdatePosition(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.videoID == "" {
		return
	}
	e.local.CurrentTime = seconds
	if e.state != StateReady {
		e.persistLocked()
		return
	}
	e.local.Version++
	e.persistLocked()

	now := e.clock.Now()
	if e.throttle.Offer(now, seconds) {
		e.channel.Send(vsp.UpdatePlaybackPosition{CurrentTime: seconds, Version: e.local.Version})
		return
	}
	e.armTrailingLocked(now)
}

// Seek records an explicit user seek, which bypasses the throttle.
func (e *Engine) Seek(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.videoID == "" {
		return
	}
	e.local.CurrentTime = seconds
	if e.state != StateReady {
		e.persistLocked()
		return
	}
	e.local.Version++
	e.persistLocked()
	e.throttle.Reset(e.clock.Now())
	e.channel.Send(vsp.UpdatePlaybackPosition{CurrentTime: seconds, Version: e.local.Version})
}

// SetSpeed records a discrete speed change, sent immediately while READY.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.videoID == "" {
		return
	}
	e.local.PlaybackSpeed = speed
	if e.state != StateReady {
		e.persistLocked()
		return
	}
	e.local.Version++
	e.persistLocked()
	e.channel.Send(vsp.UpdatePlaybackSpeed{PlaybackSpeed: speed, Version: e.local.Version})
}

// SetVolume records a discrete volume change, sent immediately while READY.
func (e *Engine) SetVolume(volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.videoID == "" {
		return
	}
	e.local.Volume = volume
	if e.state != StateReady {
		e.persistLocked()
		return
	}
	e.local.Version++
	e.persistLocked()
	e.channel.Send(vsp.UpdateVolume{Volume: volume, Version: e.local.Version})
}

func (e *Engine) armTrailingLocked(now time.Time) {
	if e.trailing != nil {
		return
	}
	rest, armed := e.throttle.Remaining(now)
	if !armed {
		return
	}
	epoch := e.epoch
	e.trailing = time.AfterFunc(rest, func() {
		e.flushPending(epoch)
	})
}

func (e *Engine) flushPending(epoch uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trailing = nil
	if e.staleLocked(epoch) || e.state != StateReady {
		return
	}
	if value, ok := e.throttle.Due(e.clock.Now()); ok {
		e.channel.Send(vsp.UpdatePlaybackPosition{CurrentTime: value, Version: e.local.Version})
	}
}

func (e *Engine) persistLocked() {
	if err := e.cache.Put(e.videoID, e.local); err != nil {
		e.log.Warn("state cache write failed", zap.String("video_id", e.videoID), zap.Error(err))
	}
}

func (e *Engine) staleLocked(epoch uint64) bool {
	return e.videoID == "" || epoch != e.epoch
}

func (e *Engine) notifyStatus(status Status) {
	if e.onStatus != nil {
		e.onStatus(status)
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}
