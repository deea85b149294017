package wschannel

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"viewsync/pkg/vsp"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// DefaultInitialBackoff and DefaultMaxBackoff bound the reconnect delay:
	// initial * 2^attempt, capped at max.
	DefaultInitialBackoff = time.Second
	DefaultMaxBackoff     = 30 * time.Second

	// DefaultSnapshotWait is how long to wait for the first snapshot after
	// the socket opens before flagging the connection as degraded.
	DefaultSnapshotWait = 5 * time.Second
)

// Backoff returns the reconnect delay for the given attempt number
// (0-based), doubling from initial up to max.
func Backoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt > 30 {
		return max
	}
	d := initial << uint(attempt)
	if d <= 0 || d > max {
		return max
	}
	return d
}

// Events receives channel lifecycle and message callbacks. Every callback
// carries the epoch the channel was connected under so consumers can drop
// events from superseded sessions. Callbacks run on manager goroutines.
type Events interface {
	ChannelOpened(epoch uint64)
	ChannelClosed(epoch uint64, willReconnect bool, retryIn time.Duration)
	SnapshotTimeout(epoch uint64)
	HandleServerMessage(epoch uint64, msg vsp.ServerMessage)
}

// Options configures a Manager.
type Options struct {
	Logger *zap.Logger
	// ServerURL is the base websocket URL, e.g. ws://localhost:8900.
	ServerURL string
	Token     string
	Events    Events

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	SnapshotWait   time.Duration
	Dialer         *websocket.Dialer
}

// Manager owns at most one websocket connection at a time and reconnects
// with capped exponential backoff until told to disconnect. A new Connect
// supersedes the previous session entirely.
type Manager struct {
	log          *zap.Logger
	serverURL    string
	token        string
	events       Events
	initial      time.Duration
	max          time.Duration
	snapshotWait time.Duration
	dialer       *websocket.Dialer

	writeMu sync.Mutex

	mu            sync.Mutex
	conn          *websocket.Conn
	videoID       string
	epoch         uint64
	attempt       int
	manual        bool
	retryTimer    *time.Timer
	snapshotTimer *time.Timer
}

// NewManager creates a manager. ServerURL and Events are required.
func NewManager(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		log:          log,
		serverURL:    opts.ServerURL,
		token:        opts.Token,
		events:       opts.Events,
		initial:      opts.InitialBackoff,
		max:          opts.MaxBackoff,
		snapshotWait: opts.SnapshotWait,
		dialer:       opts.Dialer,
	}
	if m.initial <= 0 {
		m.initial = DefaultInitialBackoff
	}
	if m.max <= 0 {
		m.max = DefaultMaxBackoff
	}
	if m.snapshotWait <= 0 {
		m.snapshotWait = DefaultSnapshotWait
	}
	if m.dialer == nil {
		m.dialer = websocket.DefaultDialer
	}
	return m
}

// Connect starts a session for the video. Any previous session is torn down
// first. The dial happens asynchronously; results arrive via Events.
func (m *Manager) Connect(videoID string, epoch uint64) {
	m.mu.Lock()
	m.teardownLocked()
	m.videoID = videoID
	m.epoch = epoch
	m.attempt = 0
	m.manual = false
	m.mu.Unlock()

	go m.dial(epoch)
}

// Disconnect closes the active connection and stops reconnecting.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manual = true
	m.teardownLocked()
}

func (m *Manager) teardownLocked() {
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	if m.snapshotTimer != nil {
		m.snapshotTimer.Stop()
		m.snapshotTimer = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
}

// Send transmits a client message on the open connection. With no open
// connection the message is dropped with a warning; nothing is queued for
// later delivery.
func (m *Manager) Send(msg vsp.ClientMessage) {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		m.log.Warn("channel closed, dropping message", zap.String("type", fmt.Sprintf("%T", msg)))
		return
	}

	data, err := vsp.EncodeClientMessage(msg)
	if err != nil {
		m.log.Error("encode message", zap.Error(err))
		return
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.log.Warn("write failed", zap.Error(err))
	}
}

func (m *Manager) dial(epoch uint64) {
	m.mu.Lock()
	if m.manual || epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	url := fmt.Sprintf("%s/ws/%s", m.serverURL, m.videoID)
	m.mu.Unlock()

	header := http.Header{}
	if m.token != "" {
		header.Set("Authorization", "Bearer "+m.token)
	}

	conn, resp, err := m.dialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		m.scheduleRetry(epoch, err)
		return
	}

	m.mu.Lock()
	if m.manual || epoch != m.epoch {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.attempt = 0
	m.snapshotTimer = time.AfterFunc(m.snapshotWait, func() {
		m.events.SnapshotTimeout(epoch)
	})
	m.mu.Unlock()

	m.log.Info("channel open", zap.String("url", url))
	m.events.ChannelOpened(epoch)

	go m.pingLoop(epoch, conn)
	go m.readLoop(epoch, conn)
}

func (m *Manager) scheduleRetry(epoch uint64, cause error) {
	m.mu.Lock()
	if m.manual || epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	delay := Backoff(m.attempt, m.initial, m.max)
	m.attempt++
	m.retryTimer = time.AfterFunc(delay, func() {
		m.dial(epoch)
	})
	m.mu.Unlock()

	m.log.Warn("channel unavailable",
		zap.Error(cause),
		zap.Duration("retry_in", delay))
	m.events.ChannelClosed(epoch, true, delay)
}

func (m *Manager) readLoop(epoch uint64, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(epoch, conn, err)
			return
		}
		msg, err := vsp.DecodeServerMessage(data)
		if err != nil {
			// A bad frame is discarded; the connection stays up.
			m.log.Warn("discarding malformed message", zap.Error(err))
			continue
		}
		if _, ok := msg.(vsp.StateSync); ok {
			m.cancelSnapshotTimer()
		}
		m.events.HandleServerMessage(epoch, msg)
	}
}

func (m *Manager) pingLoop(epoch uint64, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		m.mu.Lock()
		stale := m.conn != conn || epoch != m.epoch
		m.mu.Unlock()
		if stale {
			return
		}
		m.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := conn.WriteMessage(websocket.PingMessage, nil)
		m.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (m *Manager) cancelSnapshotTimer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshotTimer != nil {
		m.snapshotTimer.Stop()
		m.snapshotTimer = nil
	}
}

func (m *Manager) handleClose(epoch uint64, conn *websocket.Conn, cause error) {
	m.mu.Lock()
	// The snapshot timer belongs to the current epoch; a close from a
	// superseded connection must not touch it.
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	if m.conn == conn {
		m.conn = nil
	}
	if m.snapshotTimer != nil {
		m.snapshotTimer.Stop()
		m.snapshotTimer = nil
	}
	if m.manual {
		m.mu.Unlock()
		conn.Close()
		m.events.ChannelClosed(epoch, false, 0)
		return
	}
	delay := Backoff(m.attempt, m.initial, m.max)
	m.attempt++
	m.retryTimer = time.AfterFunc(delay, func() {
		m.dial(epoch)
	})
	m.mu.Unlock()

	conn.Close()
	m.log.Warn("channel lost",
		zap.Error(cause),
		zap.Duration("retry_in", delay))
	m.events.ChannelClosed(epoch, true, delay)
}
