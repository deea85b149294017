package sessionhub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"viewsync/internal/ports"
	"viewsync/internal/record"
	"viewsync/pkg/vsp"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultFlushInterval = 30 * time.Second
)

// Config configures the session hub.
type Config struct {
	Listen string
	// Debug makes the hub send a diagnostic TestMessage on connect.
	Debug bool
	// FlushInterval bounds how much unsaved state a crash can lose.
	FlushInterval time.Duration
}

// Module serves the websocket session endpoint and owns the authoritative
// record lifecycle: snapshot on connect, version-checked updates, persist
// on disconnect.
type Module struct {
	log     *zap.Logger
	cfg     Config
	store   *record.Store
	db      *record.DB
	auth    Authenticator
	sink    ports.EventSink
	metrics *metrics

	upgrader websocket.Upgrader
}

// NewModule creates the hub. A nil sink discards telemetry.
func NewModule(log *zap.Logger, cfg Config, store *record.Store, db *record.DB, auth Authenticator, sink ports.EventSink) *Module {
	if log == nil {
		log = zap.NewNop()
	}
	if sink == nil {
		sink = ports.NopSink{}
	}
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:8900"
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	return &Module{
		log:     log,
		cfg:     cfg,
		store:   store,
		db:      db,
		auth:    auth,
		sink:    sink,
		metrics: newMetrics(),
	}
}

func (m *Module) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(m.metrics.registry, promhttp.HandlerOpts{}))
	r.Get("/ws/{videoID}", m.handleSession)
	return r
}

// Run serves until the context is cancelled, flushing dirty records on an
// interval and once more on the way out.
func (m *Module) Run(ctx context.Context) error {
	server := &http.Server{Addr: m.cfg.Listen, Handler: m.router()}

	errCh := make(chan error, 1)
	go func() {
		m.log.Info("session hub listening", zap.String("listen", m.cfg.Listen))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := server.Shutdown(shutdownCtx)
			cancel()
			server.Close()
			m.store.FlushDirty()
			return err
		case err := <-errCh:
			return err
		case <-ticker.C:
			m.store.FlushDirty()
		}
	}
}

// session wraps one websocket connection. Writes are serialized so the
// snapshot sender, rejection replies and pings never interleave frames.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *session) send(msg vsp.ServerMessage) error {
	data, err := vsp.EncodeServerMessage(msg)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *session) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

func (m *Module) handleSession(w http.ResponseWriter, r *http.Request) {
	subject, err := m.auth.Authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	videoID := chi.URLParam(r, "videoID")
	if videoID == "" {
		http.Error(w, "missing video id", http.StatusBadRequest)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	log := m.log.With(zap.String("subject", subject), zap.String("video_id", videoID))
	key := record.Key{Subject: subject, VideoID: videoID}

	state, err := m.store.Acquire(key)
	if err != nil {
		log.Error("acquire record failed", zap.Error(err))
		conn.Close()
		return
	}

	m.metrics.activeSessions.Inc()
	log.Info("session connected", zap.Uint64("version", state.Version))

	sess := &session{conn: conn}
	defer func() {
		final, _ := m.store.Snapshot(key)
		m.store.Release(key)
		m.metrics.activeSessions.Dec()
		conn.Close()
		m.sink.SessionClosed(subject, videoID, final)
		log.Info("session closed", zap.Uint64("version", final.Version))
	}()

	// The snapshot goes out before anything else on the connection.
	if err := sess.send(vsp.StateSync{Session: state}); err != nil {
		log.Warn("send snapshot failed", zap.Error(err))
		return
	}
	m.metrics.snapshotsSent.Inc()

	if meta, found, err := m.db.Video(videoID); err != nil {
		log.Warn("load video metadata failed", zap.Error(err))
	} else if found {
		if err := sess.send(meta); err != nil {
			return
		}
	}
	if m.cfg.Debug {
		if err := sess.send(vsp.TestMessage{Text: "viewsyncd says hello"}); err != nil {
			return
		}
	}

	m.sink.SessionConnected(subject, videoID, state)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := sess.ping(); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		msg, err := vsp.DecodeClientMessage(data)
		if err != nil {
			m.metrics.malformedFrames.Inc()
			log.Warn("discarding malformed frame", zap.Error(err))
			continue
		}
		m.applyUpdate(log, sess, key, msg)
	}
}

func (m *Module) applyUpdate(log *zap.Logger, sess *session, key record.Key, msg vsp.ClientMessage) {
	var mut record.Mutation
	switch u := msg.(type) {
	case vsp.UpdatePlaybackPosition:
		mut = record.Mutation{Position: &u.CurrentTime, Version: u.Version}
	case vsp.UpdatePlaybackSpeed:
		mut = record.Mutation{Speed: &u.PlaybackSpeed, Version: u.Version}
	case vsp.UpdateVolume:
		mut = record.Mutation{Volume: &u.Volume, Version: u.Version}
	case vsp.SyncState:
		mut = record.Mutation{
			Position: &u.CurrentTime,
			Speed:    &u.PlaybackSpeed,
			Volume:   &u.Volume,
			Version:  u.Version,
		}
	default:
		return
	}

	state, accepted := m.store.Apply(key, mut)
	if accepted {
		m.metrics.updatesAccepted.Inc()
		m.sink.SessionUpdated(key.Subject, key.VideoID, state)
		return
	}

	// A rejected update means the client is behind; answer with the
	// authoritative copy so it can re-resolve.
	m.metrics.updatesRejected.Inc()
	log.Info("update rejected",
		zap.Uint64("submitted_version", mut.Version),
		zap.Uint64("record_version", state.Version))
	if err := sess.send(vsp.StateSync{Session: state}); err != nil {
		log.Warn("send rejection snapshot failed", zap.Error(err))
		return
	}
	m.metrics.snapshotsSent.Inc()
}
