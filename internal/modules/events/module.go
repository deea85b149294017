package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"viewsync/internal/adapters/idgen"
	"viewsync/internal/ports"
	"viewsync/pkg/vsp"
)

// Publisher sends telemetry payloads to a broker.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// Config configures the telemetry bridge.
type Config struct {
	TopicBase string
	Buffer    int
}

type event struct {
	kind    string
	subject string
	videoID string
	state   vsp.SessionState
	at      time.Time
}

type payload struct {
	ID      string           `json:"id"`
	Event   string           `json:"event"`
	Subject string           `json:"subject"`
	VideoID string           `json:"video_id"`
	Session vsp.SessionState `json:"session"`
	At      time.Time        `json:"at"`
}

// Module bridges session lifecycle events onto MQTT. It implements the
// hub's event sink: enqueueing never blocks the session path, a full
// buffer drops the event instead.
type Module struct {
	log       *zap.Logger
	pub       Publisher
	ids       ports.IDGen
	topicBase string
	queue     chan event
}

// NewModule creates the bridge over a connected publisher.
func NewModule(log *zap.Logger, pub Publisher, cfg Config) *Module {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TopicBase == "" {
		cfg.TopicBase = "viewsync/v1"
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Module{
		log:       log,
		pub:       pub,
		ids:       idgen.Generator{},
		topicBase: cfg.TopicBase,
		queue:     make(chan event, cfg.Buffer),
	}
}

func (m *Module) SessionConnected(subject, videoID string, state vsp.SessionState) {
	m.enqueue("connected", subject, videoID, state)
}

func (m *Module) SessionUpdated(subject, videoID string, state vsp.SessionState) {
	m.enqueue("updated", subject, videoID, state)
}

func (m *Module) SessionClosed(subject, videoID string, state vsp.SessionState) {
	m.enqueue("closed", subject, videoID, state)
}

func (m *Module) enqueue(kind, subject, videoID string, state vsp.SessionState) {
	select {
	case m.queue <- event{kind, subject, videoID, state, time.Now().UTC()}:
	default:
		m.log.Warn("telemetry buffer full, dropping event",
			zap.String("event", kind),
			zap.String("video_id", videoID))
	}
}

// Run drains the queue until the context is cancelled. The last state per
// session is published retained so late subscribers see it.
func (m *Module) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-m.queue:
			m.publish(e)
		}
	}
}

func (m *Module) publish(e event) {
	body, err := json.Marshal(payload{
		ID:      m.ids.NewID(),
		Event:   e.kind,
		Subject: e.subject,
		VideoID: e.videoID,
		Session: e.state,
		At:      e.at,
	})
	if err != nil {
		m.log.Error("marshal telemetry", zap.Error(err))
		return
	}
	topic := fmt.Sprintf("%s/session/%s/%s/state", m.topicBase, e.subject, e.videoID)
	if err := m.pub.Publish(topic, true, body); err != nil {
		m.log.Warn("publish telemetry failed", zap.String("topic", topic), zap.Error(err))
	}
}
