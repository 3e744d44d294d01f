// Package events publishes run lifecycle events to NATS JetStream so other
// systems can react to publishes without polling the status endpoint.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/pagepress/internal/config"
	"git.home.luguber.info/inful/pagepress/internal/pipeline"
)

// RunEvent is the wire format published for each run lifecycle event.
type RunEvent struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	Group     string    `json:"group,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Commit    string    `json:"commit,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher forwards pipeline events to a JetStream subject.
type Publisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewPublisher connects to NATS and prepares a JetStream context.
func NewPublisher(cfg config.EventsConfig) (*Publisher, error) {
	if cfg.NATSURL == "" {
		return nil, fmt.Errorf("events require a nats_url")
	}

	conn, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	slog.Info("NATS publisher initialized", "url", cfg.NATSURL, "subject", cfg.Subject)
	return &Publisher{conn: conn, js: js, subject: cfg.Subject}, nil
}

// Handler returns a bus handler that forwards events to NATS. Publish
// failures are logged, never propagated, so NATS outages cannot fail runs.
func (p *Publisher) Handler() pipeline.Handler {
	return func(e pipeline.Event) error {
		if err := p.publish(e); err != nil {
			slog.Warn("Failed to publish run event", "event", e.Name(), "run_id", e.GetRunID(), "error", err)
		}
		return nil
	}
}

func (p *Publisher) publish(e pipeline.Event) error {
	event := RunEvent{Type: e.Name(), RunID: e.GetRunID(), Timestamp: time.Now()}
	switch ev := e.(type) {
	case pipeline.RunStarted:
		event.Group = ev.Group
	case pipeline.StageFailed:
		event.Stage = string(ev.Stage)
		event.Error = ev.Err
	case pipeline.RunCompleted:
		event.Commit = ev.Commit
	case pipeline.RunFailed:
		event.Stage = string(ev.Stage)
		event.Error = ev.Err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
