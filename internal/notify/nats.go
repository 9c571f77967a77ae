// Package notify publishes run lifecycle events to NATS JetStream.
//
// Publishing is strictly best-effort: a documentation pipeline must never fail
// because the message broker is down, so all errors are logged and swallowed
// by the callers that treat notification as optional.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/docspipe/internal/config"
)

// RunEvent is the payload published when a run finishes.
type RunEvent struct {
	RunID     string    `json:"run_id"`
	Pipeline  string    `json:"pipeline"`
	EventType string    `json:"event_type"`
	Branch    string    `json:"branch,omitempty"`
	PRNumber  int       `json:"pr_number,omitempty"`
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher publishes run events over JetStream.
type Publisher struct {
	conn    *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewPublisher connects to NATS and prepares a JetStream context.
func NewPublisher(cfg *config.NotifyConfig) (*Publisher, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("run event publishing is disabled")
	}
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "docspipe.runs"
	}
	slog.Info("NATS run event publisher initialized", "url", cfg.URL, "subject", subject)
	return &Publisher{conn: conn, js: js, subject: subject}, nil
}

// PublishRunFinished publishes a run-finished event.
func (p *Publisher) PublishRunFinished(event *RunEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	event.Timestamp = time.Now()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	if _, err := p.js.Publish(ctx, p.subject, data); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}
	slog.Debug("Published run event",
		"run_id", event.RunID,
		"outcome", event.Outcome,
		"subject", p.subject)
	return nil
}

// Close drains the NATS connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
