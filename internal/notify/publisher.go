// Package notify publishes apply summaries to NATS so that other services
// can follow changes to the graph.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fruitflybrain/neuroarch/internal/apply"
	"github.com/fruitflybrain/neuroarch/internal/errors"
	"github.com/fruitflybrain/neuroarch/internal/logging"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "neuroarch.apply"

// Config holds the connection settings.
type Config struct {
	URL     string
	Subject string
	Name    string
	Timeout time.Duration
}

// Publisher sends one message per apply report on <subject>.<kind>.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// Connect dials NATS and returns a publisher owning the connection.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.ConfigErrorf("nats url is empty")
	}
	if cfg.Name == "" {
		cfg.Name = "neuroarch"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	logger := logging.Component("notify")

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh, "connect to nats at "+cfg.URL)
	}
	p := NewPublisher(conn, cfg.Subject)
	p.logger = logger
	return p, nil
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{conn: conn, subject: subject, logger: logging.Component("notify")}
}

// Subject returns the subject a report of kind is published on.
func (p *Publisher) Subject(kind apply.Kind) string {
	return p.subject + "." + string(kind)
}

// PublishReport implements apply.Notifier.
func (p *Publisher) PublishReport(ctx context.Context, r *apply.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(r)
	if err != nil {
		return err
	}
	subject := p.Subject(r.Kind)
	if err := p.conn.Publish(subject, data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.SeverityMedium, "publish to "+subject)
	}
	p.logger.Debug("apply report published", "subject", subject, "chunks", len(r.Chunks))
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Drain()
}

// Encode renders the JSON payload for a report.
func Encode(r *apply.Report) ([]byte, error) {
	data, err := json.Marshal(r.Summarize())
	if err != nil {
		return nil, errors.InternalErrorf("encode apply summary: %v", err)
	}
	return data, nil
}
