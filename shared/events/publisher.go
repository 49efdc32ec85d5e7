// Package events announces finished pipeline stages to downstream consumers.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"trend-stack/internal/models"
	"trend-stack/shared/config"
	"trend-stack/shared/logging"
)

const flushTimeout = 5 * time.Second

// Publisher announces stage completions.
type Publisher interface {
	StageCompleted(ctx context.Context, summary models.StageSummary) error
	Close()
}

// New connects to NATS when a URL is configured; otherwise events are dropped.
func New(cfg config.NATSConfig) (Publisher, error) {
	if cfg.URL == "" {
		return Noop{}, nil
	}
	return NewNATS(cfg.URL, cfg.SubjectPrefix)
}

// NATSPublisher publishes JSON stage summaries on <prefix>.<stage>.completed.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

func NewNATS(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("trend-scout"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

// Subject returns the subject a stage's completion is published on.
func (p *NATSPublisher) Subject(stage models.Stage) string {
	return fmt.Sprintf("%s.%s.completed", p.prefix, stage)
}

func (p *NATSPublisher) StageCompleted(ctx context.Context, summary models.StageSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode stage summary: %w", err)
	}
	if err := p.nc.Publish(p.Subject(summary.Stage), data); err != nil {
		return fmt.Errorf("failed to publish stage event: %w", err)
	}
	// FlushWithContext rejects contexts without a deadline.
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := p.nc.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("failed to flush stage event: %w", err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	p.nc.Close()
}

// Noop discards events.
type Noop struct{}

func (Noop) StageCompleted(context.Context, models.StageSummary) error { return nil }
func (Noop) Close() {}
