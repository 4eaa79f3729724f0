// Package log is the publisher used when no event topic is configured. It
// writes each event to the structured log.
package log

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/static-mirror/internal/logging"
)

// Publisher logs payloads instead of sending them anywhere.
type Publisher struct {
	logger *zap.Logger
	seq    atomic.Int64
}

// New returns a Publisher writing to logger.
func New(logger *zap.Logger) *Publisher {
	return &Publisher{logger: logging.Component(logger, "publisher")}
}

// Publish logs the event and returns a local sequence id.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	id := fmt.Sprintf("log-%d", p.seq.Add(1))
	p.logger.Info("event published",
		zap.String("event", topic),
		zap.String("id", id),
		zap.ByteString("payload", data),
	)
	return id, nil
}
