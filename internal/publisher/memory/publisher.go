// Package memory keeps post-deploy notifications in memory. Tests and the
// CLI default use it when no Pub/Sub topic is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/static-mirror/internal/deployer"
)

// Publisher records every publish call.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
	err      error
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Topic   string
	Payload any
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// FailWith makes later Publish calls return err without recording anything.
// A nil err restores normal behaviour.
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records the message and returns a sequential ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, PublishedMessage{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns a copy of the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// DeployEvents returns the payloads published on the deploy-finished topic.
func (p *Publisher) DeployEvents() []deployer.Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var events []deployer.Event
	for _, m := range p.messages {
		if m.Topic != deployer.EventDeployFinished {
			continue
		}
		if ev, ok := m.Payload.(deployer.Event); ok {
			events = append(events, ev)
		}
	}
	return events
}
