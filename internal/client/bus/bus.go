// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package bus carries client-side session signals between the transport
// layer and the session guard.
package bus

import (
	"log/slog"
	"sync"
)

// Topic names a signal stream.
type Topic string

const (
	// TopicUnauthorized is published by the API client when the server
	// rejects a request's bearer token.
	TopicUnauthorized Topic = "unauthorized"

	// TopicSessionExpired is published by the guard after it clears a
	// session in response to TopicUnauthorized.
	TopicSessionExpired Topic = "session-expired"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// Signal is a single bus message. Token is the bearer token the failing
// request carried, or the token of the session that expired.
type Signal struct {
	Topic Topic
	Token string
}

// Bus distributes signals to subscribers of a topic.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]chan Signal
	buffer int
	logger *slog.Logger
}

// New creates a bus. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[Topic][]chan Signal),
		buffer: DefaultBuffer,
		logger: logger,
	}
}

// Subscribe creates a channel receiving signals published on topic.
func (b *Bus) Subscribe(topic Topic) <-chan Signal {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Signal, b.buffer)
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe. Unknown
// channels are ignored.
func (b *Bus) Unsubscribe(topic Topic, ch <-chan Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, sub := range subs {
		if sub == ch {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Publish delivers sig to every subscriber of sig.Topic without blocking.
// A subscriber whose buffer is full misses the signal.
func (b *Bus) Publish(sig Signal) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[sig.Topic] {
		select {
		case ch <- sig:
		default:
			b.logger.Warn("signal dropped: subscriber buffer full", "topic", string(sig.Topic))
		}
	}
}

// Subscribers reports how many channels listen on topic.
func (b *Bus) Subscribers(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
