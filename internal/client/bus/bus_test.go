// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Signal) Signal {
	t.Helper()
	select {
	case sig, ok := <-ch:
		require.True(t, ok, "channel closed")
		return sig
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for signal")
		return Signal{}
	}
}

func TestBus_PublishReachesTopicSubscribers(t *testing.T) {
	b := New(nil)
	first := b.Subscribe(TopicUnauthorized)
	second := b.Subscribe(TopicUnauthorized)
	other := b.Subscribe(TopicSessionExpired)

	b.Publish(Signal{Topic: TopicUnauthorized, Token: "tok-1"})

	assert.Equal(t, "tok-1", receive(t, first).Token)
	assert.Equal(t, "tok-1", receive(t, second).Token)
	select {
	case sig := <-other:
		t.Fatalf("unexpected signal on other topic: %+v", sig)
	default:
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New(nil)
	ch := b.Subscribe(TopicSessionExpired)
	require.Equal(t, 1, b.Subscribers(TopicSessionExpired))

	b.Unsubscribe(TopicSessionExpired, ch)
	assert.Zero(t, b.Subscribers(TopicSessionExpired))

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")

	// A second unsubscribe is a no-op.
	b.Unsubscribe(TopicSessionExpired, ch)
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	b := New(nil)
	ch := b.Subscribe(TopicUnauthorized)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range DefaultBuffer * 2 {
			b.Publish(Signal{Topic: TopicUnauthorized, Token: "t"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, DefaultBuffer)
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil).Publish(Signal{Topic: TopicUnauthorized})
	})
}
