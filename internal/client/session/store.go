// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package session

import (
	"context"
	"sync"
)

// Slot names.
const (
	SlotUser  = "user"
	SlotToken = "token"
)

// Slots is the persisted pair. A zero field means the slot is empty.
type Slots struct {
	User  []byte
	Token string
}

// SlotStore persists the user and token slots. Save and Clear touch both
// slots atomically.
type SlotStore interface {
	Load(ctx context.Context) (Slots, error)
	Save(ctx context.Context, slots Slots) error
	Clear(ctx context.Context) error
}

// MemoryStore is a SlotStore held in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	slots Slots
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements SlotStore.
func (m *MemoryStore) Load(_ context.Context) (Slots, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Slots{User: append([]byte(nil), m.slots.User...), Token: m.slots.Token}, nil
}

// Save implements SlotStore.
func (m *MemoryStore) Save(_ context.Context, slots Slots) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots = Slots{User: append([]byte(nil), slots.User...), Token: slots.Token}
	return nil
}

// Clear implements SlotStore.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots = Slots{}
	return nil
}

var _ SlotStore = (*MemoryStore)(nil)
