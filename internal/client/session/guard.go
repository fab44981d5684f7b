// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package session owns the client's current session: it persists the user
// and token slots, answers who is signed in, and ends the session when the
// server rejects its token.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/internal/client/bus"
)

// ExpiredMessage is shown once when a session is ended by the server.
const ExpiredMessage = "Session expired. Please log in again."

// LoginPath is where the user is sent after expiry.
const LoginPath = "/login"

// Notifier shows a message to the user.
type Notifier interface {
	Notify(message string)
}

// Navigator moves the user to another location.
type Navigator interface {
	Redirect(path string)
}

// Session is the signed-in user and the bearer token.
type Session struct {
	User  auth.Projection
	Token string
}

// Guard holds the current session. It is safe for concurrent use.
type Guard struct {
	mu        sync.Mutex
	current   *Session
	store     SlotStore
	bus       *bus.Bus
	notifier  Notifier
	navigator Navigator
	logger    *slog.Logger
}

// NewGuard creates a Guard with no current session. Call Restore to load a
// persisted one.
func NewGuard(store SlotStore, b *bus.Bus, notifier Notifier, navigator Navigator, logger *slog.Logger) (*Guard, error) {
	switch {
	case store == nil:
		return nil, oops.Errorf("slot store is required")
	case b == nil:
		return nil, oops.Errorf("bus is required")
	case notifier == nil:
		return nil, oops.Errorf("notifier is required")
	case navigator == nil:
		return nil, oops.Errorf("navigator is required")
	case logger == nil:
		return nil, oops.Errorf("logger is required")
	}
	return &Guard{store: store, bus: b, notifier: notifier, navigator: navigator, logger: logger}, nil
}

// Establish records a new session. Both slots are written before the
// in-memory state changes.
func (g *Guard) Establish(ctx context.Context, user auth.Projection, token string) error {
	if token == "" || user.ID == "" || !user.Role.Valid() {
		return oops.Code(auth.CodeValidation).
			With("user_id", user.ID).
			Errorf("session needs a user and a token")
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return oops.Code("SESSION_ENCODE_FAILED").Wrap(err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.store.Save(ctx, Slots{User: raw, Token: token}); err != nil {
		return err
	}
	g.current = &Session{User: user, Token: token}
	g.logger.DebugContext(ctx, "session established", "account_id", user.ID, "role", user.Role)
	return nil
}

// Clear ends the current session and wipes both slots.
func (g *Guard) Clear(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.clearLocked(ctx)
}

func (g *Guard) clearLocked(ctx context.Context) error {
	g.current = nil
	return g.store.Clear(ctx)
}

// Logout ends the session at the user's request. No notification is shown.
func (g *Guard) Logout(ctx context.Context) error {
	return g.Clear(ctx)
}

// Current returns the session, if any.
func (g *Guard) Current() (Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return Session{}, false
	}
	return *g.current, true
}

// Token returns the bearer token of the current session or "".
func (g *Guard) Token() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return ""
	}
	return g.current.Token
}

// Restore loads the persisted session. A half-written or unreadable pair is
// wiped and treated as no session. It reports whether a session was loaded.
func (g *Guard) Restore(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	slots, err := g.store.Load(ctx)
	if err != nil {
		return false, err
	}
	if len(slots.User) == 0 && slots.Token == "" {
		g.current = nil
		return false, nil
	}

	var user auth.Projection
	if len(slots.User) == 0 || slots.Token == "" || json.Unmarshal(slots.User, &user) != nil || user.ID == "" || !user.Role.Valid() {
		g.logger.WarnContext(ctx, "discarding incomplete session slots")
		return false, g.clearLocked(ctx)
	}
	g.current = &Session{User: user, Token: slots.Token}
	return true, nil
}

// HandleUnauthorized ends the session whose token the server rejected.
// Signals for another token or for an already cleared session are ignored,
// so any number of concurrent signals for one session produce one
// notification and one redirect. It reports whether the session was ended.
func (g *Guard) HandleUnauthorized(ctx context.Context, sig bus.Signal) bool {
	g.mu.Lock()
	if g.current == nil || sig.Token == "" || g.current.Token != sig.Token {
		g.mu.Unlock()
		return false
	}
	accountID := g.current.User.ID
	if err := g.clearLocked(ctx); err != nil {
		g.logger.ErrorContext(ctx, "failed to wipe session slots", "error", err)
	}
	g.mu.Unlock()

	g.logger.InfoContext(ctx, "session expired", "account_id", accountID)
	g.bus.Publish(bus.Signal{Topic: bus.TopicSessionExpired, Token: sig.Token})
	g.notifier.Notify(ExpiredMessage)
	g.navigator.Redirect(LoginPath)
	return true
}

// Run dispatches unauthorized signals from the bus until ctx is done.
// Signals already queued when ctx ends are still handled.
func (g *Guard) Run(ctx context.Context) {
	g.loop(ctx, g.bus.Subscribe(bus.TopicUnauthorized))
}

// Start subscribes to the bus before returning and runs the dispatch loop in
// the background. The returned channel closes once the loop has exited.
func (g *Guard) Start(ctx context.Context) <-chan struct{} {
	ch := g.bus.Subscribe(bus.TopicUnauthorized)
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.loop(ctx, ch)
	}()
	return done
}

func (g *Guard) loop(ctx context.Context, ch <-chan bus.Signal) {
	for {
		select {
		case sig := <-ch:
			g.HandleUnauthorized(ctx, sig)
		case <-ctx.Done():
			g.bus.Unsubscribe(bus.TopicUnauthorized, ch)
			drain := context.WithoutCancel(ctx)
			for sig := range ch {
				g.HandleUnauthorized(drain, sig)
			}
			return
		}
	}
}
