// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package route decides which client locations the current session may
// open.
package route

import (
	"path"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/internal/client/session"
)

// Fallback is where a refused navigation is sent.
const Fallback = "/"

// Rule gates paths matching Pattern behind a capability.
type Rule struct {
	Pattern    string
	Capability auth.Capability
}

// DefaultRules protect the reporter desk and the admin console. Every other
// path is public.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "/reporter", Capability: auth.CapReporterDesk},
		{Pattern: "/reporter/**", Capability: auth.CapReporterDesk},
		{Pattern: "/admin", Capability: auth.CapAdminConsole},
		{Pattern: "/admin/**", Capability: auth.CapAdminConsole},
	}
}

// Decision is the outcome of an authorization check. Redirect is set when
// Allowed is false.
type Decision struct {
	Allowed    bool
	Redirect   string
	Capability auth.Capability
}

// SessionSource reports the current session.
type SessionSource interface {
	Current() (session.Session, bool)
}

type compiledRule struct {
	Rule
	glob glob.Glob
}

// Authorizer checks navigation against the current session.
type Authorizer struct {
	sessions SessionSource
	rules    []compiledRule
}

// NewAuthorizer compiles rules. Rules are matched in order; the first match
// wins.
func NewAuthorizer(sessions SessionSource, rules []Rule) (*Authorizer, error) {
	if sessions == nil {
		return nil, oops.Errorf("session source is required")
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		g, err := glob.Compile(r.Pattern, '/')
		if err != nil {
			return nil, oops.In("route").
				Code("INVALID_ROUTE_PATTERN").
				With("pattern", r.Pattern).
				Wrap(err)
		}
		compiled = append(compiled, compiledRule{Rule: r, glob: g})
	}
	return &Authorizer{sessions: sessions, rules: compiled}, nil
}

// Authorize admits the current session only if its role is required.
func (a *Authorizer) Authorize(required auth.Role) Decision {
	current, ok := a.sessions.Current()
	if !ok || current.User.Role != required {
		return Decision{Redirect: Fallback}
	}
	return Decision{Allowed: true}
}

// AuthorizePath checks p against the rule table. Unmatched paths are public.
func (a *Authorizer) AuthorizePath(p string) Decision {
	p = Clean(p)
	for _, r := range a.rules {
		if !r.glob.Match(p) {
			continue
		}
		current, ok := a.sessions.Current()
		if !ok || !current.User.Role.Can(r.Capability) {
			return Decision{Redirect: Fallback, Capability: r.Capability}
		}
		return Decision{Allowed: true, Capability: r.Capability}
	}
	return Decision{Allowed: true}
}

// Clean normalizes a location to a rooted path without a trailing slash.
func Clean(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return path.Clean("/" + p)
}
