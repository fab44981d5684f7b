// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthtribunal/tribunal/internal/auth"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	subcommands := []string{
		"serve", "migrate", "seed-admin", "status",
		"register", "login", "logout", "whoami", "open", "admin",
	}
	for _, sub := range subcommands {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
	assert.Contains(t, output, "Server Commands:")
	assert.Contains(t, output, "Client Commands:")
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"config", "log-format", "log-level"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestAdminCommand_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	admin, _, err := cmd.Find([]string{"admin"})
	require.NoError(t, err)

	var names []string
	for _, sub := range admin.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"pending", "approved", "show", "approve", "revoke"}, names)
	assert.NotNil(t, admin.PersistentFlags().ShorthandLookup("o"))
}

func TestReportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: "Error: boom\n",
		},
		{
			name: "coded error",
			err:  oops.Code(auth.CodeInvalidTransition).Errorf("account is not pending"),
			want: "Error: account is not pending\n",
		},
		{
			name: "validation fields are listed in order",
			err: oops.Code(auth.CodeValidation).
				With("fields", map[string]string{"phone_number": "must be a valid phone number", "email": "cannot be blank"}).
				Errorf("invalid application"),
			want: "Error: invalid application\n  email: cannot be blank\n  phone_number: must be a valid phone number\n",
		},
		{
			name: "rejected session is reported by the guard instead",
			err:  oops.Code(auth.CodeUnauthorized).Errorf("token expired"),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			reportError(&buf, tt.err)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}
