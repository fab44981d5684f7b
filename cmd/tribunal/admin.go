// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/truthtribunal/tribunal/internal/api"
	"github.com/truthtribunal/tribunal/internal/auth"
)

func newAdminCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Review applications and manage reporters",
		Long:  `Administrator commands. They require an admin session from ` + "`tribunal login`" + `.`,
	}
	addClientFlags(cmd)
	addOutputFlag(cmd, &output)

	// asAdmin checks the stored session before anything is sent.
	asAdmin := func(fn func(cmd *cobra.Command, args []string, env *clientEnv) error) func(*cobra.Command, []string) error {
		return withClient(opts, func(cmd *cobra.Command, args []string, env *clientEnv) error {
			if err := env.requireRole(auth.RoleAdmin); err != nil {
				return err
			}
			return fn(cmd, args, env)
		})
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List applications awaiting review",
		Args:  cobra.NoArgs,
		RunE: asAdmin(func(cmd *cobra.Command, _ []string, env *clientEnv) error {
			apps, err := env.api.ListPending(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, apps, applicationTable(apps))
		}),
	}

	var search string
	approved := &cobra.Command{
		Use:   "approved",
		Short: "List approved reporters",
		Long:  `List approved reporters, optionally filtered by a case-insensitive substring of name or email.`,
		Args:  cobra.NoArgs,
		RunE: asAdmin(func(cmd *cobra.Command, _ []string, env *clientEnv) error {
			apps, err := env.api.ListApproved(cmd.Context(), search)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, apps, applicationTable(apps))
		}),
	}
	approved.Flags().StringVarP(&search, "search", "q", "", "name or email substring")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show an application with its documents",
		Args:  cobra.ExactArgs(1),
		RunE: asAdmin(func(cmd *cobra.Command, args []string, env *clientEnv) error {
			app, err := env.api.GetApplication(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), output, app, applicationDetail(app))
		}),
	}

	approve := &cobra.Command{
		Use:   "approve ID",
		Short: "Approve a pending application and issue its license",
		Args:  cobra.ExactArgs(1),
		RunE: asAdmin(func(cmd *cobra.Command, args []string, env *clientEnv) error {
			license, err := env.api.Approve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			resp := api.ApproveResponse{LicenseKey: license}
			return render(cmd.OutOrStdout(), output, resp, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Approved %s\nLicense: %s\n", args[0], license)
				return err
			})
		}),
	}

	revoke := &cobra.Command{
		Use:   "revoke ID",
		Short: "Revoke an approved reporter",
		Long: `Revoke an approved reporter. Future logins fail; sessions already
issued stay valid until they expire.`,
		Args: cobra.ExactArgs(1),
		RunE: asAdmin(func(cmd *cobra.Command, args []string, env *clientEnv) error {
			if err := env.api.Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			resp := api.RevokeResponse{Status: auth.StatusRevoked}
			return render(cmd.OutOrStdout(), output, resp, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Revoked %s\n", args[0])
				return err
			})
		}),
	}

	cmd.AddCommand(pending, approved, show, approve, revoke)
	return cmd
}
