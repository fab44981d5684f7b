// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/truthtribunal/tribunal/internal/api"
	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/internal/client"
	"github.com/truthtribunal/tribunal/internal/client/route"
)

type registerOptions struct {
	app           auth.Application
	photoFile     string
	idCardFile    string
	passwordStdin bool
}

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	ro := &registerOptions{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Apply for a reporter account",
		Long: `Submit a reporter application. The account stays pending until an
administrator approves it.

Documents are either uploaded from local files (--photo and --id-card) or
referenced by URL (--photo-url and --id-card-url).`,
		Args: cobra.NoArgs,
		RunE: withClient(opts, func(cmd *cobra.Command, _ []string, env *clientEnv) error {
			password, err := readPassword(cmd, ro.passwordStdin)
			if err != nil {
				return err
			}
			app := ro.app
			app.Password = password

			var resp *api.RegisterResponse
			if ro.photoFile != "" {
				photo, err := readDocument(ro.photoFile)
				if err != nil {
					return err
				}
				idCard, err := readDocument(ro.idCardFile)
				if err != nil {
					return err
				}
				resp, err = env.api.RegisterWithDocuments(cmd.Context(), app, photo, idCard)
				if err != nil {
					return err
				}
			} else {
				resp, err = env.api.Register(cmd.Context(), app)
				if err != nil {
					return err
				}
			}

			cmd.Printf("Application %s submitted (status: %s)\n", resp.ID, resp.Status)
			cmd.Println("You can log in once an administrator approves it and issues your license.")
			return nil
		}),
	}

	flags := cmd.Flags()
	flags.StringVar(&ro.app.Name, "name", "", "full name")
	flags.StringVar(&ro.app.Email, "email", "", "email address")
	flags.StringVar(&ro.app.Phone, "phone", "", "phone number")
	flags.StringVar(&ro.app.CitizenshipNumber, "citizenship", "", "citizenship number")
	flags.StringVar(&ro.app.ProfilePhotoURL, "photo-url", "", "profile photo URL")
	flags.StringVar(&ro.app.IDCardURL, "id-card-url", "", "reporter ID card URL")
	flags.StringVar(&ro.photoFile, "photo", "", "profile photo file to upload")
	flags.StringVar(&ro.idCardFile, "id-card", "", "ID card file to upload")
	flags.BoolVar(&ro.passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.MarkFlagsRequiredTogether("photo", "id-card")
	cmd.MarkFlagsMutuallyExclusive("photo", "photo-url")
	cmd.MarkFlagsMutuallyExclusive("id-card", "id-card-url")
	addClientFlags(cmd)

	return cmd
}

func readDocument(path string) (client.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return client.Document{}, oops.Code("DOCUMENT_READ_FAILED").With("path", path).Wrap(err)
	}
	return client.Document{ContentType: http.DetectContentType(data), Data: data}, nil
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var creds auth.Credentials
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in with email and password. Reporters must also pass the license
key they received on approval.`,
		Args: cobra.NoArgs,
		RunE: withClient(opts, func(cmd *cobra.Command, _ []string, env *clientEnv) error {
			password, err := readPassword(cmd, passwordStdin)
			if err != nil {
				return err
			}
			creds.Password = password

			s, err := env.api.Login(cmd.Context(), creds)
			if err != nil {
				return err
			}
			cmd.Printf("Logged in as %s (%s), session valid until %s\n",
				s.User.Name, s.User.Role, s.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		}),
	}

	cmd.Flags().StringVar(&creds.Email, "email", "", "email address")
	cmd.Flags().StringVar(&creds.LicenseKey, "license", "", "license key (reporters)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	addClientFlags(cmd)

	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: withClient(opts, func(cmd *cobra.Command, _ []string, env *clientEnv) error {
			if _, ok := env.guard.Current(); !ok {
				cmd.Println("Not logged in")
				return nil
			}
			if err := env.guard.Logout(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("Logged out")
			return nil
		}),
	}
	addClientFlags(cmd)
	return cmd
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	var remote bool
	var output string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Long: `Show the account of the stored session. With --remote the server is
asked, which also detects a session the server no longer accepts.`,
		Args: cobra.NoArgs,
		RunE: withClient(opts, func(cmd *cobra.Command, _ []string, env *clientEnv) error {
			current, ok := env.guard.Current()
			if !ok {
				return oops.Code("NOT_LOGGED_IN").Errorf("not logged in; run `tribunal login`")
			}
			user := current.User
			if remote {
				me, err := env.api.Me(cmd.Context())
				if err != nil {
					return err
				}
				user = *me
			}
			return render(cmd.OutOrStdout(), output, user, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "%s <%s> (%s)\n", user.Name, user.Email, user.Role)
				return err
			})
		}),
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "verify the session with the server")
	addOutputFlag(cmd, &output)
	addClientFlags(cmd)
	return cmd
}

func newOpenCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open PATH",
		Short: "Check whether the session may open an app route",
		Long: `Check PATH against the route table. /reporter/** needs a reporter
session and /admin/** an admin session; other paths are public.`,
		Args: cobra.ExactArgs(1),
		RunE: withClient(opts, func(cmd *cobra.Command, args []string, env *clientEnv) error {
			target := route.Clean(args[0])
			decision := env.routes.AuthorizePath(target)
			if !decision.Allowed {
				return oops.Code(auth.CodeForbidden).
					With("path", target).
					With("capability", decision.Capability).
					Errorf("%s requires %s; redirected to %s", target, decision.Capability, decision.Redirect)
			}
			cmd.Printf("%s: allowed\n", target)
			return nil
		}),
	}
	addClientFlags(cmd)
	return cmd
}
