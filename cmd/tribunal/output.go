// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/truthtribunal/tribunal/internal/api"
)

// Output formats accepted by -o.
const (
	outputTable = "table"
	outputYAML  = "yaml"
	outputJSON  = "json"
)

func addOutputFlag(cmd *cobra.Command, target *string) {
	cmd.PersistentFlags().StringVarP(target, "output", "o", outputTable, "output format (table, yaml or json)")
}

// render writes v in format, using table for the table format.
func render(w io.Writer, format string, v any, table func(w io.Writer) error) error {
	switch format {
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return oops.Code("OUTPUT_FAILED").Wrap(err)
		}
		if err := enc.Close(); err != nil {
			return oops.Code("OUTPUT_FAILED").Wrap(err)
		}
		return nil
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return oops.Code("OUTPUT_FAILED").Wrap(err)
		}
		return nil
	case outputTable, "":
		return table(w)
	default:
		return oops.Code("INVALID_ARGUMENT").With("output", format).Errorf("unknown output format %q", format)
	}
}

func applicationTable(apps []api.Application) func(io.Writer) error {
	return func(out io.Writer) error {
		if len(apps) == 0 {
			_, err := fmt.Fprintln(out, "No applications")
			return err
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tNAME\tEMAIL\tPHONE\tSTATUS\tLICENSE\tSUBMITTED")
		for _, a := range apps {
			license := a.LicenseKey
			if license == "" {
				license = "-"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				a.ID, a.Name, a.Email, a.Phone, a.Status, license, a.CreatedAt.Format(time.DateOnly))
		}
		return w.Flush()
	}
}

func applicationDetail(a *api.Application) func(io.Writer) error {
	return func(out io.Writer) error {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		rows := [][2]string{
			{"ID", a.ID},
			{"Name", a.Name},
			{"Email", a.Email},
			{"Phone", a.Phone},
			{"Citizenship", a.CitizenshipNumber},
			{"Status", string(a.Status)},
			{"License", a.LicenseKey},
			{"Profile photo", a.ProfilePhotoURL},
			{"ID card", a.IDCardURL},
			{"Submitted", a.CreatedAt.Format(time.RFC3339)},
		}
		if a.ApprovedAt != nil {
			rows = append(rows, [2]string{"Approved", a.ApprovedAt.Format(time.RFC3339)})
		}
		if a.RevokedAt != nil {
			rows = append(rows, [2]string{"Revoked", a.RevokedAt.Format(time.RFC3339)})
		}
		for _, row := range rows {
			if row[1] == "" {
				continue
			}
			_, _ = fmt.Fprintf(w, "%s:\t%s\n", row[0], row[1])
		}
		return w.Flush()
	}
}
