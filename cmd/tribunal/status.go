// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package main

import (
	"context"
	cryptotls "crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/truthtribunal/tribunal/internal/config"
	"github.com/truthtribunal/tribunal/internal/control"
	tribunaltls "github.com/truthtribunal/tribunal/internal/tls"
)

// ComponentStatus holds the health of one server component.
type ComponentStatus struct {
	Component string `json:"component"`
	Addr      string `json:"addr"`
	Healthy   bool   `json:"healthy"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	timeout    time.Duration
}

var statusFlagKeys = map[string]string{
	"addr":         "http.addr",
	"control-addr": "control.addr",
	"control-tls":  "control.tls",
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	cfg := &statusConfig{}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running server",
		Long:  `Query the gRPC health service and the API health endpoint of a running server.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, opts, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 2*time.Second, "per-check timeout")
	cmd.Flags().String("addr", defaults.HTTP.Addr, "API address")
	cmd.Flags().String("control-addr", defaults.Control.Addr, "gRPC health address")
	cmd.Flags().Bool("control-tls", defaults.Control.TLS, "verify the gRPC health server against the local CA")

	return cmd
}

func runStatus(cmd *cobra.Command, opts *rootOptions, sc *statusConfig) error {
	cfg, err := loadConfig(cmd, opts, statusFlagKeys)
	if err != nil {
		return err
	}

	statuses := []ComponentStatus{
		queryControlStatus(cmd.Context(), cfg.Control, sc.timeout),
		queryAPIStatus(cmd.Context(), cfg.HTTP.Addr, sc.timeout),
	}

	if sc.jsonOutput {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		cmd.Println(string(data))
	} else {
		cmd.Print(formatStatusTable(statuses))
	}

	for _, s := range statuses {
		if !s.Healthy {
			return errUnhealthy
		}
	}
	return nil
}

var errUnhealthy = oops.Code("SERVER_UNHEALTHY").Errorf("server is not healthy")

func queryControlStatus(ctx context.Context, cfg config.ControlConfig, timeout time.Duration) ComponentStatus {
	status := ComponentStatus{Component: "control", Addr: cfg.Addr}
	if cfg.Addr == "" {
		status.Status = "disabled"
		status.Healthy = true
		return status
	}
	var tlsConfig *cryptotls.Config
	if cfg.TLS {
		var err error
		if tlsConfig, err = tribunaltls.ClientConfig(cfg.CertsDir); err != nil {
			status.Error = err.Error()
			return status
		}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	serving, err := control.Check(ctx, cfg.Addr, control.ServiceAPI, tlsConfig)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Status = serving.String()
	status.Healthy = serving == healthpb.HealthCheckResponse_SERVING
	return status
}

func queryAPIStatus(ctx context.Context, addr string, timeout time.Duration) ComponentStatus {
	status := ComponentStatus{Component: "api", Addr: addr}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/healthz", http.NoBody)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		status.Error = fmt.Sprintf("failed to decode health response: %v", err)
		return status
	}
	status.Status = body.Status
	status.Healthy = resp.StatusCode == http.StatusOK && body.Status == "ok"
	return status
}

func formatStatusTable(statuses []ComponentStatus) string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COMPONENT\tADDR\tHEALTH\tERROR")
	for _, s := range statuses {
		health := s.Status
		if health == "" {
			health = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Component, s.Addr, health, s.Error)
	}
	_ = w.Flush()
	return b.String()
}
