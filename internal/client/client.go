// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

// Package client talks to the identity service over HTTP on behalf of the
// CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/truthtribunal/tribunal/internal/api"
	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/internal/client/bus"
	"github.com/truthtribunal/tribunal/internal/upload"
)

// DefaultTimeout bounds every request when Options.Timeout is zero.
const DefaultTimeout = 15 * time.Second

// Sessions supplies the bearer token and records new sessions.
type Sessions interface {
	Token() string
	Establish(ctx context.Context, user auth.Projection, token string) error
}

// Options configure a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Sessions   Sessions
	Bus        *bus.Bus
	Logger     *slog.Logger
}

// Client is an API client. Requests carry the current session's token.
type Client struct {
	base     *url.URL
	http     *http.Client
	sessions Sessions
	bus      *bus.Bus
	logger   *slog.Logger
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, oops.Code("CLIENT_CONFIG_INVALID").With("base_url", opts.BaseURL).Errorf("base URL must be an absolute http(s) URL")
	}
	if opts.Sessions == nil {
		return nil, oops.Errorf("sessions are required")
	}
	if opts.Bus == nil {
		return nil, oops.Errorf("bus is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{base: base, http: httpClient, sessions: opts.Sessions, bus: opts.Bus, logger: opts.Logger}, nil
}

// request is one API call. authed requests carry the session token.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	authed bool
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	target := c.base.JoinPath(req.path)
	if len(req.query) > 0 {
		target.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return oops.Code("CLIENT_ENCODE_FAILED").With("path", req.path).Wrap(err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), body)
	if err != nil {
		return oops.Code("CLIENT_REQUEST_INVALID").With("path", req.path).Wrap(err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	var token string
	if req.authed {
		token = c.sessions.Token()
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return oops.Code(auth.CodeUpstream).
			With("method", req.method).
			With("path", req.path).
			Wrapf(err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return oops.Code(auth.CodeUpstream).With("path", req.path).Wrapf(err, "malformed response")
		}
		return nil
	}
	return c.failure(resp, req, token)
}

// failure converts an error response. A 401 of the unauthorized class on a
// request that carried a token is announced on the bus.
func (c *Client) failure(resp *http.Response, req request, token string) error {
	var e api.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &e) != nil || e.Error == "" {
		code := "HTTP_ERROR"
		if resp.StatusCode >= 500 {
			code = auth.CodeUpstream
		}
		return oops.Code(code).
			With("status", resp.StatusCode).
			With("path", req.path).
			Errorf("unexpected response %s", resp.Status)
	}

	if resp.StatusCode == http.StatusUnauthorized && e.Error == api.WireUnauthorized {
		if token != "" {
			c.logger.Debug("server rejected session token", "path", req.path)
			c.bus.Publish(bus.Signal{Topic: bus.TopicUnauthorized, Token: token})
		}
		return oops.Code(auth.CodeUnauthorized).With("status", resp.StatusCode).Errorf("%s", messageOr(e, "not signed in"))
	}

	code := strings.ToUpper(e.Error)
	if resp.StatusCode == http.StatusBadGateway {
		code = auth.CodeUpstream
	}
	builder := oops.Code(code).With("status", resp.StatusCode).With("path", req.path)
	if len(e.Fields) > 0 {
		builder = builder.With("fields", e.Fields)
	}
	return builder.Errorf("%s", messageOr(e, resp.Status))
}

func messageOr(e api.ErrorResponse, fallback string) string {
	if e.Message != "" {
		return e.Message
	}
	return fallback
}

// Register submits a reporter application.
func (c *Client) Register(ctx context.Context, app auth.Application) (*api.RegisterResponse, error) {
	var out api.RegisterResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/register", body: app}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Document is a file attached to an application.
type Document struct {
	ContentType string
	Data        []byte
}

// RegisterWithDocuments uploads the profile photo and ID card, then submits
// the application referencing them. Nothing is submitted if an upload fails.
func (c *Client) RegisterWithDocuments(ctx context.Context, app auth.Application, photo, idCard Document) (*api.RegisterResponse, error) {
	photoURL, err := c.Upload(ctx, upload.KindProfilePhoto, photo)
	if err != nil {
		return nil, err
	}
	idURL, err := c.Upload(ctx, upload.KindIDCard, idCard)
	if err != nil {
		return nil, err
	}
	app.ProfilePhotoURL = photoURL
	app.IDCardURL = idURL
	return c.Register(ctx, app)
}

// Login verifies credentials and establishes the returned session.
func (c *Client) Login(ctx context.Context, creds auth.Credentials) (*auth.Session, error) {
	var session auth.Session
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/login", body: creds}, &session); err != nil {
		return nil, err
	}
	if err := c.sessions.Establish(ctx, session.User, session.Token); err != nil {
		return nil, err
	}
	return &session, nil
}

// Me returns the signed-in account.
func (c *Client) Me(ctx context.Context) (*auth.Projection, error) {
	var out auth.Projection
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/me", authed: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPending returns applications awaiting review.
func (c *Client) ListPending(ctx context.Context) ([]api.Application, error) {
	var out []api.Application
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/admin/requests", authed: true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListApproved returns approved reporters matching search.
func (c *Client) ListApproved(ctx context.Context, search string) ([]api.Application, error) {
	var query url.Values
	if search != "" {
		query = url.Values{"q": {search}}
	}
	var out []api.Application
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/admin/reporters", query: query, authed: true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetApplication returns one reporter record with its documents.
func (c *Client) GetApplication(ctx context.Context, id string) (*api.Application, error) {
	var out api.Application
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/admin/users/" + url.PathEscape(id), authed: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Approve approves a pending reporter and returns the assigned license.
func (c *Client) Approve(ctx context.Context, id string) (string, error) {
	var out api.ApproveResponse
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/admin/approve", body: api.AccountIDRequest{UserID: id}, authed: true}, &out); err != nil {
		return "", err
	}
	return out.LicenseKey, nil
}

// Revoke revokes an approved reporter.
func (c *Client) Revoke(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodPost, path: "/api/admin/revoke", body: api.AccountIDRequest{UserID: id}, authed: true}, nil)
}

// Presign requests an upload ticket for kind.
func (c *Client) Presign(ctx context.Context, kind upload.Kind) (*upload.Ticket, error) {
	var out upload.Ticket
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/uploads", body: api.UploadRequest{Kind: string(kind)}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload checks doc against the kind's size limit, stores it and returns
// its public URL.
func (c *Client) Upload(ctx context.Context, kind upload.Kind, doc Document) (string, error) {
	if int64(len(doc.Data)) > kind.MaxBytes() {
		return "", oops.Code(auth.CodeValidation).
			With("kind", kind).
			With("size", len(doc.Data)).
			With("max_bytes", kind.MaxBytes()).
			Errorf("%s exceeds %d KiB", kind, kind.MaxBytes()>>10)
	}
	ticket, err := c.Presign(ctx, kind)
	if err != nil {
		return "", err
	}
	if err := upload.Put(ctx, c.http, ticket, doc.ContentType, doc.Data); err != nil {
		return "", err
	}
	return ticket.PublicURL, nil
}
