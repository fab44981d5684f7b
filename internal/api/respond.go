// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/samber/oops"

	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/pkg/errutil"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeUnauthorized answers with the session invalidation class.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: WireUnauthorized, Message: message})
}

// StatusFor maps an error code to its HTTP status and wire code.
func StatusFor(code string) (int, string) {
	switch code {
	case auth.CodeValidation:
		return http.StatusBadRequest, strings.ToLower(code)
	case auth.CodeDuplicateEmail, auth.CodeInvalidTransition:
		return http.StatusConflict, strings.ToLower(code)
	case auth.CodeAuthFailed:
		return http.StatusUnauthorized, WireAuthenticationFailed
	case auth.CodeUnauthorized:
		return http.StatusUnauthorized, WireUnauthorized
	case auth.CodeNotFound:
		return http.StatusNotFound, strings.ToLower(code)
	case auth.CodeForbidden:
		return http.StatusForbidden, WireForbidden
	case auth.CodeUpstream:
		return http.StatusBadGateway, strings.ToLower(code)
	default:
		return http.StatusInternalServerError, WireInternal
	}
}

// writeError logs err and writes its mapped response. Internal failures
// never expose their message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := auth.ErrorCode(err)
	status, wire := StatusFor(code)

	if wire == WireUnauthorized {
		writeUnauthorized(w, "invalid or expired token")
		return
	}

	resp := ErrorResponse{Error: wire}
	if status == http.StatusInternalServerError {
		errutil.LogError(r.Context(), s.logger, "request failed", err)
		resp.Message = "internal error"
	} else {
		s.logger.DebugContext(r.Context(), "request rejected", errutil.Attrs(err)...)
		resp.Message = err.Error()
		if status == http.StatusBadRequest {
			resp.Fields = fieldErrors(err)
		}
	}
	writeJSON(w, status, resp)
}

func fieldErrors(err error) map[string]string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	switch fields := oopsErr.Context()["fields"].(type) {
	case map[string]string:
		return fields
	case map[string]any:
		out := make(map[string]string, len(fields))
		for k, v := range fields {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
		return out
	default:
		return nil
	}
}

// decodeJSON reads a single JSON object into dst. Unknown fields and
// trailing data are rejected as validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return oops.Code(auth.CodeValidation).Wrapf(err, "malformed request body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return oops.Code(auth.CodeValidation).Errorf("request body must be a single JSON object")
	}
	return nil
}
