// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tribunal Contributors

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/truthtribunal/tribunal/internal/auth"
	"github.com/truthtribunal/tribunal/internal/upload"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var app auth.Application
	if err := decodeJSON(w, r, &app); err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := s.registration.Submit(r.Context(), app)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegisterResponse{ID: account.ID.String(), Status: account.Status})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := decodeJSON(w, r, &creds); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.auth.Login(r.Context(), creds)
	s.countLogin(err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) countLogin(err error) {
	if s.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	s.metrics.Logins.WithLabelValues(result).Inc()
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	projection, err := s.auth.Me(r.Context(), actor.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projection)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	accounts, err := s.lifecycle.ListPending(r.Context(), actor)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applicationsFrom(accounts))
}

func (s *Server) handleListApproved(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	accounts, err := s.lifecycle.ListApproved(r.Context(), actor, r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applicationsFrom(accounts))
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, err := auth.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	account, err := s.lifecycle.GetApplication(r.Context(), actor, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ApplicationFrom(account))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req AccountIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := auth.ParseID(req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	license, err := s.lifecycle.Approve(r.Context(), actor, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.countTransition(auth.StatusApproved)
	writeJSON(w, http.StatusOK, ApproveResponse{LicenseKey: license})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	var req AccountIDRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := auth.ParseID(req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.lifecycle.Revoke(r.Context(), actor, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.countTransition(auth.StatusRevoked)
	writeJSON(w, http.StatusOK, RevokeResponse{Status: auth.StatusRevoked})
}

func (s *Server) countTransition(to auth.Status) {
	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(string(to)).Inc()
	}
}

func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	kind, err := upload.ParseKind(req.Kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ticket, err := s.uploads.Presign(r.Context(), kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}
