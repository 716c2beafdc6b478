// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

// Package api exposes the access coordination core over HTTP to the room
// panels, totem enrollment flow and admin tooling.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/open-campus-lab/accessd/internal/access"
	"github.com/open-campus-lab/accessd/internal/config"
	"github.com/open-campus-lab/accessd/internal/dispatch"
	"github.com/open-campus-lab/accessd/internal/ingest"
	"github.com/open-campus-lab/accessd/internal/logging"
	"github.com/open-campus-lab/accessd/internal/models"
	"github.com/open-campus-lab/accessd/internal/registry"
	"github.com/open-campus-lab/accessd/internal/store"
	"github.com/open-campus-lab/accessd/internal/validation"
)

// Handler carries the core components the HTTP surface fronts.
type Handler struct {
	engine     *access.Engine
	dispatcher *dispatch.Dispatcher
	registry   *registry.Registry
	gateway    *ingest.Gateway
	store      store.Store
	cfg        config.RegistryConfig
}

// NewHandler wires the HTTP handlers.
func NewHandler(
	engine *access.Engine,
	dispatcher *dispatch.Dispatcher,
	reg *registry.Registry,
	gateway *ingest.Gateway,
	st store.Store,
	cfg config.RegistryConfig,
) *Handler {
	return &Handler{
		engine:     engine,
		dispatcher: dispatcher,
		registry:   reg,
		gateway:    gateway,
		store:      st,
		cfg:        cfg,
	}
}

// VerifyAccess handles POST /api/v1/access/verify. Denials are normal
// 200 responses with autorizado=false; only infrastructure faults produce
// a 5xx.
func (h *Handler) VerifyAccess(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyAccessRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := h.engine.VerifyAccess(r.Context(), req.TagUID, req.RoomID)
	if err != nil {
		respondInternal(w, err, "access decision failed")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Activate handles POST /api/v1/equipment/activate.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	var req models.ActivateRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	action := models.RelayAction(req.Action)
	if action == "" {
		action = models.RelayOn
	}

	resp, err := h.dispatcher.Activate(r.Context(), req.RoomID, req.RelayIDs, action)
	switch {
	case errors.Is(err, dispatch.ErrRoomNotFound):
		respondError(w, http.StatusNotFound, "ROOM_NOT_FOUND", "room does not exist")
		return
	case errors.Is(err, dispatch.ErrNoRelays):
		respondError(w, http.StatusBadRequest, "NO_RELAYS", "room has no active relays to command")
		return
	case err != nil:
		respondInternal(w, err, "equipment activation failed")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// WaitTap handles POST /api/v1/taps/wait: it suspends the request until
// the next card tap, a timeout, or cancellation.
func (h *Handler) WaitTap(w http.ResponseWriter, r *http.Request) {
	var req models.WaitTapRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	timeout := h.cfg.DefaultWaitTimeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	if timeout > h.cfg.MaxWaitTimeout {
		timeout = h.cfg.MaxWaitTimeout
	}

	tap, err := h.registry.WaitForTap(r.Context(), sessionID, timeout)
	switch {
	case errors.Is(err, registry.ErrWaitTimeout):
		respondError(w, http.StatusRequestTimeout, "WAIT_TIMEOUT", "no tap arrived within the timeout")
		return
	case errors.Is(err, registry.ErrSessionActive):
		respondError(w, http.StatusConflict, "SESSION_ACTIVE", "session already has a pending wait")
		return
	case errors.Is(err, registry.ErrShuttingDown):
		respondError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "service is shutting down")
		return
	case errors.Is(err, registry.ErrWaitCancelled):
		respondError(w, http.StatusGone, "WAIT_CANCELLED", "wait was cancelled")
		return
	case err != nil:
		respondInternal(w, err, "wait for tap failed")
		return
	}

	respondJSON(w, http.StatusOK, &models.WaitTapResponse{
		SessionID:   sessionID,
		CardID:      tap.TagID,
		TimestampMs: tap.TimestampMs,
		OriginID:    tap.OriginID,
	})
}

// CancelWait handles DELETE /api/v1/taps/wait/{session_id}. Always 204:
// cancelling an unknown or already-finished session is a no-op.
func (h *Handler) CancelWait(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	h.registry.CancelWait(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// PeekLatestTap handles GET /api/v1/taps/latest.
func (h *Handler) PeekLatestTap(w http.ResponseWriter, r *http.Request) {
	tap, ok := h.registry.PeekLatestUnclaimed()
	if !ok {
		respondError(w, http.StatusNotFound, "NO_PENDING_TAP", "no unclaimed tap available")
		return
	}
	respondJSON(w, http.StatusOK, &models.WaitTapResponse{
		CardID:      tap.TagID,
		TimestampMs: tap.TimestampMs,
		OriginID:    tap.OriginID,
	})
}

// HealthLive handles GET /api/v1/health/live.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, &models.HealthResponse{Status: "ok"})
}

// HealthReady handles GET /api/v1/health/ready: the store must answer a
// ping and the broker connection must be up.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]string{"store": "ok", "broker": "ok"}
	status := http.StatusOK

	if err := h.store.Ping(ctx); err != nil {
		components["store"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if h.gateway != nil && !h.gateway.Connected() {
		components["broker"] = "disconnected"
		status = http.StatusServiceUnavailable
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	respondJSON(w, status, &models.HealthResponse{Status: state, Components: components})
}

// decodeRequest decodes and validates a JSON request body. On failure it
// writes the error response and returns false.
func decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON")
		return false
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error())
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to write JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, &models.ErrorResponse{
		Error: models.APIError{Code: code, Message: message},
	})
}

// respondInternal logs the real error and returns a generic payload so
// internal details never leak to clients.
func respondInternal(w http.ResponseWriter, err error, message string) {
	logging.Error().Err(err).Msg(message)
	respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", message)
}
