// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

package models

// Wire types for the HTTP API. Field names follow the platform's existing
// contracts with the room panels and totems and must not be renamed.

// VerifyAccessRequest asks for an authorization decision for a card tap
// in a room.
type VerifyAccessRequest struct {
	TagUID string `json:"tag_uid" validate:"required"`
	RoomID int64  `json:"sala_id" validate:"required,gt=0"`
}

// UserInfo is the identity summary included in authorized responses and
// in denials where the identity was resolved.
type UserInfo struct {
	Name string `json:"nome"`
	Kind string `json:"tipo"`
}

// ReservationInfo summarizes the reservation that granted access.
type ReservationInfo struct {
	Subject  string `json:"disciplina"`
	Schedule string `json:"horario"`
}

// VerifyAccessResponse is a tagged union on Authorized: denials carry
// Reason (and User when the identity resolved); authorized responses carry
// the full decision.
type VerifyAccessResponse struct {
	Authorized      bool             `json:"autorizado"`
	User            *UserInfo        `json:"usuario,omitempty"`
	Reason          string           `json:"motivo,omitempty"`
	Reservation     *ReservationInfo `json:"reserva,omitempty"`
	AccessKind      string           `json:"tipo_acesso,omitempty"`
	EquipmentAction string           `json:"acao_equipamentos,omitempty"`
	ActivatedRelays []int            `json:"equipamentos_ativados,omitempty"`
}

// ActivateRequest commands relays in a room. An empty RelayIDs list means
// "all active relays of the room". Action defaults to ON.
type ActivateRequest struct {
	RoomID   int64  `json:"sala_id" validate:"required,gt=0"`
	RelayIDs []int  `json:"relay_ids"`
	Action   string `json:"action" validate:"omitempty,oneof=ON OFF"`
}

// RelayResult is the per-relay outcome of an activation.
type RelayResult struct {
	RelayID int    `json:"relay_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ActivateResponse aggregates per-relay outcomes. Success is true when at
// least one relay succeeded.
type ActivateResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Results []RelayResult `json:"resultados"`
}

// WaitTapRequest subscribes the caller to the next card tap. SessionID is
// generated server-side when absent. TimeoutMs is clamped to the
// configured maximum.
type WaitTapRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,uuid4"`
	TimeoutMs int    `json:"timeout_ms" validate:"omitempty,gt=0"`
}

// WaitTapResponse delivers the matched tap to a waiting caller.
type WaitTapResponse struct {
	SessionID   string `json:"session_id"`
	CardID      string `json:"card_id"`
	TimestampMs int64  `json:"timestamp"`
	OriginID    string `json:"totem_id,omitempty"`
}

// APIError is the error payload of non-2xx API responses.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ErrorResponse wraps an APIError.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// HealthResponse reports component readiness for monitoring.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}
