// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

// Package store defines the persistence contract consumed by the access
// coordination core. Identity, Room and Reservation rows are owned by the
// admin platform and read-only here; AccessRecord, EquipmentCommand and
// TelemetrySample are written here.
//
// Two implementations exist: store/duckdb for production and store/memory
// for development and tests.
package store

import (
	"context"
	"errors"

	"github.com/open-campus-lab/accessd/internal/models"
)

// ErrNotFound is returned by lookups that matched no row. Callers turn it
// into a denial payload, never into a 5xx.
var ErrNotFound = errors.New("store: not found")

// IdentityReader resolves card holders.
type IdentityReader interface {
	// IdentityByTag returns the identity enrolled with the given card tag.
	IdentityByTag(ctx context.Context, tagID string) (*models.Identity, error)
}

// RoomReader resolves rooms with their equipment lists.
type RoomReader interface {
	RoomByID(ctx context.Context, id int64) (*models.Room, error)
	// EquipmentByRelay locates the equipment row wired to relayID in a room.
	EquipmentByRelay(ctx context.Context, roomID int64, relayID int) (*models.Equipment, error)
}

// ReservationReader lists reservations for decision making.
type ReservationReader interface {
	// ActiveReservations returns the active reservations of an identity in
	// a room, in creation order.
	ActiveReservations(ctx context.Context, identityID, roomID int64) ([]models.Reservation, error)
}

// AccessRecorder reads and appends the access history.
type AccessRecorder interface {
	// LatestAccess returns the most recent access record for the pair, or
	// ErrNotFound when the pair has no history.
	LatestAccess(ctx context.Context, identityID, roomID int64) (*models.AccessRecord, error)
	CreateAccess(ctx context.Context, rec *models.AccessRecord) error
}

// CommandRecorder appends equipment command outcomes.
type CommandRecorder interface {
	// CreateCommand persists cmd and fills in its assigned ID.
	CreateCommand(ctx context.Context, cmd *models.EquipmentCommand) error
}

// TelemetryRecorder appends synthesized telemetry samples.
type TelemetryRecorder interface {
	CreateSample(ctx context.Context, sample *models.TelemetrySample) error
}

// Store is the full persistence contract.
type Store interface {
	IdentityReader
	RoomReader
	ReservationReader
	AccessRecorder
	CommandRecorder
	TelemetryRecorder

	// Ping reports whether the store is reachable; used by readiness.
	Ping(ctx context.Context) error
	Close() error
}
