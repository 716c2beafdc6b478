// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

// Package access decides whether a card tap opens a room and which relay
// action follows.
//
// Denials are data, not errors: VerifyAccess returns a populated response
// with Authorized=false and a machine-readable reason. Only
// infrastructure faults (store unreachable) surface as errors.
package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/open-campus-lab/accessd/internal/config"
	"github.com/open-campus-lab/accessd/internal/logging"
	"github.com/open-campus-lab/accessd/internal/metrics"
	"github.com/open-campus-lab/accessd/internal/models"
	"github.com/open-campus-lab/accessd/internal/store"
)

// Denial reasons. Part of the API contract with the room panels.
const (
	ReasonUnregisteredCard = "unregistered_card"
	ReasonUserInactive     = "user_inactive"
	ReasonRoomNotFound     = "room_not_found"
	ReasonRoomUnavailable  = "room_inactive_or_maintenance"
	ReasonNoReservation    = "no_active_reservation"
)

// Storage is the subset of the store the engine needs.
type Storage interface {
	store.IdentityReader
	store.RoomReader
	store.ReservationReader
	store.AccessRecorder
}

// Engine evaluates access decisions. It holds no mutable state; concurrent
// calls for different (identity, room) pairs are independent.
type Engine struct {
	storage Storage
	cfg     config.AccessConfig
	now     func() time.Time
}

// New creates an engine. cfg.ToggleWindow of zero defaults to 4h.
func New(storage Storage, cfg config.AccessConfig) *Engine {
	if cfg.ToggleWindow <= 0 {
		cfg.ToggleWindow = 4 * time.Hour
	}
	return &Engine{storage: storage, cfg: cfg, now: time.Now}
}

// WithClock overrides the engine's clock. Test helper.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// VerifyAccess resolves identity, room, reservation window and the
// entry/exit toggle for one tap, persists the access record and returns
// the decision.
func (e *Engine) VerifyAccess(ctx context.Context, tagID string, roomID int64) (*models.VerifyAccessResponse, error) {
	start := time.Now()
	resp, err := e.verify(ctx, tagID, roomID)
	metrics.DecisionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, err
	}
	if resp.Authorized {
		metrics.Decisions.WithLabelValues("authorized").Inc()
	} else {
		metrics.Decisions.WithLabelValues(resp.Reason).Inc()
	}
	return resp, nil
}

func (e *Engine) verify(ctx context.Context, tagID string, roomID int64) (*models.VerifyAccessResponse, error) {
	now := e.now()

	identity, err := e.storage.IdentityByTag(ctx, tagID)
	if errors.Is(err, store.ErrNotFound) {
		logging.Info().Str("tag_id", tagID).Msg("tap from unregistered card")
		return denied(ReasonUnregisteredCard, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}

	user := &models.UserInfo{Name: identity.Name, Kind: string(identity.Kind)}
	if !identity.Active {
		return denied(ReasonUserInactive, user), nil
	}

	room, err := e.storage.RoomByID(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return denied(ReasonRoomNotFound, user), nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve room: %w", err)
	}
	if room.Status != models.RoomActive {
		return denied(ReasonRoomUnavailable, user), nil
	}

	var reservation *models.Reservation
	if e.cfg.AllowWithoutReservation {
		logging.Warn().
			Str("tag_id", tagID).
			Int64("room_id", roomID).
			Msg("reservation check bypassed (allow_without_reservation)")
	} else {
		candidates, err := e.storage.ActiveReservations(ctx, identity.ID, room.ID)
		if err != nil {
			return nil, fmt.Errorf("list reservations: %w", err)
		}
		reservation = firstMatching(candidates, now)
		if reservation == nil {
			return denied(ReasonNoReservation, user), nil
		}
	}

	kind, action := e.toggle(ctx, identity.ID, room.ID, now)

	rec := &models.AccessRecord{
		IdentityID: identity.ID,
		RoomID:     room.ID,
		Kind:       kind,
		Timestamp:  now,
	}
	if err := e.storage.CreateAccess(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist access record: %w", err)
	}

	resp := &models.VerifyAccessResponse{
		Authorized:      true,
		User:            user,
		AccessKind:      string(kind),
		EquipmentAction: string(action),
		ActivatedRelays: room.ActiveRelayIDs(),
	}
	if reservation != nil {
		resp.Reservation = &models.ReservationInfo{
			Subject:  reservation.Subject,
			Schedule: reservation.Schedule(),
		}
	}

	logging.Info().
		Int64("identity_id", identity.ID).
		Int64("room_id", room.ID).
		Str("kind", string(kind)).
		Msg("access authorized")
	return resp, nil
}

// toggle classifies the tap as entry or exit. A recent "entrada" younger
// than the toggle window flips this tap to "saida"; anything else
// (no history, last was exit, or entry older than the window) is a fresh
// entry. The stale-entry case covers people who left without tapping out.
func (e *Engine) toggle(ctx context.Context, identityID, roomID int64, now time.Time) (models.AccessKind, models.RelayAction) {
	last, err := e.storage.LatestAccess(ctx, identityID, roomID)
	if err == nil && last.Kind == models.AccessEntry && now.Sub(last.Timestamp) < e.cfg.ToggleWindow {
		return models.AccessExit, models.RelayOff
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		// Store hiccup on history lookup: default to entry rather than
		// deny, the record insert below will surface persistent faults.
		logging.Warn().Err(err).Msg("access history lookup failed, defaulting to entry")
	}
	return models.AccessEntry, models.RelayOn
}

// firstMatching returns the first candidate whose recurrence and time
// window cover now. Candidates come in creation order and no overlap
// resolution is attempted; reservation creation is expected to keep
// windows disjoint.
func firstMatching(candidates []models.Reservation, now time.Time) *models.Reservation {
	nowMinute := now.Hour()*60 + now.Minute()
	weekday := models.WeekdayAbbrev(now)
	today := dateOnly(now)

	for i := range candidates {
		res := &candidates[i]
		switch res.Kind {
		case models.ReservationFixed:
			if res.Weekday != weekday {
				continue
			}
		case models.ReservationDated:
			if res.StartDate == nil || today.Before(dateOnly(*res.StartDate)) {
				continue
			}
			if res.EndDate != nil && today.After(dateOnly(*res.EndDate)) {
				continue
			}
		default:
			continue
		}

		start, err := models.MinuteOfDay(res.StartTime)
		if err != nil {
			logging.Warn().Err(err).Int64("reservation_id", res.ID).Msg("skipping reservation with bad start time")
			continue
		}
		end, err := models.MinuteOfDay(res.EndTime)
		if err != nil {
			logging.Warn().Err(err).Int64("reservation_id", res.ID).Msg("skipping reservation with bad end time")
			continue
		}
		// Window is [start, end).
		if nowMinute >= start && nowMinute < end {
			return res
		}
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func denied(reason string, user *models.UserInfo) *models.VerifyAccessResponse {
	return &models.VerifyAccessResponse{
		Authorized: false,
		Reason:     reason,
		User:       user,
	}
}
