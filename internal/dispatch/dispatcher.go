// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

// Package dispatch executes relay commands against the hardware gateway
// and synthesizes telemetry for activated equipment.
//
// Relays are independent: a failed relay never aborts or rolls back the
// others, and an activation succeeds when at least one relay succeeded.
// Telemetry synthesis is fire-and-forget: it runs detached after a settle
// delay and its failure is logged, never propagated to the activation
// caller.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/open-campus-lab/accessd/internal/logging"
	"github.com/open-campus-lab/accessd/internal/metrics"
	"github.com/open-campus-lab/accessd/internal/models"
	"github.com/open-campus-lab/accessd/internal/store"
)

// ErrNoRelays is returned when an activation resolves to zero relay ids.
var ErrNoRelays = errors.New("dispatch: no relays to activate")

// ErrRoomNotFound is returned when the target room does not exist.
var ErrRoomNotFound = errors.New("dispatch: room not found")

// Storage is the subset of the store the dispatcher needs.
type Storage interface {
	store.RoomReader
	store.CommandRecorder
	store.TelemetryRecorder
}

// Commander abstracts the gateway client for tests.
type Commander interface {
	SendCommand(ctx context.Context, action models.RelayAction, relayID int) error
}

// Dispatcher coordinates per-relay command execution and detached
// telemetry synthesis.
type Dispatcher struct {
	storage     Storage
	commander   Commander
	settleDelay time.Duration
	origin      string

	// synth tracks detached telemetry tasks so shutdown and tests can
	// wait for them without coupling them to activation calls.
	synth sync.WaitGroup
}

// New creates a dispatcher. settleDelay is the wait between a successful
// command and its synthesized telemetry sample.
func New(storage Storage, commander Commander, settleDelay time.Duration) *Dispatcher {
	return &Dispatcher{
		storage:     storage,
		commander:   commander,
		settleDelay: settleDelay,
		origin:      "access-core",
	}
}

// Activate sends action to each relay of the room independently. An empty
// relayIDs list targets all active relays of the room. The per-relay
// outcomes are reported in the response; the call errors only on
// infrastructure faults before any command is attempted.
func (d *Dispatcher) Activate(ctx context.Context, roomID int64, relayIDs []int, action models.RelayAction) (*models.ActivateResponse, error) {
	room, err := d.storage.RoomByID(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve room: %w", err)
	}

	if len(relayIDs) == 0 {
		relayIDs = room.ActiveRelayIDs()
	}
	if len(relayIDs) == 0 {
		return nil, ErrNoRelays
	}

	results := make([]models.RelayResult, 0, len(relayIDs))
	succeeded := 0

	for _, relayID := range relayIDs {
		if err := d.commander.SendCommand(ctx, action, relayID); err != nil {
			metrics.RelayCommands.WithLabelValues(string(action), "error").Inc()
			logging.Warn().Err(err).
				Int64("room_id", roomID).
				Int("relay_id", relayID).
				Msg("relay command failed")
			results = append(results, models.RelayResult{
				RelayID: relayID,
				Status:  "error",
				Message: err.Error(),
			})
			continue
		}

		metrics.RelayCommands.WithLabelValues(string(action), "success").Inc()
		succeeded++
		results = append(results, models.RelayResult{RelayID: relayID, Status: "success"})

		d.recordCommand(ctx, room.ID, relayID, action)
	}

	resp := &models.ActivateResponse{
		Success: succeeded > 0,
		Message: fmt.Sprintf("%d/%d relays commanded %s", succeeded, len(relayIDs), action),
		Results: results,
	}
	return resp, nil
}

// recordCommand persists the EquipmentCommand for a successful relay and
// schedules its telemetry synthesis. A missing equipment row or a store
// fault downgrades to a warning: the hardware command already succeeded,
// so the relay outcome stays "success".
func (d *Dispatcher) recordCommand(ctx context.Context, roomID int64, relayID int, action models.RelayAction) {
	eq, err := d.storage.EquipmentByRelay(ctx, roomID, relayID)
	if err != nil {
		logging.Warn().Err(err).
			Int64("room_id", roomID).
			Int("relay_id", relayID).
			Msg("no equipment row for commanded relay, skipping command record")
		return
	}

	cmd := &models.EquipmentCommand{
		EquipmentID: eq.ID,
		RelayID:     relayID,
		Action:      action,
		Origin:      d.origin,
		Result:      "success",
	}
	if err := d.storage.CreateCommand(ctx, cmd); err != nil {
		logging.Warn().Err(err).
			Int64("equipment_id", eq.ID).
			Msg("failed to persist equipment command")
		return
	}

	d.scheduleTelemetry(*eq, cmd.ID, action)
}

// scheduleTelemetry launches the detached synthesis task. The task owns
// its error boundary: panics are recovered, failures are logged and
// counted, and nothing reaches the activation caller.
func (d *Dispatcher) scheduleTelemetry(eq models.Equipment, commandID int64, action models.RelayAction) {
	d.synth.Add(1)
	go func() {
		defer d.synth.Done()
		defer func() {
			if rec := recover(); rec != nil {
				metrics.TelemetrySynthesized.WithLabelValues("error").Inc()
				logging.Error().
					Interface("panic", rec).
					Int64("equipment_id", eq.ID).
					Msg("telemetry synthesis panicked")
			}
		}()

		// Detached from the caller's request context on purpose.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if !waitWithContext(ctx, d.settleDelay) {
			return
		}

		sample := SynthesizeSample(eq, commandID, action)
		if err := d.storage.CreateSample(ctx, &sample); err != nil {
			metrics.TelemetrySynthesized.WithLabelValues("error").Inc()
			logging.Warn().Err(err).
				Int64("equipment_id", eq.ID).
				Int64("command_id", commandID).
				Msg("failed to persist telemetry sample")
			return
		}
		metrics.TelemetrySynthesized.WithLabelValues("ok").Inc()
	}()
}

// Flush blocks until all in-flight telemetry tasks finish. Used by
// shutdown and tests.
func (d *Dispatcher) Flush() {
	d.synth.Wait()
}
