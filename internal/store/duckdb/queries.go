// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/open-campus-lab/accessd/internal/models"
	"github.com/open-campus-lab/accessd/internal/store"
)

func (s *Store) IdentityByTag(ctx context.Context, tagID string) (*models.Identity, error) {
	if tagID == "" {
		return nil, store.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, COALESCE(tag_id, ''), active
		 FROM identities WHERE tag_id = ?`, tagID)

	var id models.Identity
	err := row.Scan(&id.ID, &id.Name, &id.Kind, &id.TagID, &id.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("identity by tag: %w", err)
	}
	return &id, nil
}

func (s *Store) RoomByID(ctx context.Context, roomID int64) (*models.Room, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, building, status FROM rooms WHERE id = ?`, roomID)

	var room models.Room
	err := row.Scan(&room.ID, &room.Name, &room.Building, &room.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("room by id: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, name, kind, relay_id, active
		 FROM equipment WHERE room_id = ? ORDER BY id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("room equipment: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eq models.Equipment
		var relay sql.NullInt64
		if err := rows.Scan(&eq.ID, &eq.RoomID, &eq.Name, &eq.Kind, &relay, &eq.Active); err != nil {
			return nil, fmt.Errorf("scan equipment: %w", err)
		}
		if relay.Valid {
			r := int(relay.Int64)
			eq.RelayID = &r
		}
		room.Equipment = append(room.Equipment, eq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equipment: %w", err)
	}
	return &room, nil
}

func (s *Store) EquipmentByRelay(ctx context.Context, roomID int64, relayID int) (*models.Equipment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, room_id, name, kind, relay_id, active
		 FROM equipment WHERE room_id = ? AND relay_id = ?`, roomID, relayID)

	var eq models.Equipment
	var relay sql.NullInt64
	err := row.Scan(&eq.ID, &eq.RoomID, &eq.Name, &eq.Kind, &relay, &eq.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("equipment by relay: %w", err)
	}
	if relay.Valid {
		r := int(relay.Int64)
		eq.RelayID = &r
	}
	return &eq, nil
}

func (s *Store) ActiveReservations(ctx context.Context, identityID, roomID int64) ([]models.Reservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, identity_id, room_id, kind, COALESCE(weekday, ''),
		        start_date, end_date, start_time, end_time, subject, active
		 FROM reservations
		 WHERE identity_id = ? AND room_id = ? AND active
		 ORDER BY id`, identityID, roomID)
	if err != nil {
		return nil, fmt.Errorf("active reservations: %w", err)
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		var res models.Reservation
		var start, end sql.NullTime
		err := rows.Scan(&res.ID, &res.IdentityID, &res.RoomID, &res.Kind, &res.Weekday,
			&start, &end, &res.StartTime, &res.EndTime, &res.Subject, &res.Active)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		if start.Valid {
			t := start.Time
			res.StartDate = &t
		}
		if end.Valid {
			t := end.Time
			res.EndDate = &t
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return out, nil
}

func (s *Store) LatestAccess(ctx context.Context, identityID, roomID int64) (*models.AccessRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, identity_id, room_id, kind, ts
		 FROM access_records
		 WHERE identity_id = ? AND room_id = ?
		 ORDER BY ts DESC LIMIT 1`, identityID, roomID)

	var rec models.AccessRecord
	err := row.Scan(&rec.ID, &rec.IdentityID, &rec.RoomID, &rec.Kind, &rec.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest access: %w", err)
	}
	return &rec, nil
}

func (s *Store) CreateAccess(ctx context.Context, rec *models.AccessRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO access_records (identity_id, room_id, kind, ts)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		rec.IdentityID, rec.RoomID, rec.Kind, rec.Timestamp)
	if err := row.Scan(&rec.ID); err != nil {
		return fmt.Errorf("create access record: %w", err)
	}
	return nil
}

func (s *Store) CreateCommand(ctx context.Context, cmd *models.EquipmentCommand) error {
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO equipment_commands (equipment_id, relay_id, action, origin, result, ts)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		cmd.EquipmentID, cmd.RelayID, cmd.Action, cmd.Origin, cmd.Result, cmd.Timestamp)
	if err := row.Scan(&cmd.ID); err != nil {
		return fmt.Errorf("create equipment command: %w", err)
	}
	return nil
}

func (s *Store) CreateSample(ctx context.Context, sample *models.TelemetrySample) error {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	var humidity sql.NullFloat64
	if sample.Humidity != nil {
		humidity = sql.NullFloat64{Float64: *sample.Humidity, Valid: true}
	}
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO telemetry_samples
		 (equipment_id, command_id, voltage, current, power, energy,
		  frequency, power_factor, temperature, humidity, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		sample.EquipmentID, sample.CommandID, sample.Voltage, sample.Current,
		sample.Power, sample.Energy, sample.Frequency, sample.PowerFactor,
		sample.Temperature, humidity, sample.Timestamp)
	if err := row.Scan(&sample.ID); err != nil {
		return fmt.Errorf("create telemetry sample: %w", err)
	}
	return nil
}
