// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

package duckdb

import (
	"context"
	"fmt"
	"time"

	"github.com/open-campus-lab/accessd/internal/logging"
)

// SeedDemo populates an empty store with a small demo campus: two
// identities, one equipped room and reservations that cover every weekday
// all day, so a fresh install answers taps immediately. No-op when
// identities already exist.
func (s *Store) SeedDemo(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM identities`).Scan(&count); err != nil {
		return fmt.Errorf("seed check: %w", err)
	}
	if count > 0 {
		return nil
	}

	stmts := []struct {
		query string
		args  []interface{}
	}{
		{`INSERT INTO identities (id, name, kind, tag_id, active) VALUES (?, ?, ?, ?, ?)`,
			[]interface{}{int64(1), "Ana Oliveira", "professor", "04A1B2C3", true}},
		{`INSERT INTO identities (id, name, kind, tag_id, active) VALUES (?, ?, ?, ?, ?)`,
			[]interface{}{int64(2), "Carlos Lima", "tecnico", "04D4E5F6", true}},

		{`INSERT INTO rooms (id, name, building, status) VALUES (?, ?, ?, ?)`,
			[]interface{}{int64(1), "Lab 101", "Bloco A", "ativa"}},

		{`INSERT INTO equipment (id, room_id, name, kind, relay_id, active) VALUES (?, ?, ?, ?, ?, ?)`,
			[]interface{}{int64(1), int64(1), "Luz principal", "luz", 1, true}},
		{`INSERT INTO equipment (id, room_id, name, kind, relay_id, active) VALUES (?, ?, ?, ?, ?, ?)`,
			[]interface{}{int64(2), int64(1), "Ar-condicionado", "ar_condicionado", 2, true}},
		{`INSERT INTO equipment (id, room_id, name, kind, relay_id, active) VALUES (?, ?, ?, ?, ?, ?)`,
			[]interface{}{int64(3), int64(1), "Projetor", "projetor", 3, true}},
	}

	for _, st := range stmts {
		if _, err := s.db.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	// One fixed reservation per weekday for the professor, full day.
	weekdays := []string{"dom", "seg", "ter", "qua", "qui", "sex", "sab"}
	for i, wd := range weekdays {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO reservations
			 (id, identity_id, room_id, kind, weekday, start_time, end_time, subject, active)
			 VALUES (?, ?, ?, 'fixa', ?, '00:00', '23:59', 'Demo', true)`,
			int64(i+1), int64(1), int64(1), wd)
		if err != nil {
			return fmt.Errorf("seed demo reservations: %w", err)
		}
	}

	logging.Info().Time("at", time.Now()).Msg("seeded demo campus data")
	return nil
}
