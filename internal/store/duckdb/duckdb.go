// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

// Package duckdb implements store.Store on DuckDB via database/sql.
//
// DuckDB runs embedded in the process, which matches the single-instance
// deployment model of the registry: there is exactly one accessd process
// per campus site, so an in-process store needs no connection management
// beyond the database/sql pool.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver

	"github.com/open-campus-lab/accessd/internal/logging"
	"github.com/open-campus-lab/accessd/internal/store"
)

// Store wraps a DuckDB connection pool.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb at %s: %w", path, err)
	}

	// DuckDB is embedded; a single writer connection avoids write-write
	// conflicts between concurrent activations.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.Info().Str("path", path).Msg("DuckDB store ready")
	return s, nil
}

// schema is idempotent: every statement is IF NOT EXISTS.
//
// The admin platform owns identities, rooms, equipment and reservations;
// in a combined deployment it writes these tables directly. This core only
// creates them so that a standalone instance starts cleanly.
var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS seq_access_records START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_equipment_commands START 1`,
	`CREATE SEQUENCE IF NOT EXISTS seq_telemetry_samples START 1`,

	`CREATE TABLE IF NOT EXISTS identities (
		id BIGINT PRIMARY KEY,
		name VARCHAR NOT NULL,
		kind VARCHAR NOT NULL,
		tag_id VARCHAR,
		active BOOLEAN NOT NULL DEFAULT true
	)`,

	`CREATE TABLE IF NOT EXISTS rooms (
		id BIGINT PRIMARY KEY,
		name VARCHAR NOT NULL,
		building VARCHAR NOT NULL DEFAULT '',
		status VARCHAR NOT NULL DEFAULT 'ativa'
	)`,

	`CREATE TABLE IF NOT EXISTS equipment (
		id BIGINT PRIMARY KEY,
		room_id BIGINT NOT NULL,
		name VARCHAR NOT NULL DEFAULT '',
		kind VARCHAR NOT NULL,
		relay_id INTEGER,
		active BOOLEAN NOT NULL DEFAULT true
	)`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id BIGINT PRIMARY KEY,
		identity_id BIGINT NOT NULL,
		room_id BIGINT NOT NULL,
		kind VARCHAR NOT NULL,
		weekday VARCHAR,
		start_date DATE,
		end_date DATE,
		start_time VARCHAR NOT NULL,
		end_time VARCHAR NOT NULL,
		subject VARCHAR NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT true
	)`,

	`CREATE TABLE IF NOT EXISTS access_records (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_access_records'),
		identity_id BIGINT NOT NULL,
		room_id BIGINT NOT NULL,
		kind VARCHAR NOT NULL,
		ts TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS equipment_commands (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_equipment_commands'),
		equipment_id BIGINT NOT NULL,
		relay_id INTEGER NOT NULL,
		action VARCHAR NOT NULL,
		origin VARCHAR NOT NULL DEFAULT '',
		result VARCHAR NOT NULL DEFAULT '',
		ts TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS telemetry_samples (
		id BIGINT PRIMARY KEY DEFAULT nextval('seq_telemetry_samples'),
		equipment_id BIGINT NOT NULL,
		command_id BIGINT NOT NULL,
		voltage DOUBLE NOT NULL,
		current DOUBLE NOT NULL,
		power DOUBLE NOT NULL,
		energy DOUBLE NOT NULL,
		frequency DOUBLE NOT NULL,
		power_factor DOUBLE NOT NULL,
		temperature DOUBLE NOT NULL,
		humidity DOUBLE,
		ts TIMESTAMP NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_access_identity_room ON access_records (identity_id, room_id, ts)`,
	`CREATE INDEX IF NOT EXISTS idx_equipment_room ON equipment (room_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_identity_room ON reservations (identity_id, room_id)`,
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Ping reports store reachability for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool for seeding tools.
func (s *Store) DB() *sql.DB {
	return s.db
}
