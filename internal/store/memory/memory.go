// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

// Package memory provides an in-memory store.Store for development and
// tests. All methods are safe for concurrent use.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/open-campus-lab/accessd/internal/models"
	"github.com/open-campus-lab/accessd/internal/store"
)

// Store holds all rows under a single mutex. Row volumes in dev are tiny,
// so linear scans are fine.
type Store struct {
	mu           sync.Mutex
	identities   []models.Identity
	rooms        []models.Room
	reservations []models.Reservation
	accesses     []models.AccessRecord
	commands     []models.EquipmentCommand
	samples      []models.TelemetrySample
	nextID       int64
}

var _ store.Store = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{nextID: 1}
}

func (s *Store) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// AddIdentity seeds an identity. Dev and test helper.
func (s *Store) AddIdentity(id models.Identity) models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id.ID == 0 {
		id.ID = s.allocID()
	}
	s.identities = append(s.identities, id)
	return id
}

// AddRoom seeds a room with its equipment. Dev and test helper.
func (s *Store) AddRoom(room models.Room) models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room.ID == 0 {
		room.ID = s.allocID()
	}
	for i := range room.Equipment {
		if room.Equipment[i].ID == 0 {
			room.Equipment[i].ID = s.allocID()
		}
		room.Equipment[i].RoomID = room.ID
	}
	s.rooms = append(s.rooms, room)
	return room
}

// AddReservation seeds a reservation. Dev and test helper.
func (s *Store) AddReservation(res models.Reservation) models.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res.ID == 0 {
		res.ID = s.allocID()
	}
	s.reservations = append(s.reservations, res)
	return res
}

func (s *Store) IdentityByTag(_ context.Context, tagID string) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.identities {
		if s.identities[i].TagID == tagID && tagID != "" {
			id := s.identities[i]
			return &id, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) RoomByID(_ context.Context, id int64) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rooms {
		if s.rooms[i].ID == id {
			room := s.rooms[i]
			room.Equipment = append([]models.Equipment(nil), s.rooms[i].Equipment...)
			return &room, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) EquipmentByRelay(_ context.Context, roomID int64, relayID int) (*models.Equipment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rooms {
		if s.rooms[i].ID != roomID {
			continue
		}
		for _, eq := range s.rooms[i].Equipment {
			if eq.RelayID != nil && *eq.RelayID == relayID {
				out := eq
				return &out, nil
			}
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ActiveReservations(_ context.Context, identityID, roomID int64) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, res := range s.reservations {
		if res.Active && res.IdentityID == identityID && res.RoomID == roomID {
			out = append(out, res)
		}
	}
	return out, nil
}

func (s *Store) LatestAccess(_ context.Context, identityID, roomID int64) (*models.AccessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.AccessRecord
	for i := range s.accesses {
		rec := s.accesses[i]
		if rec.IdentityID != identityID || rec.RoomID != roomID {
			continue
		}
		if latest == nil || rec.Timestamp.After(latest.Timestamp) {
			latest = &rec
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	out := *latest
	return &out, nil
}

func (s *Store) CreateAccess(_ context.Context, rec *models.AccessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.allocID()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	s.accesses = append(s.accesses, *rec)
	return nil
}

func (s *Store) CreateCommand(_ context.Context, cmd *models.EquipmentCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd.ID = s.allocID()
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	s.commands = append(s.commands, *cmd)
	return nil
}

func (s *Store) CreateSample(_ context.Context, sample *models.TelemetrySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sample.ID = s.allocID()
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	s.samples = append(s.samples, *sample)
	return nil
}

// Commands returns a copy of all recorded equipment commands. Test helper.
func (s *Store) Commands() []models.EquipmentCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EquipmentCommand, len(s.commands))
	copy(out, s.commands)
	return out
}

// Samples returns a copy of all recorded telemetry samples. Test helper.
func (s *Store) Samples() []models.TelemetrySample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TelemetrySample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Accesses returns a copy of all recorded access records. Test helper.
func (s *Store) Accesses() []models.AccessRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AccessRecord, len(s.accesses))
	copy(out, s.accesses)
	return out
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
