// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

package access

import (
	"context"
	"testing"
	"time"

	"github.com/open-campus-lab/accessd/internal/config"
	"github.com/open-campus-lab/accessd/internal/models"
	"github.com/open-campus-lab/accessd/internal/store/memory"
)

// wednesday0830 is a Wednesday ("qua") at 08:30 local time.
var wednesday0830 = time.Date(2026, time.March, 4, 8, 30, 0, 0, time.Local)

func intPtr(v int) *int { return &v }

// newFixture seeds a professor with a card, an active room with two wired
// relays plus one unwired device, and a fixed Wednesday 08:00-10:00
// reservation.
func newFixture(t *testing.T) (*memory.Store, *Engine) {
	t.Helper()
	st := memory.New()

	st.AddIdentity(models.Identity{
		ID: 1, Name: "Ana Oliveira", Kind: models.IdentityProfessor,
		TagID: "04A1B2C3", Active: true,
	})
	st.AddIdentity(models.Identity{
		ID: 2, Name: "Bruno Souza", Kind: models.IdentityStudent,
		TagID: "04FFFFFF", Active: false,
	})

	st.AddRoom(models.Room{
		ID: 1, Name: "Lab 101", Building: "Bloco A", Status: models.RoomActive,
		Equipment: []models.Equipment{
			{ID: 10, Name: "Luz", Kind: models.EquipmentLight, RelayID: intPtr(1), Active: true},
			{ID: 11, Name: "Ar", Kind: models.EquipmentAC, RelayID: intPtr(2), Active: true},
			{ID: 12, Name: "Quadro", Kind: models.EquipmentOutlet, RelayID: nil, Active: true},
		},
	})
	st.AddRoom(models.Room{ID: 2, Name: "Lab 102", Status: models.RoomMaintenance})

	st.AddReservation(models.Reservation{
		ID: 100, IdentityID: 1, RoomID: 1,
		Kind: models.ReservationFixed, Weekday: "qua",
		StartTime: "08:00", EndTime: "10:00",
		Subject: "Redes de Computadores", Active: true,
	})

	engine := New(st, config.AccessConfig{ToggleWindow: 4 * time.Hour}).
		WithClock(func() time.Time { return wednesday0830 })
	return st, engine
}

func TestVerifyAccessAuthorizedInsideFixedWindow(t *testing.T) {
	st, engine := newFixture(t)

	resp, err := engine.VerifyAccess(context.Background(), "04A1B2C3", 1)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if !resp.Authorized {
		t.Fatalf("expected authorization, denied with %q", resp.Reason)
	}
	if resp.AccessKind != "entrada" {
		t.Errorf("first tap must be entrada, got %q", resp.AccessKind)
	}
	if resp.EquipmentAction != "ON" {
		t.Errorf("entry must command ON, got %q", resp.EquipmentAction)
	}
	if len(resp.ActivatedRelays) != 2 || resp.ActivatedRelays[0] != 1 || resp.ActivatedRelays[1] != 2 {
		t.Errorf("expected relays [1 2], got %v", resp.ActivatedRelays)
	}
	if resp.User == nil || resp.User.Name != "Ana Oliveira" || resp.User.Kind != "professor" {
		t.Errorf("unexpected user info: %+v", resp.User)
	}
	if resp.Reservation == nil || resp.Reservation.Schedule != "08:00 - 10:00" {
		t.Errorf("unexpected reservation info: %+v", resp.Reservation)
	}

	recs := st.Accesses()
	if len(recs) != 1 || recs[0].Kind != models.AccessEntry {
		t.Errorf("expected one entrada record, got %+v", recs)
	}
}

func TestVerifyAccessDenials(t *testing.T) {
	_, engine := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		tagID  string
		roomID int64
		reason string
	}{
		{"unregistered card", "DEADBEEF", 1, ReasonUnregisteredCard},
		{"inactive user", "04FFFFFF", 1, ReasonUserInactive},
		{"room not found", "04A1B2C3", 99, ReasonRoomNotFound},
		{"room in maintenance", "04A1B2C3", 2, ReasonRoomUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := engine.VerifyAccess(ctx, tc.tagID, tc.roomID)
			if err != nil {
				t.Fatalf("VerifyAccess: %v", err)
			}
			if resp.Authorized {
				t.Fatal("expected denial")
			}
			if resp.Reason != tc.reason {
				t.Errorf("expected reason %q, got %q", tc.reason, resp.Reason)
			}
		})
	}
}

func TestVerifyAccessDeniedOutsideReservationWindow(t *testing.T) {
	st, _ := newFixture(t)
	ctx := context.Background()

	t.Run("wrong weekday", func(t *testing.T) {
		thursday := wednesday0830.AddDate(0, 0, 1)
		engine := New(st, config.AccessConfig{}).WithClock(func() time.Time { return thursday })
		resp, err := engine.VerifyAccess(ctx, "04A1B2C3", 1)
		if err != nil {
			t.Fatalf("VerifyAccess: %v", err)
		}
		if resp.Authorized || resp.Reason != ReasonNoReservation {
			t.Errorf("expected no_active_reservation, got %+v", resp)
		}
	})

	t.Run("end minute is exclusive", func(t *testing.T) {
		atEnd := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.Local)
		engine := New(st, config.AccessConfig{}).WithClock(func() time.Time { return atEnd })
		resp, err := engine.VerifyAccess(ctx, "04A1B2C3", 1)
		if err != nil {
			t.Fatalf("VerifyAccess: %v", err)
		}
		if resp.Authorized {
			t.Error("10:00 tap must fall outside an 08:00-10:00 window")
		}
	})

	t.Run("start minute is inclusive", func(t *testing.T) {
		atStart := time.Date(2026, time.March, 4, 8, 0, 0, 0, time.Local)
		engine := New(st, config.AccessConfig{}).WithClock(func() time.Time { return atStart })
		resp, err := engine.VerifyAccess(ctx, "04A1B2C3", 1)
		if err != nil {
			t.Fatalf("VerifyAccess: %v", err)
		}
		if !resp.Authorized {
			t.Errorf("08:00 tap must be inside the window, denied with %q", resp.Reason)
		}
	})
}

func TestVerifyAccessDatedReservation(t *testing.T) {
	st := memory.New()
	st.AddIdentity(models.Identity{ID: 1, Name: "Carla", Kind: models.IdentityTechnician, TagID: "04AAAA01", Active: true})
	st.AddRoom(models.Room{ID: 1, Name: "Sala 3", Status: models.RoomActive})

	start := wednesday0830.AddDate(0, 0, -1)
	end := wednesday0830.AddDate(0, 0, 1)
	st.AddReservation(models.Reservation{
		ID: 200, IdentityID: 1, RoomID: 1,
		Kind: models.ReservationDated, StartDate: &start, EndDate: &end,
		StartTime: "08:00", EndTime: "12:00",
		Subject: "Manutencao preventiva", Active: true,
	})

	ctx := context.Background()

	t.Run("inside the date range", func(t *testing.T) {
		engine := New(st, config.AccessConfig{}).WithClock(func() time.Time { return wednesday0830 })
		resp, err := engine.VerifyAccess(ctx, "04AAAA01", 1)
		if err != nil {
			t.Fatalf("VerifyAccess: %v", err)
		}
		if !resp.Authorized {
			t.Errorf("expected authorization, denied with %q", resp.Reason)
		}
	})

	t.Run("past the end date", func(t *testing.T) {
		after := wednesday0830.AddDate(0, 0, 7)
		engine := New(st, config.AccessConfig{}).WithClock(func() time.Time { return after })
		resp, err := engine.VerifyAccess(ctx, "04AAAA01", 1)
		if err != nil {
			t.Fatalf("VerifyAccess: %v", err)
		}
		if resp.Authorized || resp.Reason != ReasonNoReservation {
			t.Errorf("expected no_active_reservation, got %+v", resp)
		}
	})
}

func TestEntryExitToggle(t *testing.T) {
	ctx := context.Background()

	t.Run("second tap within the window is an exit", func(t *testing.T) {
		st, engine := newFixture(t)
		if _, err := engine.VerifyAccess(ctx, "04A1B2C3", 1); err != nil {
			t.Fatalf("first tap: %v", err)
		}

		later := wednesday0830.Add(45 * time.Minute)
		engine.WithClock(func() time.Time { return later })

		resp, err := engine.VerifyAccess(ctx, "04A1B2C3", 1)
		if err != nil {
			t.Fatalf("second tap: %v", err)
		}
		if resp.AccessKind != "saida" || resp.EquipmentAction != "OFF" {
			t.Errorf("expected saida/OFF, got %s/%s", resp.AccessKind, resp.EquipmentAction)
		}
		if n := len(st.Accesses()); n != 2 {
			t.Errorf("expected 2 access records, got %d", n)
		}
	})

	t.Run("stale entry past the window is a fresh entry", func(t *testing.T) {
		_, engine := newFixture(t)
		if _, err := engine.VerifyAccess(ctx, "04A1B2C3", 1); err != nil {
			t.Fatalf("first tap: %v", err)
		}

		// Shrink the toggle window so the second tap lands past it while
		// still inside the 08:00-10:00 reservation.
		engineShort := New(engine.storage, config.AccessConfig{ToggleWindow: 30 * time.Minute}).
			WithClock(func() time.Time { return wednesday0830.Add(31 * time.Minute) })

		resp, err := engineShort.VerifyAccess(ctx, "04A1B2C3", 1)
		if err != nil {
			t.Fatalf("second tap: %v", err)
		}
		if resp.AccessKind != "entrada" || resp.EquipmentAction != "ON" {
			t.Errorf("expected entrada/ON after the toggle window, got %s/%s", resp.AccessKind, resp.EquipmentAction)
		}
	})

	t.Run("exit then tap is an entry again", func(t *testing.T) {
		_, engine := newFixture(t)
		if _, err := engine.VerifyAccess(ctx, "04A1B2C3", 1); err != nil {
			t.Fatalf("tap 1: %v", err)
		}
		engine.WithClock(func() time.Time { return wednesday0830.Add(30 * time.Minute) })
		if _, err := engine.VerifyAccess(ctx, "04A1B2C3", 1); err != nil {
			t.Fatalf("tap 2: %v", err)
		}
		engine.WithClock(func() time.Time { return wednesday0830.Add(60 * time.Minute) })

		resp, err := engine.VerifyAccess(ctx, "04A1B2C3", 1)
		if err != nil {
			t.Fatalf("tap 3: %v", err)
		}
		if resp.AccessKind != "entrada" || resp.EquipmentAction != "ON" {
			t.Errorf("expected entrada/ON after an exit, got %s/%s", resp.AccessKind, resp.EquipmentAction)
		}
	})
}

func TestReservationBypassFlag(t *testing.T) {
	st := memory.New()
	st.AddIdentity(models.Identity{ID: 1, Name: "Visitante", Kind: models.IdentityVisitor, TagID: "04BBBB02", Active: true})
	st.AddRoom(models.Room{ID: 1, Name: "Auditorio", Status: models.RoomActive})

	engine := New(st, config.AccessConfig{AllowWithoutReservation: true}).
		WithClock(func() time.Time { return wednesday0830 })

	resp, err := engine.VerifyAccess(context.Background(), "04BBBB02", 1)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if !resp.Authorized {
		t.Fatalf("bypass must authorize without reservation, denied with %q", resp.Reason)
	}
	if resp.Reservation != nil {
		t.Errorf("bypassed decision must carry no reservation info, got %+v", resp.Reservation)
	}
}

func TestInactiveReservationIgnored(t *testing.T) {
	st, engine := newFixture(t)
	st.AddIdentity(models.Identity{ID: 3, Name: "Davi", Kind: models.IdentityStudent, TagID: "04CCCC03", Active: true})
	st.AddReservation(models.Reservation{
		ID: 300, IdentityID: 3, RoomID: 1,
		Kind: models.ReservationFixed, Weekday: "qua",
		StartTime: "08:00", EndTime: "10:00", Active: false,
	})

	resp, err := engine.VerifyAccess(context.Background(), "04CCCC03", 1)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if resp.Authorized || resp.Reason != ReasonNoReservation {
		t.Errorf("inactive reservation must not authorize, got %+v", resp)
	}
}
