// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/open-campus-lab/accessd/internal/access"
	"github.com/open-campus-lab/accessd/internal/config"
	"github.com/open-campus-lab/accessd/internal/dispatch"
	"github.com/open-campus-lab/accessd/internal/models"
	"github.com/open-campus-lab/accessd/internal/registry"
	"github.com/open-campus-lab/accessd/internal/store/memory"
)

// wednesday0900 is a Wednesday ("qua") inside the seeded 08:00-10:00
// reservation.
var wednesday0900 = time.Date(2026, time.March, 4, 9, 0, 0, 0, time.Local)

func intPtr(v int) *int { return &v }

// okCommander accepts every relay command.
type okCommander struct{}

func (okCommander) SendCommand(context.Context, models.RelayAction, int) error { return nil }

type fixture struct {
	store    *memory.Store
	registry *registry.Registry
	router   http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memory.New()
	st.AddIdentity(models.Identity{
		ID: 1, Name: "Ana Oliveira", Kind: models.IdentityProfessor,
		TagID: "04A1B2C3", Active: true,
	})
	st.AddRoom(models.Room{
		ID: 1, Name: "Lab 101", Status: models.RoomActive,
		Equipment: []models.Equipment{
			{ID: 10, Name: "Luz", Kind: models.EquipmentLight, RelayID: intPtr(1), Active: true},
		},
	})
	st.AddReservation(models.Reservation{
		ID: 100, IdentityID: 1, RoomID: 1,
		Kind: models.ReservationFixed, Weekday: "qua",
		StartTime: "08:00", EndTime: "10:00",
		Subject: "Redes", Active: true,
	})

	engine := access.New(st, config.AccessConfig{}).
		WithClock(func() time.Time { return wednesday0900 })
	dispatcher := dispatch.New(st, okCommander{}, 0)
	reg := registry.New(time.Minute)

	regCfg := config.RegistryConfig{
		TapTTL:             time.Minute,
		DefaultWaitTimeout: 100 * time.Millisecond,
		MaxWaitTimeout:     time.Second,
	}
	h := NewHandler(engine, dispatcher, reg, nil, st, regCfg)
	router := NewRouter(h, config.ServerConfig{
		RateLimitPerMinute: 10000,
		CORSAllowedOrigins: []string{"*"},
	})

	return &fixture{store: st, registry: reg, router: router}
}

func (f *fixture) post(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestVerifyAccessEndpoint(t *testing.T) {
	f := newFixture(t)

	t.Run("authorized tap", func(t *testing.T) {
		rec := f.post(t, "/api/v1/access/verify", models.VerifyAccessRequest{TagUID: "04A1B2C3", RoomID: 1})
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
		}
		var resp models.VerifyAccessResponse
		decodeBody(t, rec, &resp)
		if !resp.Authorized || resp.AccessKind != "entrada" || resp.EquipmentAction != "ON" {
			t.Errorf("unexpected decision: %+v", resp)
		}
		if len(resp.ActivatedRelays) != 1 || resp.ActivatedRelays[0] != 1 {
			t.Errorf("expected relays [1], got %v", resp.ActivatedRelays)
		}
	})

	t.Run("denial is still a 200", func(t *testing.T) {
		rec := f.post(t, "/api/v1/access/verify", models.VerifyAccessRequest{TagUID: "UNKNOWN1", RoomID: 1})
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d", rec.Code)
		}
		var resp models.VerifyAccessResponse
		decodeBody(t, rec, &resp)
		if resp.Authorized || resp.Reason != "unregistered_card" {
			t.Errorf("unexpected decision: %+v", resp)
		}
	})

	t.Run("missing fields are rejected", func(t *testing.T) {
		rec := f.post(t, "/api/v1/access/verify", map[string]interface{}{"tag_uid": "04A1B2C3"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status %d", rec.Code)
		}
		var resp models.ErrorResponse
		decodeBody(t, rec, &resp)
		if resp.Error.Code != "VALIDATION_ERROR" {
			t.Errorf("expected VALIDATION_ERROR, got %q", resp.Error.Code)
		}
	})

	t.Run("malformed JSON is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/access/verify", bytes.NewReader([]byte("{broken")))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status %d", rec.Code)
		}
	})
}

func TestActivateEndpoint(t *testing.T) {
	f := newFixture(t)

	t.Run("activates all active relays by default", func(t *testing.T) {
		rec := f.post(t, "/api/v1/equipment/activate", models.ActivateRequest{RoomID: 1})
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
		}
		var resp models.ActivateResponse
		decodeBody(t, rec, &resp)
		if !resp.Success || len(resp.Results) != 1 || resp.Results[0].RelayID != 1 {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("unknown room is a 404", func(t *testing.T) {
		rec := f.post(t, "/api/v1/equipment/activate", models.ActivateRequest{RoomID: 99})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status %d", rec.Code)
		}
		var resp models.ErrorResponse
		decodeBody(t, rec, &resp)
		if resp.Error.Code != "ROOM_NOT_FOUND" {
			t.Errorf("expected ROOM_NOT_FOUND, got %q", resp.Error.Code)
		}
	})

	t.Run("invalid action is rejected", func(t *testing.T) {
		rec := f.post(t, "/api/v1/equipment/activate", models.ActivateRequest{RoomID: 1, Action: "TOGGLE"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status %d", rec.Code)
		}
	})
}

func TestWaitTapEndpoint(t *testing.T) {
	t.Run("tap arrives while waiting", func(t *testing.T) {
		f := newFixture(t)

		go func() {
			// Let the wait request suspend first.
			time.Sleep(30 * time.Millisecond)
			f.registry.RegisterTap(models.TapEvent{TagID: "04A1B2C3", TimestampMs: 555, OriginID: "totem-1"})
		}()

		rec := f.post(t, "/api/v1/taps/wait", models.WaitTapRequest{TimeoutMs: 1000})
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
		}
		var resp models.WaitTapResponse
		decodeBody(t, rec, &resp)
		if resp.CardID != "04A1B2C3" || resp.TimestampMs != 555 || resp.OriginID != "totem-1" {
			t.Errorf("unexpected tap: %+v", resp)
		}
		if resp.SessionID == "" {
			t.Error("server must generate a session id when absent")
		}
	})

	t.Run("pending tap resolves without suspending", func(t *testing.T) {
		f := newFixture(t)
		f.registry.RegisterTap(models.TapEvent{TagID: "04D4E5F6", TimestampMs: 1})

		rec := f.post(t, "/api/v1/taps/wait", models.WaitTapRequest{})
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d", rec.Code)
		}
		var resp models.WaitTapResponse
		decodeBody(t, rec, &resp)
		if resp.CardID != "04D4E5F6" {
			t.Errorf("unexpected card %q", resp.CardID)
		}
	})

	t.Run("timeout is a 408", func(t *testing.T) {
		f := newFixture(t)
		rec := f.post(t, "/api/v1/taps/wait", models.WaitTapRequest{TimeoutMs: 20})
		if rec.Code != http.StatusRequestTimeout {
			t.Fatalf("status %d", rec.Code)
		}
		var resp models.ErrorResponse
		decodeBody(t, rec, &resp)
		if resp.Error.Code != "WAIT_TIMEOUT" {
			t.Errorf("expected WAIT_TIMEOUT, got %q", resp.Error.Code)
		}
	})

	t.Run("cancel releases the waiter with a 410", func(t *testing.T) {
		f := newFixture(t)
		sessionID := "7f9c24e5-2c31-4a2b-9a71-000000000001"

		done := make(chan *httptest.ResponseRecorder, 1)
		go func() {
			done <- f.post(t, "/api/v1/taps/wait", models.WaitTapRequest{SessionID: sessionID, TimeoutMs: 1000})
		}()
		deadline := time.Now().Add(2 * time.Second)
		for f.registry.WaiterCount() == 0 {
			if time.Now().After(deadline) {
				t.Fatal("waiter did not register")
			}
			time.Sleep(2 * time.Millisecond)
		}

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/taps/wait/"+sessionID, nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("cancel status %d", rec.Code)
		}

		waitRec := <-done
		if waitRec.Code != http.StatusGone {
			t.Errorf("wait status %d after cancel", waitRec.Code)
		}

		// Cancelling again is still a 204.
		rec = httptest.NewRecorder()
		f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/taps/wait/"+sessionID, nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("second cancel status %d", rec.Code)
		}
	})
}

func TestPeekLatestTapEndpoint(t *testing.T) {
	f := newFixture(t)

	t.Run("empty registry is a 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/taps/latest", nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status %d", rec.Code)
		}
	})

	t.Run("pending tap is returned without being claimed", func(t *testing.T) {
		f.registry.RegisterTap(models.TapEvent{TagID: "04A1B2C3", TimestampMs: 9})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/taps/latest", nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d", rec.Code)
		}
		if f.registry.PendingCount() != 1 {
			t.Error("peek must not claim the tap")
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	t.Run("live", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d", rec.Code)
		}
	})

	t.Run("ready with healthy store and no broker", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
		}
		var resp models.HealthResponse
		decodeBody(t, rec, &resp)
		if resp.Status != "ok" || resp.Components["store"] != "ok" {
			t.Errorf("unexpected health: %+v", resp)
		}
	})
}
