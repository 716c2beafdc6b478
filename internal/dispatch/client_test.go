// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/open-campus-lab/accessd/internal/config"
	"github.com/open-campus-lab/accessd/internal/models"
)

func gatewayConfig(baseURL string) config.RelayGatewayConfig {
	return config.RelayGatewayConfig{
		BaseURL:                 baseURL,
		Timeout:                 2 * time.Second,
		RatePerSecond:           1000,
		Burst:                   100,
		BreakerFailureThreshold: 3,
		BreakerTimeout:          time.Second,
	}
}

func TestSendCommandSuccess(t *testing.T) {
	var got relayCommand
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/relay" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(relayReply{OK: true, Message: "done"})
	}))
	defer srv.Close()

	c := NewGatewayClient(gatewayConfig(srv.URL))
	if err := c.SendCommand(context.Background(), models.RelayOn, 3); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if got.Action != models.RelayOn || got.Relay != 3 {
		t.Errorf("unexpected command body: %+v", got)
	}
}

func TestSendCommandFailures(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		c := NewGatewayClient(gatewayConfig(srv.URL))
		err := c.SendCommand(context.Background(), models.RelayOn, 1)
		if err == nil || !strings.Contains(err.Error(), "status 502") {
			t.Errorf("expected status error, got %v", err)
		}
	})

	t.Run("non-JSON body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>gateway error page</html>"))
		}))
		defer srv.Close()

		c := NewGatewayClient(gatewayConfig(srv.URL))
		if err := c.SendCommand(context.Background(), models.RelayOn, 1); err == nil {
			t.Error("expected error for non-JSON body")
		}
	})

	t.Run("ok false reply", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(relayReply{OK: false, Error: "relay jammed"})
		}))
		defer srv.Close()

		c := NewGatewayClient(gatewayConfig(srv.URL))
		err := c.SendCommand(context.Background(), models.RelayOff, 2)
		if err == nil || !strings.Contains(err.Error(), "relay jammed") {
			t.Errorf("expected refusal error, got %v", err)
		}
	})

	t.Run("unreachable gateway", func(t *testing.T) {
		c := NewGatewayClient(gatewayConfig("http://127.0.0.1:1"))
		if err := c.SendCommand(context.Background(), models.RelayOn, 1); err == nil {
			t.Error("expected transport error")
		}
	})
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewGatewayClient(gatewayConfig(srv.URL))
	for i := 0; i < 3; i++ {
		_ = c.SendCommand(context.Background(), models.RelayOn, 1)
	}
	if state := c.BreakerState(); state != "open" {
		t.Errorf("expected open breaker, got %q", state)
	}

	// With the breaker open the call fails without touching the gateway.
	err := c.SendCommand(context.Background(), models.RelayOn, 1)
	if err == nil || !strings.Contains(err.Error(), "circuit breaker is open") {
		t.Errorf("expected open-breaker error, got %v", err)
	}
}
