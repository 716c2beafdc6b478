// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/open-campus-lab/accessd/internal/config"
	"github.com/open-campus-lab/accessd/internal/models"
)

// relayCommand is the request body of the hardware relay gateway.
type relayCommand struct {
	Action models.RelayAction `json:"action"`
	Relay  int                `json:"relay"`
}

// relayReply is the gateway's response body.
type relayReply struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// GatewayClient sends relay commands to the hardware gateway over HTTP.
// Commands are paced by a token bucket (relay boards brown out under
// bursts) and guarded by a circuit breaker so a dead gateway fails fast
// instead of tying up activation calls in timeouts.
type GatewayClient struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*relayReply]
}

// NewGatewayClient builds a client from config.
func NewGatewayClient(cfg config.RelayGatewayConfig) *GatewayClient {
	settings := gobreaker.Settings{
		Name:    "relay-gateway",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
	}

	return &GatewayClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker[*relayReply](settings),
	}
}

// SendCommand executes one relay command. Any transport fault, non-2xx
// status, non-JSON body or ok=false reply is an error scoped to this
// relay only.
func (c *GatewayClient) SendCommand(ctx context.Context, action models.RelayAction, relayID int) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("relay %d: %w", relayID, err)
	}

	reply, err := c.breaker.Execute(func() (*relayReply, error) {
		return c.send(ctx, action, relayID)
	})
	if err != nil {
		return fmt.Errorf("relay %d: %w", relayID, err)
	}
	if !reply.OK {
		msg := reply.Error
		if msg == "" {
			msg = reply.Message
		}
		return fmt.Errorf("relay %d: gateway refused command: %s", relayID, msg)
	}
	return nil
}

func (c *GatewayClient) send(ctx context.Context, action models.RelayAction, relayID int) (*relayReply, error) {
	body, err := json.Marshal(relayCommand{Action: action, Relay: relayID})
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/relay", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway unavailable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var reply relayReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("gateway returned non-JSON body: %w", err)
	}
	return &reply, nil
}

// BreakerState reports the circuit breaker state for health checks.
func (c *GatewayClient) BreakerState() string {
	return c.breaker.State().String()
}

// waitWithContext sleeps for d or until ctx is done, reporting which.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
