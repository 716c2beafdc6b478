// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

// Package ingest subscribes to the campus broker and fans card tap events
// out to in-process consumers.
//
// The gateway is a process-wide singleton: constructing it twice would
// duplicate the broker subscription and deliver every tap twice. Default()
// guards construction with sync.Once, so repeated initialization during
// wiring is idempotent.
//
// Delivery is at-most-once by design. A replayed or stale tap is worse
// than a lost one for physical access (someone would have to tap again),
// so the gateway uses a plain core-NATS subscription without durable
// consumer state.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/open-campus-lab/accessd/internal/config"
	"github.com/open-campus-lab/accessd/internal/logging"
	"github.com/open-campus-lab/accessd/internal/metrics"
	"github.com/open-campus-lab/accessd/internal/models"
)

// Handler consumes one tap event. Handlers run synchronously on the broker
// client's delivery goroutine and must be fast or hand off internally.
type Handler func(tap models.TapEvent)

// Gateway maintains the broker subscription and the handler fan-out set.
type Gateway struct {
	cfg config.NATSConfig

	mu       sync.Mutex
	handlers map[int]Handler
	nextID   int
	conn     *nats.Conn
	embedded *EmbeddedServer
}

var (
	defaultOnce sync.Once
	defaultGW   *Gateway
)

// New creates a gateway. Prefer Default() outside of tests.
func New(cfg config.NATSConfig) *Gateway {
	return &Gateway{
		cfg:      cfg,
		handlers: make(map[int]Handler),
	}
}

// Default returns the process-wide gateway, constructing it on first use.
func Default(cfg config.NATSConfig) *Gateway {
	defaultOnce.Do(func() {
		defaultGW = New(cfg)
	})
	return defaultGW
}

// OnTap registers a fan-out handler and returns its unsubscribe function.
// The unsubscribe function is idempotent.
func (g *Gateway) OnTap(h Handler) func() {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextID
	g.nextID++
	g.handlers[id] = h

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.handlers, id)
	}
}

// Publish sends a payload on the broker. Present for symmetry with the
// totem firmware; the read path does not use it.
func (g *Gateway) Publish(subject string, payload []byte) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("ingest: not connected")
	}
	return conn.Publish(subject, payload)
}

// Connected reports whether the broker connection is currently up.
// Used by the readiness endpoint.
func (g *Gateway) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conn != nil && g.conn.IsConnected()
}

// Serve connects to the broker, subscribes to the tap subject and blocks
// until ctx is cancelled or the connection is permanently closed. It
// implements suture.Service: a permanently closed connection (reconnect
// bound exhausted) returns an error and the supervisor restarts the
// gateway with a fresh retry budget, so broker loss is never fatal to the
// process.
func (g *Gateway) Serve(ctx context.Context) error {
	log := logging.With().Str("component", "ingest").Logger()

	url := g.cfg.URL
	if g.cfg.EmbeddedServer {
		es, err := StartEmbeddedServer(g.cfg.EmbeddedHost, g.cfg.EmbeddedPort)
		if err != nil {
			return err
		}
		defer es.Shutdown()
		g.mu.Lock()
		g.embedded = es
		g.mu.Unlock()
		url = es.ClientURL()
		log.Info().Str("url", url).Msg("embedded broker started")
	}

	closed := make(chan struct{})

	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(g.cfg.MaxReconnects),
		nats.ReconnectWait(g.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("broker disconnected, reconnecting")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			metrics.BrokerReconnects.Inc()
			log.Info().Str("url", nc.ConnectedUrl()).Msg("broker reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			close(closed)
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to broker %s: %w", url, err)
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.conn = nil
		g.mu.Unlock()
	}()

	sub, err := conn.Subscribe(g.cfg.TapSubject, g.handleMessage)
	if err != nil {
		conn.Close()
		return fmt.Errorf("subscribe to %s: %w", g.cfg.TapSubject, err)
	}
	log.Info().Str("subject", g.cfg.TapSubject).Msg("subscribed to tap events")

	select {
	case <-ctx.Done():
		_ = sub.Unsubscribe()
		if err := conn.Drain(); err != nil {
			conn.Close()
		} else {
			waitClosed(closed, 5*time.Second)
		}
		return ctx.Err()

	case <-closed:
		// Reconnect bound exhausted. Logged here; the supervisor restart
		// provides the continued retry policy.
		log.Error().Int("max_reconnects", g.cfg.MaxReconnects).
			Msg("broker connection closed after exhausting reconnect attempts")
		return fmt.Errorf("ingest: broker connection closed")
	}
}

func waitClosed(closed <-chan struct{}, timeout time.Duration) {
	select {
	case <-closed:
	case <-time.After(timeout):
	}
}

// handleMessage parses one broker message and fans it out. Messages
// without a cardId are dropped with a warning and never reach handlers.
// A panicking handler is recovered and logged; remaining handlers still
// run.
func (g *Gateway) handleMessage(msg *nats.Msg) {
	metrics.TapsReceived.Inc()

	var tap models.TapEvent
	if err := json.Unmarshal(msg.Data, &tap); err != nil {
		metrics.TapsDropped.WithLabelValues("parse_error").Inc()
		logging.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping unparseable tap message")
		return
	}
	if tap.TagID == "" {
		metrics.TapsDropped.WithLabelValues("missing_card_id").Inc()
		logging.Warn().Str("subject", msg.Subject).Msg("dropping tap message without cardId")
		return
	}
	if tap.TimestampMs == 0 {
		tap.TimestampMs = time.Now().UnixMilli()
	}

	g.mu.Lock()
	handlers := make([]Handler, 0, len(g.handlers))
	for _, h := range g.handlers {
		handlers = append(handlers, h)
	}
	g.mu.Unlock()

	for _, h := range handlers {
		g.deliver(h, tap)
	}
}

func (g *Gateway) deliver(h Handler, tap models.TapEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.HandlerPanics.Inc()
			logging.Error().
				Interface("panic", rec).
				Str("tag_id", tap.TagID).
				Msg("tap handler panicked")
		}
	}()
	h(tap)
}

// String names the service in supervisor logs.
func (g *Gateway) String() string { return "ingest-gateway" }
