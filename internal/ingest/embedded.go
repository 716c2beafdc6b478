// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

package ingest

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer wraps an in-process NATS server for single-box campus
// deployments where the totems connect directly to accessd, and for
// integration-style tests. Core NATS only: taps are transient by design,
// so no JetStream persistence is enabled.
type EmbeddedServer struct {
	server    *server.Server
	clientURL string
}

// StartEmbeddedServer creates and starts an embedded NATS server on
// host:port. Returns an error if the server is not ready within 10s.
func StartEmbeddedServer(host string, port int) (*EmbeddedServer, error) {
	opts := &server.Options{
		ServerName: "accessd-broker",
		Host:       host,
		Port:       port,
		JetStream:  false,
		NoLog:      true,
		NoSigs:     true,
		MaxPayload: 64 * 1024, // tap payloads are tiny
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready within timeout")
	}

	return &EmbeddedServer{server: ns, clientURL: ns.ClientURL()}, nil
}

// ClientURL returns the connection URL for clients.
func (s *EmbeddedServer) ClientURL() string {
	return s.clientURL
}

// Shutdown stops the server and waits for it to exit.
func (s *EmbeddedServer) Shutdown() {
	s.server.Shutdown()
	s.server.WaitForShutdown()
}
