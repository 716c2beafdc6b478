// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

// Command server runs the Accessd access coordination core: broker
// ingestion, tap/waiter matching, access decisions and relay dispatch,
// all under one supervisor tree.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/open-campus-lab/accessd/internal/access"
	"github.com/open-campus-lab/accessd/internal/api"
	"github.com/open-campus-lab/accessd/internal/config"
	"github.com/open-campus-lab/accessd/internal/dispatch"
	"github.com/open-campus-lab/accessd/internal/ingest"
	"github.com/open-campus-lab/accessd/internal/logging"
	"github.com/open-campus-lab/accessd/internal/registry"
	"github.com/open-campus-lab/accessd/internal/store"
	"github.com/open-campus-lab/accessd/internal/store/duckdb"
	"github.com/open-campus-lab/accessd/internal/store/memory"
	"github.com/open-campus-lab/accessd/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("accessd exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().Str("driver", cfg.Database.Driver).Msg("accessd starting")

	st, err := openStore(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Warn().Err(err).Msg("store close failed")
		}
	}()

	// Process-wide singletons. Default() is idempotent, so re-wiring
	// during development reloads never duplicates broker subscriptions
	// or drops in-flight waiters.
	reg := registry.Default(cfg.Registry.TapTTL)
	gateway := ingest.Default(cfg.NATS)

	unsubscribe := gateway.OnTap(reg.RegisterTap)
	defer unsubscribe()

	engine := access.New(st, cfg.Access)
	if cfg.Access.AllowWithoutReservation {
		logging.Warn().Msg("reservation bypass is ENABLED; do not run this in production")
	}

	client := dispatch.NewGatewayClient(cfg.RelayGateway)
	dispatcher := dispatch.New(st, client, cfg.RelayGateway.TelemetrySettleDelay)

	handler := api.NewHandler(engine, dispatcher, reg, gateway, st, cfg.Registry)
	router := api.NewRouter(handler, cfg.Server)

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddDataService(registry.NewJanitor(reg, cfg.Registry.SweepInterval))
	tree.AddMessagingService(gateway)
	tree.AddAPIService(api.NewServer(router, cfg.Server))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)

	// Drain: release suspended HTTP waiters, then let detached telemetry
	// tasks finish before the store closes.
	reg.Shutdown()
	dispatcher.Flush()

	if err != nil && ctx.Err() == nil {
		return err
	}
	logging.Info().Msg("accessd stopped")
	return nil
}

func openStore(cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "duckdb":
		st, err := duckdb.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		if cfg.SeedDemo {
			if err := st.SeedDemo(context.Background()); err != nil {
				_ = st.Close()
				return nil, err
			}
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
