// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

package registry

import (
	"context"
	"time"

	"github.com/open-campus-lab/accessd/internal/logging"
)

// Janitor periodically sweeps expired pending taps. It implements
// suture.Service and runs under the supervisor's data layer.
type Janitor struct {
	registry *Registry
	interval time.Duration
}

// NewJanitor creates a janitor for reg. A non-positive interval defaults
// to 30s.
func NewJanitor(reg *Registry, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Janitor{registry: reg, interval: interval}
}

// Serve sweeps on a ticker until ctx is cancelled.
func (j *Janitor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if removed := j.registry.Sweep(); removed > 0 {
				logging.Debug().Int("removed", removed).Msg("registry sweep discarded expired taps")
			}
		}
	}
}

// String names the service in supervisor logs.
func (j *Janitor) String() string { return "registry-janitor" }
