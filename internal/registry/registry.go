// Accessd - Campus Access Control and Equipment Coordination
// Copyright 2026 Open Campus Lab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/open-campus-lab/accessd

// Package registry matches out-of-band card taps to callers waiting for
// them.
//
// Taps and waiters arrive independently: a tap with no waiter is buffered
// as a pending tap (at most one per tag, last write wins, 60s TTL); a
// waiter with no tap suspends until the next tap, a timeout or an explicit
// cancellation. Matching is FIFO by waiter registration order, not
// tag-specific: each logical flow has exactly one physical reader feed, so
// any outstanding waiter is the intended recipient of the next tap.
//
// Every waiter has exactly one outcome. Resolution, timeout and
// cancellation race against each other under the registry mutex; whichever
// commits first wins and the others become no-ops.
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/open-campus-lab/accessd/internal/logging"
	"github.com/open-campus-lab/accessd/internal/metrics"
	"github.com/open-campus-lab/accessd/internal/models"
)

var (
	// ErrWaitTimeout is returned when no tap arrives within the timeout.
	ErrWaitTimeout = errors.New("registry: wait for tap timed out")

	// ErrWaitCancelled is returned when the wait was cancelled, either via
	// CancelWait or the caller's context.
	ErrWaitCancelled = errors.New("registry: wait cancelled")

	// ErrSessionActive is returned when a session already has a live waiter.
	ErrSessionActive = errors.New("registry: session already waiting")

	// ErrShuttingDown is returned to waiters drained during shutdown.
	ErrShuttingDown = errors.New("registry: shutting down")
)

// DefaultTapTTL balances "don't lose a tap that lands a moment before the
// caller subscribes" against "don't let a stale tap be claimed minutes
// later".
const DefaultTapTTL = 60 * time.Second

// pendingTap is an unclaimed tap with its expiry bookkeeping.
type pendingTap struct {
	tap       models.TapEvent
	expiresAt time.Time
	timer     *time.Timer
}

// waiter is one suspended WaitForTap call. done flips exactly once, under
// the registry mutex, at resolution, timeout, cancellation or shutdown.
type waiter struct {
	sessionID string
	resolved  chan models.TapEvent // buffered 1, written at most once
	cancelled chan error           // buffered 1, written at most once
	done      bool
}

// Registry owns the pending-tap map and the waiter queue. Both are only
// touched under mu; this is the only mutable shared state in the core.
type Registry struct {
	mu       sync.Mutex
	pending  map[string]*pendingTap
	waiters  []*waiter
	ttl      time.Duration
	now      func() time.Time
	shutdown bool
}

// New creates a Registry with the given tap TTL. A zero ttl uses
// DefaultTapTTL.
func New(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTapTTL
	}
	return &Registry{
		pending: make(map[string]*pendingTap),
		ttl:     ttl,
		now:     time.Now,
	}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry, constructing it on first use.
// Repeated calls return the same instance regardless of ttl, so repeated
// initialization never drops in-flight waiters.
func Default(ttl time.Duration) *Registry {
	defaultOnce.Do(func() {
		defaultReg = New(ttl)
	})
	return defaultReg
}

// RegisterTap stores the tap as pending for its tag (overwriting an older
// pending tap for the same tag), then resolves the earliest-registered
// live waiter if one exists. A tap claimed by a waiter never stays
// pending.
func (r *Registry) RegisterTap(tap models.TapEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return
	}

	if old, ok := r.pending[tap.TagID]; ok {
		old.timer.Stop()
	}

	if w := r.popWaiterLocked(); w != nil {
		w.resolved <- tap
		metrics.WaiterMatches.Inc()
		logging.Debug().
			Str("tag_id", tap.TagID).
			Str("session_id", w.sessionID).
			Msg("tap delivered to waiting session")
		delete(r.pending, tap.TagID)
		return
	}

	tagID := tap.TagID
	entry := &pendingTap{
		tap:       tap,
		expiresAt: r.now().Add(r.ttl),
	}
	entry.timer = time.AfterFunc(r.ttl, func() {
		r.expireTap(tagID, entry)
	})
	r.pending[tagID] = entry
}

// expireTap removes a pending tap when its TTL timer fires. The entry
// comparison guards against expiring a newer tap that replaced this one.
func (r *Registry) expireTap(tagID string, entry *pendingTap) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.pending[tagID]; ok && current == entry {
		delete(r.pending, tagID)
		metrics.TapsExpired.Inc()
		logging.Debug().Str("tag_id", tagID).Msg("pending tap expired")
	}
}

// PeekLatestUnclaimed returns the most recent non-expired pending tap
// without claiming it.
func (r *Registry) PeekLatestUnclaimed() (models.TapEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tap, _, ok := r.latestPendingLocked()
	return tap, ok
}

// latestPendingLocked picks the pending tap with the highest timestamp,
// skipping entries whose TTL elapsed but whose timer has not fired yet.
func (r *Registry) latestPendingLocked() (models.TapEvent, string, bool) {
	var (
		best    models.TapEvent
		bestTag string
		found   bool
	)
	now := r.now()
	for tag, entry := range r.pending {
		if !entry.expiresAt.After(now) {
			continue
		}
		if !found || entry.tap.TimestampMs > best.TimestampMs {
			best = entry.tap
			bestTag = tag
			found = true
		}
	}
	return best, bestTag, found
}

// WaitForTap blocks until a tap is matched to this session, the timeout
// elapses, CancelWait is called, or ctx is cancelled. If an unclaimed tap
// already exists it is claimed and returned without suspending.
//
// Exactly one outcome occurs per call.
func (r *Registry) WaitForTap(ctx context.Context, sessionID string, timeout time.Duration) (models.TapEvent, error) {
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		return models.TapEvent{}, ErrShuttingDown
	}
	for _, w := range r.waiters {
		if w.sessionID == sessionID && !w.done {
			r.mu.Unlock()
			return models.TapEvent{}, ErrSessionActive
		}
	}

	if tap, tag, ok := r.latestPendingLocked(); ok {
		entry := r.pending[tag]
		entry.timer.Stop()
		delete(r.pending, tag)
		r.mu.Unlock()
		metrics.WaiterMatches.Inc()
		return tap, nil
	}

	w := &waiter{
		sessionID: sessionID,
		resolved:  make(chan models.TapEvent, 1),
		cancelled: make(chan error, 1),
	}
	r.waiters = append(r.waiters, w)
	r.mu.Unlock()

	metrics.WaitersActive.Inc()
	defer metrics.WaitersActive.Dec()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case tap := <-w.resolved:
		return tap, nil

	case err := <-w.cancelled:
		return models.TapEvent{}, err

	case <-timer.C:
		r.mu.Lock()
		if w.done {
			// Resolved or cancelled a moment before the timer fired; the
			// committed outcome wins.
			r.mu.Unlock()
			select {
			case tap := <-w.resolved:
				return tap, nil
			case err := <-w.cancelled:
				return models.TapEvent{}, err
			}
		}
		w.done = true
		r.removeWaiterLocked(w)
		r.mu.Unlock()
		metrics.WaiterTimeouts.Inc()
		return models.TapEvent{}, ErrWaitTimeout

	case <-ctx.Done():
		r.mu.Lock()
		if w.done {
			r.mu.Unlock()
			select {
			case tap := <-w.resolved:
				return tap, nil
			case err := <-w.cancelled:
				return models.TapEvent{}, err
			}
		}
		w.done = true
		r.removeWaiterLocked(w)
		r.mu.Unlock()
		return models.TapEvent{}, errors.Join(ErrWaitCancelled, ctx.Err())
	}
}

// CancelWait removes the session's waiter without resolving it. Calling it
// for an unknown, already-resolved or already-cancelled session is a
// no-op.
func (r *Registry) CancelWait(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.waiters {
		if w.sessionID == sessionID && !w.done {
			w.done = true
			w.cancelled <- ErrWaitCancelled
			r.removeWaiterLocked(w)
			return
		}
	}
}

// popWaiterLocked removes and returns the earliest live waiter, marking it
// done. Returns nil when no live waiter exists.
func (r *Registry) popWaiterLocked() *waiter {
	for len(r.waiters) > 0 {
		w := r.waiters[0]
		r.waiters = r.waiters[1:]
		if !w.done {
			w.done = true
			return w
		}
	}
	return nil
}

func (r *Registry) removeWaiterLocked(target *waiter) {
	for i, w := range r.waiters {
		if w == target {
			r.waiters = append(r.waiters[:i], r.waiters[i+1:]...)
			return
		}
	}
}

// Sweep discards expired pending taps. The per-tap timers normally handle
// expiry; the sweep covers timers lost to clock adjustment and keeps the
// map bounded if timers misfire.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for tag, entry := range r.pending {
		if !entry.expiresAt.After(now) {
			entry.timer.Stop()
			delete(r.pending, tag)
			metrics.TapsExpired.Inc()
			removed++
		}
	}
	return removed
}

// Shutdown drains all waiters with ErrShuttingDown and rejects further
// registration. Idempotent.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return
	}
	r.shutdown = true

	for _, w := range r.waiters {
		if !w.done {
			w.done = true
			w.cancelled <- ErrShuttingDown
		}
	}
	r.waiters = nil

	for tag, entry := range r.pending {
		entry.timer.Stop()
		delete(r.pending, tag)
	}
}

// PendingCount reports the number of buffered taps. Test and health helper.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// WaiterCount reports the number of live waiters. Test and health helper.
func (r *Registry) WaiterCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, w := range r.waiters {
		if !w.done {
			n++
		}
	}
	return n
}
