package protocol

import (
	"time"

	"github.com/edgerpc/mqttrpc/internal/wallclock"
	"github.com/edgerpc/mqttrpc/protocol/iso"
)

type (
	// ExecutorSnapshot is a point-in-time view of a command executor's
	// internal state, for operational tooling (spec.md §12).
	ExecutorSnapshot struct {
		// Observed is when this snapshot was taken.
		Observed iso.DateTime `json:"observed"`

		// InFlight is the number of requests currently being handled;
		// requests still waiting for a concurrency slot are not counted.
		InFlight int32 `json:"inFlight"`

		// CacheEntries is the number of correlation ids currently retained by
		// the response cache, in flight or completed.
		CacheEntries int `json:"cacheEntries"`

		// Idempotent reports whether this command was configured as
		// idempotent.
		Idempotent bool `json:"idempotent"`
	}

	// InvokerSnapshot is a point-in-time view of a command invoker's
	// internal state, for operational tooling (spec.md §12).
	InvokerSnapshot struct {
		// Observed is when this snapshot was taken.
		Observed iso.DateTime `json:"observed"`

		// PendingCount is the number of invocations currently awaiting a
		// response.
		PendingCount int `json:"pendingCount"`

		// OldestPending is when the longest-outstanding pending invocation
		// was sent, or nil if none are outstanding.
		OldestPending *iso.DateTime `json:"oldestPending,omitempty"`
	}
)

// Snapshot reports the executor's current cache size and in-flight request
// count.
func (ce *CommandExecutor[Req, Res]) Snapshot() ExecutorSnapshot {
	return ExecutorSnapshot{
		Observed:     iso.DateTime(wallclock.Instance.Now().UTC()),
		InFlight:     ce.listener.count(),
		CacheEntries: ce.cache.Len(),
		Idempotent:   ce.idempotent,
	}
}

// Snapshot reports the invoker's current pending-invocation count and the
// time its oldest outstanding invocation was sent.
func (ci *CommandInvoker[Req, Res]) Snapshot() InvokerSnapshot {
	snap := InvokerSnapshot{Observed: iso.DateTime(wallclock.Instance.Now().UTC())}

	var oldest time.Time
	ci.pending.Range(func(_ string, p commandPending[Res]) bool {
		snap.PendingCount++
		if oldest.IsZero() || p.since.Before(oldest) {
			oldest = p.since
		}
		return true
	})

	if !oldest.IsZero() {
		t := iso.DateTime(oldest)
		snap.OldestPending = &t
	}

	return snap
}
