// Package hlc implements the Hybrid Logical Clock used to stamp every
// request and response with a monotonic, causally-ordered timestamp
// (spec.md §4.1).
package hlc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/edgerpc/mqttrpc/internal/wallclock"
	"github.com/edgerpc/mqttrpc/protocol/errors"
	"github.com/google/uuid"
)

type (
	// HybridLogicalClock combines a physical and a logical clock to track
	// causally-ordered timestamps across a distributed system.
	HybridLogicalClock struct {
		timestamp time.Time
		counter   uint64
		nodeID    string
		opt       *Options
	}

	// Global provides a shared, mutex-protected HLC instance. Exactly one of
	// these should be created per application.
	Global struct {
		hlc HybridLogicalClock
		mu  sync.Mutex
		opt Options
	}

	// Options configure a Global HLC instance.
	Options struct {
		// MaxClockDrift bounds how far a received HLC's wall time may exceed
		// this node's wall clock before it is rejected as invalid state.
		MaxClockDrift time.Duration
	}
)

// DefaultMaxClockDrift is applied when Options.MaxClockDrift is zero.
const DefaultMaxClockDrift = time.Minute

// New creates a new shared HLC instance. Exactly one of these should
// typically be created per application.
func New(opt Options) *Global {
	g := &Global{opt: opt}
	if g.opt.MaxClockDrift == 0 {
		g.opt.MaxClockDrift = DefaultMaxClockDrift
	}

	g.hlc = HybridLogicalClock{
		timestamp: now(),
		nodeID:    uuid.Must(uuid.NewV7()).String(),
		opt:       &g.opt,
	}

	return g
}

// Get advances the shared HLC instance to the current time and returns it.
func (g *Global) Get() (HybridLogicalClock, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var err error
	g.hlc, err = g.hlc.Update(HybridLogicalClock{})
	if err != nil {
		return HybridLogicalClock{}, err
	}
	return g.hlc, nil
}

// Update synchronizes the shared HLC instance against a received HLC.
func (g *Global) Update(received HybridLogicalClock) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var err error
	g.hlc, err = g.hlc.Update(received)
	return err
}

// Parse decodes an HLC from its wire string representation
// "<wall_ms>:<counter>:<node_id>". The drift check against this node's wall
// clock is deferred to Update, so Parse needs no Global to call.
func Parse(headerName, value string) (HybridLogicalClock, error) {
	parts := strings.SplitN(value, ":", 3)
	if len(parts) != 3 {
		return HybridLogicalClock{}, &errors.Error{
			Message:     "HLC must contain three segments separated by ':'",
			Kind:        errors.HeaderInvalid,
			HeaderName:  headerName,
			HeaderValue: value,
		}
	}

	wallMs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return HybridLogicalClock{}, &errors.Error{
			Message:     "first HLC segment is not a valid integer",
			Kind:        errors.HeaderInvalid,
			HeaderName:  headerName,
			HeaderValue: value,
		}
	}

	counter, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return HybridLogicalClock{}, &errors.Error{
			Message:     "second HLC segment is not a valid integer",
			Kind:        errors.HeaderInvalid,
			HeaderName:  headerName,
			HeaderValue: value,
		}
	}

	return HybridLogicalClock{
		timestamp: time.UnixMilli(wallMs).UTC(),
		counter:   counter,
		nodeID:    parts[2],
	}, nil
}

// UTC returns the physical clock component of the HLC in UTC.
func (hlc HybridLogicalClock) UTC() time.Time {
	return hlc.timestamp
}

// Update computes the component-wise max of this HLC and another, advancing
// the counter on a tie, and returns the result. A zero-value other behaves as
// if it were the wall clock.
func (hlc HybridLogicalClock) Update(
	other HybridLogicalClock,
) (HybridLogicalClock, error) {
	if other.nodeID == hlc.nodeID {
		return hlc, nil
	}

	wall := now()

	// A parsed HLC carries no options of its own; check it against this
	// node's configured drift bound.
	if other.opt == nil {
		other.opt = hlc.opt
	}

	// Validate both timestamps before updating. Since the update always
	// chooses the later of the two, this also validates the final result.
	if err := hlc.validate(wall); err != nil {
		return HybridLogicalClock{}, err
	}
	if err := other.validate(wall); err != nil {
		return HybridLogicalClock{}, err
	}

	updated := HybridLogicalClock{nodeID: hlc.nodeID, opt: hlc.opt}
	switch {
	case wall.After(hlc.timestamp) && wall.After(other.timestamp):
		updated.timestamp = wall
		updated.counter = 0

	case hlc.timestamp.Equal(other.timestamp):
		updated.timestamp = hlc.timestamp
		updated.counter = max(hlc.counter, other.counter) + 1

	case hlc.timestamp.After(other.timestamp):
		updated.timestamp = hlc.timestamp
		updated.counter = hlc.counter + 1

	default:
		updated.timestamp = other.timestamp
		updated.counter = other.counter + 1
	}

	return updated, nil
}

// Compare returns -1, 0, or 1 as this HLC is before, equal to, or after other.
func (hlc HybridLogicalClock) Compare(other HybridLogicalClock) int {
	if hlc.timestamp.Equal(other.timestamp) {
		switch {
		case hlc.counter > other.counter:
			return 1
		case hlc.counter < other.counter:
			return -1
		default:
			return strings.Compare(hlc.nodeID, other.nodeID)
		}
	}
	return hlc.timestamp.Compare(other.timestamp)
}

// IsZero returns whether this HLC matches its zero value.
func (hlc HybridLogicalClock) IsZero() bool {
	return hlc.timestamp.IsZero()
}

// String renders the wire representation "<wall_ms>:<counter>:<node_id>".
func (hlc HybridLogicalClock) String() string {
	return fmt.Sprintf("%d:%d:%s", hlc.timestamp.UnixMilli(), hlc.counter, hlc.nodeID)
}

func (hlc HybridLogicalClock) validate(wall time.Time) error {
	opt := hlc.opt
	if opt == nil {
		opt = &Options{MaxClockDrift: DefaultMaxClockDrift}
	}

	switch {
	case hlc.counter == math.MaxUint64:
		return &errors.Error{
			Message:      "integer overflow in HLC counter",
			Kind:         errors.InternalLogicError,
			PropertyName: "Counter",
		}

	case hlc.timestamp.Sub(wall) > opt.MaxClockDrift:
		return &errors.Error{
			Message:      "clock drift exceeds maximum",
			Kind:         errors.StateInvalid,
			PropertyName: "MaxClockDrift",
		}

	default:
		return nil
	}
}

// Get the current wall time truncated to millisecond precision, the
// resolution carried on the wire.
func now() time.Time {
	return wallclock.Instance.Now().UTC().Truncate(time.Millisecond)
}
