package protocol

import (
	"log/slog"
	"time"

	"github.com/edgerpc/mqttrpc/protocol/hlc"
	"github.com/edgerpc/mqttrpc/protocol/internal"
)

type (
	// Application represents shared application state: the node's HLC and
	// its logger. Exactly one Application should be created per process and
	// shared across every command invoker and executor it hosts.
	Application struct {
		hlc *hlc.Global
		log *slog.Logger
	}

	// ApplicationOption represents a single application option.
	ApplicationOption interface{ application(*ApplicationOptions) }

	// ApplicationOptions are the resolved application options.
	ApplicationOptions struct {
		MaxClockDrift time.Duration
		Logger        *slog.Logger
	}

	// WithMaxClockDrift specifies how long a peer's HLC is allowed to drift
	// from this node's wall clock before it is rejected (spec.md §4.1).
	WithMaxClockDrift time.Duration
)

// NewApplication creates new shared application state. Only one of these
// should be created per application.
func NewApplication(opt ...ApplicationOption) (*Application, error) {
	var opts ApplicationOptions
	opts.Apply(opt)

	return &Application{
		hlc: hlc.New(hlc.Options{MaxClockDrift: opts.MaxClockDrift}),
		log: opts.Logger,
	}, nil
}

// GetHLC syncs the application HLC instance to the current time and returns
// it, to be stamped on an outgoing request or response.
func (a *Application) GetHLC() (hlc.HybridLogicalClock, error) {
	return a.hlc.Get()
}

// SetHLC synchronizes the application HLC instance against a received HLC.
func (a *Application) SetHLC(val hlc.HybridLogicalClock) error {
	return a.hlc.Update(val)
}

// Apply resolves the provided list of options.
func (o *ApplicationOptions) Apply(
	opts []ApplicationOption,
	rest ...ApplicationOption,
) {
	for opt := range internal.Apply[ApplicationOption](opts, rest...) {
		opt.application(o)
	}
}

func (o *ApplicationOptions) application(opt *ApplicationOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithMaxClockDrift) application(opt *ApplicationOptions) {
	opt.MaxClockDrift = time.Duration(o)
}
