// Package dispatch runs an event through the plugins its registry snapshot
// plans for it, one plugin at a time, isolating every plugin failure.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/metrics"
	"github.com/gyaneshwarpardhi/mqworker/internal/plugin"
)

// DefaultPluginTimeout bounds a single handler call when none is configured.
const DefaultPluginTimeout = 2 * time.Second

var (
	// ErrPluginTimeout is the cause recorded when a handler overruns its budget.
	ErrPluginTimeout = errors.New("dispatch: plugin timed out")
	// ErrPluginPanic is the cause recorded when a handler panics.
	ErrPluginPanic = errors.New("dispatch: plugin panicked")
	// ErrNilResult is the cause recorded when a handler returns no event or metadata.
	ErrNilResult = errors.New("dispatch: plugin returned nil event or metadata")
)

// ExecutionError describes one failed plugin run for one event.
type ExecutionError struct {
	Plugin  string
	EventID string
	Cause   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("plugin %s failed on event %q: %v", e.Plugin, e.EventID, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// State is a position in an event's dispatch.
type State int

const (
	StatePending State = iota
	StateRunning
	StateErrored
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateErrored:
		return "errored"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name in JSON output.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Step records the outcome of one planned plugin.
type Step struct {
	Plugin   string        `json:"plugin"`
	State    State         `json:"state"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// Result is the outcome of dispatching a single event.
type Result struct {
	EventID    string            `json:"event_id"`
	Event      event.Event       `json:"event"`
	Metadata   event.Metadata    `json:"metadata"`
	State      State             `json:"state"`
	Steps      []Step            `json:"steps"`
	Failures   []*ExecutionError `json:"-"`
	Generation uint64            `json:"registry_generation"`
	DurationMs float64           `json:"duration_ms"`
}

// Dispatcher runs plugin plans. It holds no per-event state and is safe for
// concurrent use by many workers.
type Dispatcher struct {
	registry *plugin.Registry
	timeout  time.Duration
}

// New returns a dispatcher reading plans from reg. A non-positive
// pluginTimeout selects DefaultPluginTimeout.
func New(reg *plugin.Registry, pluginTimeout time.Duration) *Dispatcher {
	if pluginTimeout <= 0 {
		pluginTimeout = DefaultPluginTimeout
	}
	return &Dispatcher{registry: reg, timeout: pluginTimeout}
}

// Registry returns the registry plans are read from.
func (d *Dispatcher) Registry() *plugin.Registry { return d.registry }

// Dispatch runs ev through its plan with fresh metadata.
func (d *Dispatcher) Dispatch(ctx context.Context, ev event.Event) *Result {
	return d.DispatchWithMetadata(ctx, ev, event.NewMetadata())
}

// DispatchWithMetadata runs ev through its plan starting from md.
//
// The registry snapshot is loaded once, so a concurrent swap never changes
// the plan of an event already in flight. Each plugin works on private
// copies; its changes are kept only when it returns without error inside its
// timeout. The event is never dropped and no plugin is retried.
func (d *Dispatcher) DispatchWithMetadata(ctx context.Context, ev event.Event, md event.Metadata) *Result {
	start := time.Now()
	snap := d.registry.Current()
	if ev == nil {
		ev = event.Event{}
	}
	if md == nil {
		md = event.NewMetadata()
	}
	res := &Result{
		EventID:    ev.ID(),
		State:      StatePending,
		Generation: snap.Generation(),
	}

	plan := snap.PlanFor(ev)
	res.Steps = make([]Step, 0, len(plan))
	for _, desc := range plan {
		res.State = StateRunning
		stepStart := time.Now()
		out, outMD, err := d.invoke(ctx, desc, ev.Clone(), md.Clone())
		step := Step{Plugin: desc.Name, Duration: time.Since(stepStart)}
		if err != nil {
			res.State = StateErrored
			step.State = StateErrored
			step.Error = err.Error()
			xerr := &ExecutionError{Plugin: desc.Name, EventID: res.EventID, Cause: err}
			res.Failures = append(res.Failures, xerr)
			metrics.PluginExecutions.WithLabelValues(desc.Name, "error").Inc()
			log.Error().
				Err(err).
				Str("plugin", desc.Name).
				Str("event_id", res.EventID).
				Str("state", StateErrored.String()).
				Msg("plugin failed, rolled back")
		} else {
			ev, md = out, outMD
			md.AppendPlugin(desc.Name)
			step.State = StateDone
			metrics.PluginExecutions.WithLabelValues(desc.Name, "success").Inc()
		}
		res.Steps = append(res.Steps, step)
	}

	res.State = StateDone
	res.Event = ev
	res.Metadata = md
	elapsed := time.Since(start)
	res.DurationMs = float64(elapsed.Microseconds()) / 1000
	metrics.EventsDispatched.Inc()
	metrics.DispatchDuration.Observe(res.DurationMs)
	return res
}

type outcome struct {
	ev  event.Event
	md  event.Metadata
	err error
}

// invoke calls the handler in its own goroutine so a timeout or panic cannot
// stall the chain. An overrunning handler keeps its private copies and its
// late result is discarded.
func (d *Dispatcher) invoke(ctx context.Context, desc *plugin.Descriptor, ev event.Event, md event.Metadata) (event.Event, event.Metadata, error) {
	pctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrPluginPanic, r)}
			}
		}()
		out, outMD, err := desc.Plugin.Handle(pctx, ev, md)
		done <- outcome{ev: out, md: outMD, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return nil, nil, o.err
		}
		if o.ev == nil || o.md == nil {
			return nil, nil, ErrNilResult
		}
		return o.ev, o.md, nil
	case <-pctx.Done():
		if errors.Is(pctx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w after %v", ErrPluginTimeout, d.timeout)
		}
		return nil, nil, pctx.Err()
	}
}
