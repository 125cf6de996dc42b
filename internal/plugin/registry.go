package plugin

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/metrics"
	"github.com/gyaneshwarpardhi/mqworker/internal/query"
)

// DefaultDesignatedField is the field token criteria are compared against.
const DefaultDesignatedField = "details.program"

// Option adjusts a single registration.
type Option func(*Descriptor)

// WithPriority overrides the plugin's own priority.
func WithPriority(prio int) Option {
	return func(d *Descriptor) { d.Priority = prio }
}

// WithCriteria overrides the plugin's own criteria.
func WithCriteria(c Criteria) Option {
	return func(d *Descriptor) { d.Criteria = c }
}

// Builder collects registrations for one snapshot. It is not safe for
// concurrent use.
type Builder struct {
	designated event.Path
	descs      []*Descriptor
	names      map[string]struct{}
}

// NewBuilder returns a builder whose token criteria look at designatedField
// (DefaultDesignatedField when empty).
func NewBuilder(designatedField string) (*Builder, error) {
	if designatedField == "" {
		designatedField = DefaultDesignatedField
	}
	p, err := event.ParsePath(designatedField)
	if err != nil {
		return nil, fmt.Errorf("%w: designated field: %v", ErrInvalidDescriptor, err)
	}
	return &Builder{designated: p, names: make(map[string]struct{})}, nil
}

// Register validates p and appends it to the registration order.
func (b *Builder) Register(p Plugin, opts ...Option) error {
	if p == nil {
		return fmt.Errorf("%w: nil plugin", ErrInvalidDescriptor)
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDescriptor)
	}
	if _, dup := b.names[name]; dup {
		return fmt.Errorf("%w: duplicate name %q", ErrInvalidDescriptor, name)
	}
	d := &Descriptor{Name: name, Priority: DefaultPriority, Criteria: p.Criteria(), Plugin: p}
	if prio, ok := p.Priority(); ok {
		d.Priority = prio
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.Priority < 0 {
		return fmt.Errorf("%w: %s: priority %d must not be negative", ErrInvalidDescriptor, name, d.Priority)
	}
	if err := d.Criteria.validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDescriptor, name, err)
	}
	if d.Criteria.isTokens {
		d.tokenSet = make(map[string]struct{}, len(d.Criteria.tokens))
		for _, tok := range d.Criteria.tokens {
			d.tokenSet[tok] = struct{}{}
		}
	} else {
		d.literals = query.RequiredLiterals(d.Criteria.predicate)
	}
	d.seq = len(b.descs)
	b.descs = append(b.descs, d)
	b.names[name] = struct{}{}
	return nil
}

// Build returns an immutable snapshot ordered by ascending priority, ties
// broken by registration order. The builder may keep registering afterwards.
func (b *Builder) Build() *Snapshot {
	plans := make([]*Descriptor, len(b.descs))
	copy(plans, b.descs)
	sort.SliceStable(plans, func(i, j int) bool {
		return plans[i].Priority < plans[j].Priority
	})
	return &Snapshot{
		plans:      plans,
		designated: b.designated,
		filter:     newLiteralPrefilter(plans),
		builtAt:    time.Now(),
	}
}

// Snapshot is an ordered, read-only plugin list shared by dispatches.
type Snapshot struct {
	plans      []*Descriptor
	designated event.Path
	filter     *literalPrefilter
	builtAt    time.Time
	generation uint64
}

// Empty returns a snapshot with no plugins.
func Empty() *Snapshot {
	b, _ := NewBuilder("")
	return b.Build()
}

// Len returns the number of registered plugins.
func (s *Snapshot) Len() int { return len(s.plans) }

// Generation is the number of the swap that published s (0 if never published).
func (s *Snapshot) Generation() uint64 { return s.generation }

// BuiltAt returns when s was built.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// DesignatedField returns the field token criteria are compared against.
func (s *Snapshot) DesignatedField() string { return s.designated.String() }

// Descriptors returns every descriptor in dispatch order.
func (s *Snapshot) Descriptors() []*Descriptor {
	return append([]*Descriptor(nil), s.plans...)
}

// PlanFor returns the descriptors whose criteria match ev, in dispatch order.
func (s *Snapshot) PlanFor(ev event.Event) []*Descriptor {
	return s.planFor(ev, true)
}

func (s *Snapshot) planFor(ev event.Event, prefilter bool) []*Descriptor {
	var may []bool
	if prefilter {
		may = s.filter.candidates(ev)
	}
	var out []*Descriptor
	for pos, d := range s.plans {
		if may != nil && !may[pos] {
			metrics.PrefilterSkips.Inc()
			continue
		}
		if d.matches(s.designated, ev) {
			out = append(out, d)
		}
	}
	return out
}

// Registry publishes snapshots to concurrent readers. Readers never lock;
// rebuilds are serialized.
type Registry struct {
	mu         sync.Mutex
	current    atomic.Pointer[Snapshot]
	generation uint64
}

// NewRegistry publishes initial (an empty snapshot when nil).
func NewRegistry(initial *Snapshot) *Registry {
	r := &Registry{}
	if initial == nil {
		initial = Empty()
	}
	r.mu.Lock()
	r.publish(initial)
	r.mu.Unlock()
	return r
}

// Current returns the snapshot in effect. Callers keep using it for the whole
// dispatch even if a swap happens meanwhile.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Swap publishes s and returns the previous snapshot.
func (r *Registry) Swap(s *Snapshot) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publish(s)
}

// Rebuild runs build under the rebuild lock and publishes its result. On
// error the current snapshot stays in effect.
func (r *Registry) Rebuild(build func() (*Snapshot, error)) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, err := build()
	if err != nil {
		return nil, err
	}
	r.publish(s)
	return r.current.Load(), nil
}

// publish requires r.mu.
func (r *Registry) publish(s *Snapshot) *Snapshot {
	r.generation++
	// Snapshots are immutable once published; a rebuilt value is a fresh copy.
	pub := *s
	pub.generation = r.generation
	metrics.SnapshotSwaps.Inc()
	return r.current.Swap(&pub)
}
