// Package sink publishes dispatched events to downstream transports.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/metrics"
)

// Sink delivers one encoded event to a topic.
type Sink interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
	Close() error
}

// Factory creates a Sink from configuration.
type Factory func(conf config.SinkConf) (Sink, error)

var (
	factories = make(map[string]Factory)
	factoryMu sync.RWMutex
)

// Register registers a sink factory for a kind.
func Register(kind string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[kind] = f
}

// Kinds returns the registered sink kinds, sorted.
func Kinds() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New creates the sink selected by conf.Kind. Publishes through it are
// counted per kind and status.
func New(conf config.SinkConf) (Sink, error) {
	factoryMu.RLock()
	f, ok := factories[conf.Kind]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown sink kind: %s", conf.Kind)
	}
	s, err := f(conf)
	if err != nil {
		return nil, err
	}
	return &instrumented{kind: conf.Kind, Sink: s}, nil
}

type instrumented struct {
	kind string
	Sink
}

func (i *instrumented) Publish(ctx context.Context, topic, key string, value []byte) error {
	err := i.Sink.Publish(ctx, topic, key, value)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.SinkPublishes.WithLabelValues(i.kind, status).Inc()
	return err
}

// Emit encodes ev as JSON and publishes it to prefix + the metadata index,
// keyed by the event id.
func Emit(ctx context.Context, s Sink, prefix string, ev event.Event, md event.Metadata) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID(), err)
	}
	return s.Publish(ctx, prefix+md.Index(), ev.ID(), value)
}
