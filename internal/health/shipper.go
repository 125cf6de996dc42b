// Package health copies the front-end health records the pipeline writes to
// the search index into the document store read by the dashboard.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/metrics"
	"github.com/gyaneshwarpardhi/mqworker/internal/query"
	"github.com/gyaneshwarpardhi/mqworker/internal/search"
)

const (
	// MaxHits bounds the records fetched per run.
	MaxHits = 1000

	forbiddenKeyChar = "."
)

// Store receives health records.
type Store interface {
	Insert(ctx context.Context, docs []map[string]interface{}) error
}

// Shipper moves health records from a search backend to a Store.
type Shipper struct {
	backend search.Backend
	store   Store
	conf    config.HealthConf
	now     func() time.Time
}

// NewShipper builds a shipper. Zero window, interval and index fall back to
// one minute, one minute and "events".
func NewShipper(backend search.Backend, store Store, conf config.HealthConf) *Shipper {
	if conf.Window <= 0 {
		conf.Window = time.Minute
	}
	if conf.Interval <= 0 {
		conf.Interval = time.Minute
	}
	if conf.Index == "" {
		conf.Index = event.DefaultIndex
	}
	return &Shipper{backend: backend, store: store, conf: conf, now: time.Now}
}

// Filter selects the health records written in the window ending at now.
func Filter(now time.Time, window time.Duration) (query.Predicate, error) {
	r, err := query.NewRangeMatch("utctimestamp", now.Add(-window).UTC(), now.UTC())
	if err != nil {
		return nil, err
	}
	return query.NewAnd(r, query.MustTerm("_type", "mozdefhealth"), query.MustTerm("category", "mozdef"))
}

// RunOnce ships one window of records and returns how many were stored.
func (s *Shipper) RunOnce(ctx context.Context) (int, error) {
	p, err := Filter(s.now(), s.conf.Window)
	if err != nil {
		return 0, err
	}
	hits, err := s.backend.Search(ctx, s.conf.Index, query.Compile(p), MaxHits)
	if err != nil {
		return 0, fmt.Errorf("health: search: %w", err)
	}
	if len(hits) == 0 {
		return 0, nil
	}
	docs := make([]map[string]interface{}, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, Sanitize(h.Source))
	}
	if err := s.store.Insert(ctx, docs); err != nil {
		return 0, fmt.Errorf("health: store: %w", err)
	}
	return len(docs), nil
}

// Run ships on every interval tick until ctx is done. Run errors are logged
// and the next tick proceeds.
func (s *Shipper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.conf.Interval)
	defer ticker.Stop()
	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Shipper) tick(ctx context.Context) {
	n, err := s.RunOnce(ctx)
	if err != nil {
		metrics.HealthRuns.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("sending health to store failed")
		return
	}
	metrics.HealthRuns.WithLabelValues("ok").Inc()
	metrics.HealthRecordsShipped.Add(float64(n))
	log.Debug().Int("records", n).Msg("health shipped")
}

// Sanitize copies src, dropping keys of details that contain '.', and turns
// decoded JSON numbers into int64 or float64.
func Sanitize(src event.Event) map[string]interface{} {
	doc := plainValue(map[string]interface{}(src.Clone())).(map[string]interface{})
	if details, ok := doc["details"].(map[string]interface{}); ok {
		for k := range details {
			if strings.Contains(k, forbiddenKeyChar) {
				delete(details, k)
			}
		}
	}
	return doc
}

func plainValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, inner := range t {
			t[k] = plainValue(inner)
		}
		return t
	case event.Event:
		return plainValue(map[string]interface{}(t))
	case []interface{}:
		for i, inner := range t {
			t[i] = plainValue(inner)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	return v
}
