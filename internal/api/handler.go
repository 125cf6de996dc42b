package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/gyaneshwarpardhi/mqworker/internal/dispatch"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/metrics"
	"github.com/gyaneshwarpardhi/mqworker/internal/plugin"
	"github.com/gyaneshwarpardhi/mqworker/internal/query"
	"github.com/gyaneshwarpardhi/mqworker/internal/sink"
)

const (
	maxBatchSize = 100
	maxBodyBytes = 1 << 20
)

// ReloadFunc rebuilds and publishes the plugin snapshot.
type ReloadFunc func() (*plugin.Snapshot, error)

// Options are the handler dependencies. Reload and Sink are optional.
type Options struct {
	Pool        *dispatch.Pool
	Reload      ReloadFunc
	Sink        sink.Sink
	TopicPrefix string
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	opts Options
	mux  *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(opts Options) http.Handler {
	h := &Handler{opts: opts, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/events", h.dispatchEvent)
	h.mux.HandleFunc("POST /v1/events/batch", h.dispatchBatch)
	h.mux.HandleFunc("POST /v1/plan", h.plan)
	h.mux.HandleFunc("POST /v1/query/compile", h.compileQuery)
	h.mux.HandleFunc("GET /v1/plugins", h.listPlugins)
	h.mux.HandleFunc("POST /v1/plugins/reload", h.reloadPlugins)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

func readEvent(r *http.Request) (event.Event, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return event.Decode(body)
}

// POST /v1/events: dispatch one event and wait for the result.
func (h *Handler) dispatchEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := readEvent(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid event: %s", err))
		return
	}
	ev.EnsureID()
	metrics.EventsReceived.WithLabelValues("api").Inc()

	res, err := h.opts.Pool.ProcessSync(r.Context(), ev, nil)
	switch {
	case errors.Is(err, dispatch.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	case errors.Is(err, dispatch.ErrPoolClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusGatewayTimeout, err.Error())
		return
	}
	h.emit(r.Context(), res)
	writeJSON(w, http.StatusOK, res)
}

// POST /v1/events/batch: enqueue up to maxBatchSize events.
func (h *Handler) dispatchBatch(w http.ResponseWriter, r *http.Request) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if len(raw) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(raw), maxBatchSize))
		return
	}
	events := make([]event.Event, 0, len(raw))
	for i, msg := range raw {
		ev, err := event.Decode(msg)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("event %d: %s", i, err))
			return
		}
		ev.EnsureID()
		events = append(events, ev)
	}

	ids := make([]string, 0, len(events))
	queued := 0
	for _, ev := range events {
		metrics.EventsReceived.WithLabelValues("api").Inc()
		// The request context ends with the response; results outlive it.
		if h.opts.Pool.ProcessAsync(ev, nil, func(res *dispatch.Result) { h.emit(context.Background(), res) }) {
			queued++
			ids = append(ids, ev.ID())
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":    uuid.New().String(),
		"total":     len(events),
		"queued":    queued,
		"rejected":  len(events) - queued,
		"event_ids": ids,
	})
}

func (h *Handler) emit(ctx context.Context, res *dispatch.Result) {
	if h.opts.Sink == nil {
		return
	}
	if err := sink.Emit(ctx, h.opts.Sink, h.opts.TopicPrefix, res.Event, res.Metadata); err != nil {
		log.Error().Err(err).Str("event_id", res.EventID).Msg("sink publish failed")
	}
}

// POST /v1/plan: the plugins an event would run through, without running them.
func (h *Handler) plan(w http.ResponseWriter, r *http.Request) {
	ev, err := readEvent(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid event: %s", err))
		return
	}
	snap := h.opts.Pool.Dispatcher().Registry().Current()
	names := []string{}
	for _, d := range snap.PlanFor(ev) {
		names = append(names, d.Name)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"plan":                names,
		"registry_generation": snap.Generation(),
	})
}

type compileRequest struct {
	Query string          `json:"query"`
	Event json.RawMessage `json:"event,omitempty"`
	Size  int             `json:"size,omitempty"`
}

// POST /v1/query/compile: parse a query, return its search request and
// optionally evaluate it against an event.
func (h *Handler) compileQuery(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	p, err := query.Parse(req.Query)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	size := req.Size
	if size <= 0 {
		size = 10
	}
	out := map[string]interface{}{
		"predicate": p.String(),
		"request":   query.Request(query.Compile(p), size),
		"literals":  query.RequiredLiterals(p),
	}
	if len(req.Event) > 0 {
		ev, err := event.Decode(req.Event)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid event: %s", err))
			return
		}
		out["matches"] = query.Matches(p, ev)
	}
	writeJSON(w, http.StatusOK, out)
}

type pluginView struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Criteria string `json:"criteria"`
}

func snapshotView(snap *plugin.Snapshot) map[string]interface{} {
	plugins := make([]pluginView, 0, snap.Len())
	for _, d := range snap.Descriptors() {
		plugins = append(plugins, pluginView{Name: d.Name, Priority: d.Priority, Criteria: d.Criteria.String()})
	}
	return map[string]interface{}{
		"registry_generation": snap.Generation(),
		"built_at":            snap.BuiltAt(),
		"designated_field":    snap.DesignatedField(),
		"plugins":             plugins,
	}
}

// GET /v1/plugins: the registered plugins in dispatch order.
func (h *Handler) listPlugins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshotView(h.opts.Pool.Dispatcher().Registry().Current()))
}

// POST /v1/plugins/reload: rebuild the registry from configuration.
func (h *Handler) reloadPlugins(w http.ResponseWriter, r *http.Request) {
	if h.opts.Reload == nil {
		writeError(w, http.StatusNotImplemented, "reload is not configured")
		return
	}
	snap, err := h.opts.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	out := snapshotView(snap)
	out["reloaded"] = true
	writeJSON(w, http.StatusOK, out)
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the dispatch queue is more than 80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.opts.Pool.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}
