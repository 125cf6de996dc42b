package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/query"
)

// Elastic searches an Elasticsearch-compatible cluster over its REST API.
// Servers are tried in turn starting after the last one that failed.
type Elastic struct {
	servers []string
	client  *http.Client
	next    atomic.Uint32
}

// NewElastic returns a backend for the given server URLs.
func NewElastic(servers []string, timeout time.Duration) (*Elastic, error) {
	if len(servers) == 0 {
		return nil, errors.New("search: at least one server is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	trimmed := make([]string, len(servers))
	for i, s := range servers {
		trimmed[i] = strings.TrimRight(strings.TrimSpace(s), "/")
	}
	return &Elastic{servers: trimmed, client: &http.Client{Timeout: timeout}}, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Index  string          `json:"_index"`
			ID     string          `json:"_id"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search posts filter to /{index}/_search.
func (e *Elastic) Search(ctx context.Context, index string, filter query.Clause, size int) ([]Hit, error) {
	body, err := json.Marshal(query.Request(filter, size))
	if err != nil {
		return nil, fmt.Errorf("search: encode request: %w", err)
	}
	start := int(e.next.Load())
	var lastErr error
	for i := range e.servers {
		idx := (start + i) % len(e.servers)
		hits, err := e.searchOne(ctx, e.servers[idx], index, body)
		if err == nil {
			return hits, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("server", e.servers[idx]).Msg("search server failed")
		e.next.Store(uint32(idx + 1))
		lastErr = err
	}
	return nil, lastErr
}

func (e *Elastic) searchOne(ctx context.Context, server, index string, body []byte) ([]Hit, error) {
	url := fmt.Sprintf("%s/%s/_search", server, index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search %s: status %d: %s", url, resp.StatusCode, bytes.TrimSpace(msg))
	}
	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("search %s: decode response: %w", url, err)
	}
	hits := make([]Hit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		src, err := event.Decode(h.Source)
		if err != nil {
			return nil, fmt.Errorf("search %s: hit %s: %w", url, h.ID, err)
		}
		hits = append(hits, Hit{Index: h.Index, ID: h.ID, Source: src})
	}
	return hits, nil
}
