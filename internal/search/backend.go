// Package search is the boundary to the remote search index that stores events.
package search

import (
	"context"
	"errors"

	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/query"
)

// ErrUnsupportedClause is returned for clause kinds a backend cannot evaluate.
var ErrUnsupportedClause = errors.New("search: unsupported clause")

// Hit is one stored document returned by a search.
type Hit struct {
	Index  string      `json:"_index"`
	ID     string      `json:"_id"`
	Source event.Event `json:"_source"`
}

// Backend runs compiled filter clauses against stored events.
type Backend interface {
	Search(ctx context.Context, index string, filter query.Clause, size int) ([]Hit, error)
}
