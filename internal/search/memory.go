package search

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/mqworker/internal/analysis"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/query"
)

// MemoryIndex is an in-process search backend. Documents are flattened into
// field path → analyzed values when indexed and clauses are interpreted from
// their JSON form, independently of query.Matches.
//
// Keys that contain '.' or are empty cannot be addressed by a dotted path and
// are not indexed.
type MemoryIndex struct {
	mu      sync.RWMutex
	indices map[string][]*document
}

type document struct {
	id     string
	source event.Event
	fields map[string]*field
}

type field struct {
	values []interface{} // scalar elements
	tokens [][]string    // analyzed per element
}

// NewMemoryIndex returns an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{indices: make(map[string][]*document)}
}

// Index stores a copy of doc under id. An empty id gets a random UUID.
// It returns the id used.
func (m *MemoryIndex) Index(index, id string, doc event.Event) string {
	if id == "" {
		id = uuid.New().String()
	}
	d := &document{id: id, source: doc.Clone(), fields: make(map[string]*field)}
	flatten(d.fields, "", d.source)

	m.mu.Lock()
	defer m.mu.Unlock()
	docs := m.indices[index]
	for i, existing := range docs {
		if existing.id == id {
			docs[i] = d
			return id
		}
	}
	m.indices[index] = append(docs, d)
	return id
}

// Count returns the number of documents in index.
func (m *MemoryIndex) Count(index string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.indices[index])
}

func flatten(into map[string]*field, prefix string, m map[string]interface{}) {
	for k, v := range m {
		if k == "" || strings.Contains(k, ".") {
			continue
		}
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch t := v.(type) {
		case map[string]interface{}:
			flatten(into, path, t)
			continue
		case event.Event:
			flatten(into, path, t)
			continue
		}
		f := &field{}
		for _, el := range analysis.Values(v) {
			s, ok := analysis.Text(el)
			if !ok {
				continue
			}
			f.values = append(f.values, el)
			f.tokens = append(f.tokens, analysis.Tokenize(s))
		}
		if len(f.values) > 0 {
			into[path] = f
		}
	}
}

// Search returns documents of index matching filter in insertion order.
// size <= 0 returns every match.
func (m *MemoryIndex) Search(ctx context.Context, index string, filter query.Clause, size int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var hits []Hit
	for _, d := range m.indices[index] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := evalClause(map[string]interface{}(filter), d)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		hits = append(hits, Hit{Index: index, ID: d.id, Source: d.source.Clone()})
		if size > 0 && len(hits) == size {
			break
		}
	}
	return hits, nil
}

// -----------------------------------------------------------------------
// Clause interpretation
// -----------------------------------------------------------------------

func evalClause(c map[string]interface{}, d *document) (bool, error) {
	if len(c) != 1 {
		return false, fmt.Errorf("%w: clause must have exactly one key, got %d", ErrUnsupportedClause, len(c))
	}
	for kind, body := range c {
		switch kind {
		case "match_all":
			return true, nil
		case "match_none":
			return false, nil
		case "term":
			return evalTerm(body, d)
		case "match_phrase":
			return evalPhrase(body, d)
		case "range":
			return evalRange(body, d)
		case "bool":
			return evalBool(body, d)
		default:
			return false, fmt.Errorf("%w: %q", ErrUnsupportedClause, kind)
		}
	}
	return false, nil
}

func asObject(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case query.Clause:
		return t, true
	}
	return nil, false
}

// singleField unpacks {field: arg}.
func singleField(kind string, body interface{}) (string, interface{}, error) {
	obj, ok := asObject(body)
	if !ok || len(obj) != 1 {
		return "", nil, fmt.Errorf("%w: %s expects a single field", ErrUnsupportedClause, kind)
	}
	for name, arg := range obj {
		return name, arg, nil
	}
	return "", nil, nil
}

func evalTerm(body interface{}, d *document) (bool, error) {
	name, arg, err := singleField("term", body)
	if err != nil {
		return false, err
	}
	if obj, ok := asObject(arg); ok {
		arg = obj["value"]
	}
	text, ok := analysis.Text(arg)
	if !ok {
		return false, fmt.Errorf("%w: term value %T", ErrUnsupportedClause, arg)
	}
	want := analysis.Fold(text)
	f := d.fields[name]
	if f == nil {
		return false, nil
	}
	for _, toks := range f.tokens {
		for _, tok := range toks {
			if tok == want {
				return true, nil
			}
		}
	}
	return false, nil
}

func evalPhrase(body interface{}, d *document) (bool, error) {
	name, arg, err := singleField("match_phrase", body)
	if err != nil {
		return false, err
	}
	if obj, ok := asObject(arg); ok {
		arg = obj["query"]
	}
	s, ok := arg.(string)
	if !ok {
		return false, fmt.Errorf("%w: match_phrase query %T", ErrUnsupportedClause, arg)
	}
	want := analysis.Tokenize(s)
	f := d.fields[name]
	if f == nil || len(want) == 0 {
		return false, nil
	}
	for _, toks := range f.tokens {
		for i := 0; i+len(want) <= len(toks); i++ {
			if equalTokens(toks[i:i+len(want)], want) {
				return true, nil
			}
		}
	}
	return false, nil
}

func equalTokens(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func evalRange(body interface{}, d *document) (bool, error) {
	name, arg, err := singleField("range", body)
	if err != nil {
		return false, err
	}
	bounds, ok := asObject(arg)
	if !ok || len(bounds) == 0 {
		return false, fmt.Errorf("%w: range on %q needs bounds", ErrUnsupportedClause, name)
	}
	kind := analysis.KindNone
	for op, b := range bounds {
		switch op {
		case "gte", "gt", "lte", "lt":
		default:
			return false, fmt.Errorf("%w: range operator %q", ErrUnsupportedClause, op)
		}
		k := analysis.KindOf(b)
		if k == analysis.KindNone || (kind != analysis.KindNone && k != kind) {
			return false, fmt.Errorf("%w: range bound %v", ErrUnsupportedClause, b)
		}
		kind = k
	}
	f := d.fields[name]
	if f == nil {
		return false, nil
	}
	for _, v := range f.values {
		if withinBounds(kind, v, bounds) {
			return true, nil
		}
	}
	return false, nil
}

func withinBounds(kind analysis.Kind, v interface{}, bounds map[string]interface{}) bool {
	for op, b := range bounds {
		c, ok := analysis.Compare(kind, v, b)
		if !ok {
			return false
		}
		switch op {
		case "gte":
			ok = c >= 0
		case "gt":
			ok = c > 0
		case "lte":
			ok = c <= 0
		case "lt":
			ok = c < 0
		}
		if !ok {
			return false
		}
	}
	return true
}

func evalBool(body interface{}, d *document) (bool, error) {
	obj, ok := asObject(body)
	if !ok {
		return false, fmt.Errorf("%w: bool body %T", ErrUnsupportedClause, body)
	}
	var must, should, mustNot []map[string]interface{}
	minShould := -1
	for key, v := range obj {
		switch key {
		case "must", "filter":
			cs, err := clauseList(v)
			if err != nil {
				return false, err
			}
			must = append(must, cs...)
		case "should":
			cs, err := clauseList(v)
			if err != nil {
				return false, err
			}
			should = cs
		case "must_not":
			cs, err := clauseList(v)
			if err != nil {
				return false, err
			}
			mustNot = cs
		case "minimum_should_match":
			n, ok := analysis.ToFloat64(v)
			if !ok {
				return false, fmt.Errorf("%w: minimum_should_match %v", ErrUnsupportedClause, v)
			}
			minShould = int(n)
		default:
			return false, fmt.Errorf("%w: bool.%s", ErrUnsupportedClause, key)
		}
	}
	for _, c := range must {
		ok, err := evalClause(c, d)
		if err != nil || !ok {
			return false, err
		}
	}
	for _, c := range mustNot {
		ok, err := evalClause(c, d)
		if err != nil || ok {
			return false, err
		}
	}
	if minShould < 0 {
		minShould = 0
		if len(must) == 0 && len(mustNot) == 0 && len(should) > 0 {
			minShould = 1
		}
	}
	matched := 0
	for _, c := range should {
		ok, err := evalClause(c, d)
		if err != nil {
			return false, err
		}
		if ok {
			matched++
		}
	}
	return matched >= minShould, nil
}

// clauseList accepts a single clause object or an array of clauses.
func clauseList(v interface{}) ([]map[string]interface{}, error) {
	if obj, ok := asObject(v); ok {
		return []map[string]interface{}{obj}, nil
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: expected clause list, got %T", ErrUnsupportedClause, v)
	}
	out := make([]map[string]interface{}, 0, len(arr))
	for _, el := range arr {
		obj, ok := asObject(el)
		if !ok {
			return nil, fmt.Errorf("%w: expected clause, got %T", ErrUnsupportedClause, el)
		}
		out = append(out, obj)
	}
	return out, nil
}
