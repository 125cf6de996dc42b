package event

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPath is wrapped by every path parsing failure.
var ErrMalformedPath = errors.New("malformed field path")

// Path is a parsed dotted field path like ["details", "results"].
type Path []string

// ParsePath splits a dotted path. Empty paths and empty segments are rejected.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty path", ErrMalformedPath)
	}
	segs := strings.Split(s, ".")
	for i, seg := range segs {
		if seg == "" {
			return nil, fmt.Errorf("%w: empty segment %d in %q", ErrMalformedPath, i, s)
		}
	}
	return Path(segs), nil
}

// MustParsePath is ParsePath for static paths; it panics on error.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string { return strings.Join(p, ".") }

// Lookup resolves p against m. The second result is false when a segment is
// missing, the traversal passes through a non-mapping value, or the leaf is nil.
func (p Path) Lookup(m map[string]interface{}) (interface{}, bool) {
	if len(p) == 0 || m == nil {
		return nil, false
	}
	cur := m
	for i, seg := range p {
		v, ok := cur[seg]
		if !ok || v == nil {
			return nil, false
		}
		if i == len(p)-1 {
			return v, true
		}
		next, ok := asMap(v)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// Lookup resolves a dotted path. Malformed paths resolve to absent.
func (e Event) Lookup(path string) (interface{}, bool) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	return p.Lookup(e)
}

// LookupString resolves path and returns it when it holds a string.
func (e Event) LookupString(path string) (string, bool) {
	v, ok := e.Lookup(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Set stores v at path, creating intermediate maps. A non-mapping value
// in the way is replaced.
func (e Event) Set(path string, v interface{}) error {
	p, err := ParsePath(path)
	if err != nil {
		return err
	}
	cur := map[string]interface{}(e)
	for _, seg := range p[:len(p)-1] {
		next, ok := asMap(cur[seg])
		if !ok {
			next = make(map[string]interface{})
			cur[seg] = next
		}
		cur = next
	}
	cur[p[len(p)-1]] = v
	return nil
}

// Delete removes the leaf at path. Missing paths are a no-op.
func (e Event) Delete(path string) {
	p, err := ParsePath(path)
	if err != nil {
		return
	}
	parent := map[string]interface{}(e)
	if len(p) > 1 {
		v, ok := p[:len(p)-1].Lookup(e)
		if !ok {
			return
		}
		if parent, ok = asMap(v); !ok {
			return
		}
	}
	delete(parent, p[len(p)-1])
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case Event:
		return t, true
	case Metadata:
		return t, true
	}
	return nil, false
}
