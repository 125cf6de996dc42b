// Package query holds the predicate model shared by live event matching and
// stored-event search. Every predicate evaluates in memory (Matches) and
// compiles to a search clause (Compile); both must agree for any event.
package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gyaneshwarpardhi/mqworker/internal/analysis"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
)

// ErrPredicate is wrapped by every construction failure.
var ErrPredicate = errors.New("invalid predicate")

// PredicateError reports a malformed predicate at construction time.
type PredicateError struct {
	Op     string
	Path   string
	Reason string
}

func (e *PredicateError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s %q: %s", e.Op, e.Path, e.Reason)
}

func (e *PredicateError) Unwrap() error { return ErrPredicate }

func predErr(op, path, format string, args ...interface{}) error {
	return &PredicateError{Op: op, Path: path, Reason: fmt.Sprintf(format, args...)}
}

// Predicate is the closed set of filter expressions. The variants are
// *TermMatch, *PhraseMatch, *RangeMatch, *And, *Or and *Not.
type Predicate interface {
	fmt.Stringer
	predicate()
}

// -----------------------------------------------------------------------
// Leaves
// -----------------------------------------------------------------------

// TermMatch matches when the folded value equals one token of the field.
type TermMatch struct {
	path  event.Path
	value interface{}
	term  string
}

func (*TermMatch) predicate() {}

// NewTermMatch builds a TermMatch. value must be a non-empty string, a bool or a number.
func NewTermMatch(path string, value interface{}) (*TermMatch, error) {
	p, err := event.ParsePath(path)
	if err != nil {
		return nil, predErr("term", path, "%v", err)
	}
	switch v := value.(type) {
	case nil:
		return nil, predErr("term", path, "comparison value is nil")
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, predErr("term", path, "comparison value is empty")
		}
	case map[string]interface{}, []interface{}, time.Time:
		return nil, predErr("term", path, "comparison value must be a scalar, got %T", value)
	}
	text, ok := analysis.Text(value)
	if !ok {
		return nil, predErr("term", path, "unsupported comparison value %T", value)
	}
	return &TermMatch{path: p, value: value, term: analysis.Fold(text)}, nil
}

func (t *TermMatch) Path() event.Path   { return t.path }
func (t *TermMatch) Value() interface{} { return t.value }
func (t *TermMatch) String() string     { return t.path.String() + ":" + quoteIfNeeded(t.term) }

// PhraseMatch matches when the value's tokens appear, in order and adjacent,
// in one element of the field.
type PhraseMatch struct {
	path   event.Path
	value  string
	tokens []string
}

func (*PhraseMatch) predicate() {}

// NewPhraseMatch builds a PhraseMatch. value must contain at least one token.
func NewPhraseMatch(path, value string) (*PhraseMatch, error) {
	p, err := event.ParsePath(path)
	if err != nil {
		return nil, predErr("phrase", path, "%v", err)
	}
	toks := analysis.Tokenize(value)
	if len(toks) == 0 {
		return nil, predErr("phrase", path, "phrase %q has no tokens", value)
	}
	return &PhraseMatch{path: p, value: value, tokens: toks}, nil
}

func (m *PhraseMatch) Path() event.Path { return m.path }
func (m *PhraseMatch) Value() string    { return m.value }
func (m *PhraseMatch) String() string   { return m.path.String() + ":" + strconv.Quote(m.value) }

// RangeMatch matches when the field lies in [low, high]. A nil bound is open.
type RangeMatch struct {
	path      event.Path
	kind      analysis.Kind
	low, high interface{}
}

func (*RangeMatch) predicate() {}

// NewRangeMatch builds a RangeMatch. Bounds are numbers, time.Time values or
// timestamp strings; both bounds share one kind and low must not exceed high.
func NewRangeMatch(path string, low, high interface{}) (*RangeMatch, error) {
	p, err := event.ParsePath(path)
	if err != nil {
		return nil, predErr("range", path, "%v", err)
	}
	if low == nil && high == nil {
		return nil, predErr("range", path, "both bounds are nil")
	}
	r := &RangeMatch{path: p}
	if r.low, r.kind, err = normalizeBound(low); err != nil {
		return nil, predErr("range", path, "low bound: %v", err)
	}
	hv, hk, err := normalizeBound(high)
	if err != nil {
		return nil, predErr("range", path, "high bound: %v", err)
	}
	r.high = hv
	switch {
	case r.kind == analysis.KindNone:
		r.kind = hk
	case hk != analysis.KindNone && hk != r.kind:
		return nil, predErr("range", path, "bounds mix %s and %s values", r.kind, hk)
	}
	if r.low != nil && r.high != nil {
		if c, _ := analysis.Compare(r.kind, r.low, r.high); c > 0 {
			return nil, predErr("range", path, "low bound exceeds high bound")
		}
	}
	return r, nil
}

func normalizeBound(v interface{}) (interface{}, analysis.Kind, error) {
	if v == nil {
		return nil, analysis.KindNone, nil
	}
	switch analysis.KindOf(v) {
	case analysis.KindNumeric:
		f, _ := analysis.ToFloat64(v)
		return f, analysis.KindNumeric, nil
	case analysis.KindTemporal:
		ts, _ := analysis.ToTime(v)
		return ts, analysis.KindTemporal, nil
	}
	return nil, analysis.KindNone, fmt.Errorf("%v (%T) is neither numeric nor a timestamp", v, v)
}

func (r *RangeMatch) Path() event.Path    { return r.path }
func (r *RangeMatch) Kind() analysis.Kind { return r.kind }
func (r *RangeMatch) Low() interface{}    { return r.low }
func (r *RangeMatch) High() interface{}   { return r.high }

func (r *RangeMatch) String() string {
	return fmt.Sprintf("%s:[%s TO %s]", r.path, boundString(r.low), boundString(r.high))
}

func boundString(v interface{}) string {
	switch b := v.(type) {
	case nil:
		return "*"
	case time.Time:
		return strconv.Quote(b.Format(time.RFC3339Nano))
	case float64:
		return strconv.FormatFloat(b, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// -----------------------------------------------------------------------
// Combinators
// -----------------------------------------------------------------------

// And matches when every child matches.
type And struct{ children []Predicate }

// Or matches when at least one child matches.
type Or struct{ children []Predicate }

// Not matches when its child does not.
type Not struct{ child Predicate }

func (*And) predicate() {}
func (*Or) predicate()  {}
func (*Not) predicate() {}

// NewAnd builds an And over at least one child.
func NewAnd(children ...Predicate) (*And, error) {
	cs, err := checkChildren("and", children)
	if err != nil {
		return nil, err
	}
	return &And{children: cs}, nil
}

// NewOr builds an Or over at least one child.
func NewOr(children ...Predicate) (*Or, error) {
	cs, err := checkChildren("or", children)
	if err != nil {
		return nil, err
	}
	return &Or{children: cs}, nil
}

// NewNot negates child.
func NewNot(child Predicate) (*Not, error) {
	if child == nil {
		return nil, predErr("not", "", "child is nil")
	}
	return &Not{child: child}, nil
}

func checkChildren(op string, children []Predicate) ([]Predicate, error) {
	if len(children) == 0 {
		return nil, predErr(op, "", "needs at least one child")
	}
	for i, c := range children {
		if c == nil {
			return nil, predErr(op, "", "child %d is nil", i)
		}
	}
	return append([]Predicate(nil), children...), nil
}

// Children returns a copy of the child list.
func (a *And) Children() []Predicate { return append([]Predicate(nil), a.children...) }

// Children returns a copy of the child list.
func (o *Or) Children() []Predicate { return append([]Predicate(nil), o.children...) }

// Child returns the negated predicate.
func (n *Not) Child() Predicate { return n.child }

func (a *And) String() string { return joinChildren(a.children, " AND ") }
func (o *Or) String() string  { return joinChildren(o.children, " OR ") }
func (n *Not) String() string { return "NOT " + wrap(n.child) }

func joinChildren(cs []Predicate, sep string) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = wrap(c)
	}
	return strings.Join(parts, sep)
}

func wrap(p Predicate) string {
	switch c := p.(type) {
	case *And:
		if len(c.children) > 1 {
			return "(" + c.String() + ")"
		}
	case *Or:
		if len(c.children) > 1 {
			return "(" + c.String() + ")"
		}
	}
	return p.String()
}

func quoteIfNeeded(s string) string {
	toks := analysis.Tokenize(s)
	if len(toks) == 1 && toks[0] == s {
		return s
	}
	return strconv.Quote(s)
}

// -----------------------------------------------------------------------
// Must helpers for static tables and tests.
// -----------------------------------------------------------------------

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func MustTerm(path string, value interface{}) *TermMatch {
	return must(NewTermMatch(path, value))
}

func MustPhrase(path, value string) *PhraseMatch {
	return must(NewPhraseMatch(path, value))
}

func MustRange(path string, low, high interface{}) *RangeMatch {
	return must(NewRangeMatch(path, low, high))
}

func MustAnd(children ...Predicate) *And { return must(NewAnd(children...)) }
func MustOr(children ...Predicate) *Or   { return must(NewOr(children...)) }
func MustNot(child Predicate) *Not       { return must(NewNot(child)) }
