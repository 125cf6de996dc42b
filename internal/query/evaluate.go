package query

import (
	"github.com/gyaneshwarpardhi/mqworker/internal/analysis"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
)

// Matches evaluates p against ev in memory. It never fails: absent fields,
// unexpected value types and a nil event all evaluate the leaf to false.
func Matches(p Predicate, ev event.Event) bool {
	return evaluate(p, ev, nil)
}

// evaluate calls visit, when set, for every predicate it evaluates.
func evaluate(p Predicate, ev event.Event, visit func(Predicate)) bool {
	if visit != nil {
		visit(p)
	}
	switch e := p.(type) {
	case *TermMatch:
		return matchTerm(e, ev)
	case *PhraseMatch:
		return matchPhrase(e, ev)
	case *RangeMatch:
		return matchRange(e, ev)
	case *And:
		for _, c := range e.children {
			if !evaluate(c, ev, visit) {
				return false
			}
		}
		return true
	case *Or:
		for _, c := range e.children {
			if evaluate(c, ev, visit) {
				return true
			}
		}
		return false
	case *Not:
		return !evaluate(e.child, ev, visit)
	}
	return false
}

func matchTerm(t *TermMatch, ev event.Event) bool {
	v, ok := t.path.Lookup(ev)
	if !ok {
		return false
	}
	for _, toks := range analysis.ElementTokens(v) {
		for _, tok := range toks {
			if tok == t.term {
				return true
			}
		}
	}
	return false
}

func matchPhrase(m *PhraseMatch, ev event.Event) bool {
	v, ok := m.path.Lookup(ev)
	if !ok {
		return false
	}
	for _, toks := range analysis.ElementTokens(v) {
		if containsSequence(toks, m.tokens) {
			return true
		}
	}
	return false
}

// containsSequence reports whether needle occurs contiguously in haystack.
func containsSequence(haystack, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, tok := range needle {
			if haystack[i+j] != tok {
				continue outer
			}
		}
		return true
	}
	return false
}

func matchRange(r *RangeMatch, ev event.Event) bool {
	v, ok := r.path.Lookup(ev)
	if !ok {
		return false
	}
	for _, el := range analysis.Values(v) {
		if inRange(r, el) {
			return true
		}
	}
	return false
}

func inRange(r *RangeMatch, v interface{}) bool {
	if r.low != nil {
		c, ok := analysis.Compare(r.kind, v, r.low)
		if !ok || c < 0 {
			return false
		}
	}
	if r.high != nil {
		c, ok := analysis.Compare(r.kind, v, r.high)
		if !ok || c > 0 {
			return false
		}
	}
	return true
}
