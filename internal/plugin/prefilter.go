package plugin

import (
	"strings"

	ac "github.com/petar-dambovaliev/aho-corasick"

	"github.com/gyaneshwarpardhi/mqworker/internal/analysis"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
)

// literalPrefilter scans the folded text of an event once with an
// Aho–Corasick automaton over the required literals of every predicate
// criteria. A gated descriptor whose literals are all absent cannot match and
// is skipped without evaluating its predicate.
//
// Literals are whole tokens, so a leftmost-longest match never spans a token
// boundary and a literal present as a token is always reported.
type literalPrefilter struct {
	automaton *ac.AhoCorasick
	patterns  []string
	owners    [][]int // pattern index → plan positions
	gated     []bool  // plan position → has literals
}

func newLiteralPrefilter(plans []*Descriptor) *literalPrefilter {
	pf := &literalPrefilter{gated: make([]bool, len(plans))}
	index := make(map[string]int)
	for pos, d := range plans {
		if len(d.literals) == 0 {
			continue
		}
		pf.gated[pos] = true
		for _, lit := range d.literals {
			i, ok := index[lit]
			if !ok {
				i = len(pf.patterns)
				index[lit] = i
				pf.patterns = append(pf.patterns, lit)
				pf.owners = append(pf.owners, nil)
			}
			pf.owners[i] = append(pf.owners[i], pos)
		}
	}
	if len(pf.patterns) == 0 {
		return pf
	}
	builder := ac.NewAhoCorasickBuilder(ac.Opts{
		AsciiCaseInsensitive: false,
		MatchKind:            ac.LeftMostLongestMatch,
	})
	built := builder.Build(pf.patterns)
	pf.automaton = &built
	return pf
}

// PatternCount returns the number of distinct literals in the automaton.
func (pf *literalPrefilter) PatternCount() int { return len(pf.patterns) }

// candidates reports, per plan position, whether the descriptor may match ev.
func (pf *literalPrefilter) candidates(ev event.Event) []bool {
	out := make([]bool, len(pf.gated))
	for pos, g := range pf.gated {
		out[pos] = !g
	}
	if pf.automaton == nil {
		return out
	}
	for _, m := range pf.automaton.FindAll(haystack(ev)) {
		for _, pos := range pf.owners[m.Pattern()] {
			out[pos] = true
		}
	}
	return out
}

// haystack joins the folded text of every scalar in ev with newlines.
func haystack(ev event.Event) string {
	var b strings.Builder
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch t := v.(type) {
		case map[string]interface{}:
			for _, x := range t {
				walk(x)
			}
		case event.Event:
			for _, x := range t {
				walk(x)
			}
		case []interface{}:
			for _, x := range t {
				walk(x)
			}
		case []string:
			for _, x := range t {
				walk(x)
			}
		default:
			if s, ok := analysis.Text(v); ok {
				b.WriteString(analysis.Fold(s))
				b.WriteByte('\n')
			}
		}
	}
	walk(map[string]interface{}(ev))
	return b.String()
}
