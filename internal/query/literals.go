package query

import "github.com/gyaneshwarpardhi/mqworker/internal/analysis"

// RequiredLiterals returns folded tokens of which at least one must occur as a
// token somewhere in an event for p to match it. A nil result means p carries
// no such guarantee (ranges, negations, or an Or with an unconstrained branch).
func RequiredLiterals(p Predicate) []string {
	switch e := p.(type) {
	case *TermMatch:
		// A term that is not a single token never matches and is no literal.
		if toks := analysis.Tokenize(e.term); len(toks) != 1 || toks[0] != e.term {
			return nil
		}
		return []string{e.term}
	case *PhraseMatch:
		longest := e.tokens[0]
		for _, t := range e.tokens[1:] {
			if len(t) > len(longest) {
				longest = t
			}
		}
		return []string{longest}
	case *And:
		// Any constrained child is sufficient; keep the narrowest.
		var best []string
		for _, c := range e.children {
			lits := RequiredLiterals(c)
			if lits != nil && (best == nil || len(lits) < len(best)) {
				best = lits
			}
		}
		return best
	case *Or:
		var all []string
		seen := make(map[string]struct{})
		for _, c := range e.children {
			lits := RequiredLiterals(c)
			if lits == nil {
				return nil
			}
			for _, l := range lits {
				if _, dup := seen[l]; !dup {
					seen[l] = struct{}{}
					all = append(all, l)
				}
			}
		}
		return all
	}
	return nil
}
