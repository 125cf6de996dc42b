package query

import (
	"encoding/json"
	"time"
)

// Clause is a filter clause in the search backend's JSON query syntax.
type Clause map[string]interface{}

// JSON encodes the clause.
func (c Clause) JSON() ([]byte, error) {
	return json.Marshal(c)
}

// Compile translates p into a backend filter clause.
//
//	TermMatch   {"term": {path: folded}}
//	PhraseMatch {"match_phrase": {path: value}}
//	RangeMatch  {"range": {path: {"gte": low, "lte": high}}}
//	And         {"bool": {"must": [...]}}
//	Or          {"bool": {"should": [...], "minimum_should_match": 1}}
//	Not         {"bool": {"must_not": [child]}}
func Compile(p Predicate) Clause {
	switch e := p.(type) {
	case *TermMatch:
		var v interface{} = e.term
		if _, isString := e.value.(string); !isString {
			v = e.value
		}
		return Clause{"term": map[string]interface{}{e.path.String(): v}}
	case *PhraseMatch:
		return Clause{"match_phrase": map[string]interface{}{e.path.String(): e.value}}
	case *RangeMatch:
		bounds := make(map[string]interface{}, 2)
		if e.low != nil {
			bounds["gte"] = boundValue(e.low)
		}
		if e.high != nil {
			bounds["lte"] = boundValue(e.high)
		}
		return Clause{"range": map[string]interface{}{e.path.String(): bounds}}
	case *And:
		return Clause{"bool": map[string]interface{}{"must": compileAll(e.children)}}
	case *Or:
		return Clause{"bool": map[string]interface{}{
			"should":               compileAll(e.children),
			"minimum_should_match": 1,
		}}
	case *Not:
		return Clause{"bool": map[string]interface{}{"must_not": []interface{}{Compile(e.child)}}}
	}
	return Clause{"match_none": map[string]interface{}{}}
}

func compileAll(ps []Predicate) []interface{} {
	out := make([]interface{}, len(ps))
	for i, c := range ps {
		out[i] = Compile(c)
	}
	return out
}

func boundValue(v interface{}) interface{} {
	if ts, ok := v.(time.Time); ok {
		return ts.UTC().Format(time.RFC3339Nano)
	}
	return v
}

// Request wraps a filter clause as a complete non-scoring search body.
func Request(filter Clause, size int) Clause {
	return Clause{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{filter},
			},
		},
		"size": size,
	}
}
