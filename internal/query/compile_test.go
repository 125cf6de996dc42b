package query

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := MustAnd(
		MustTerm("details.results", "LDAP_INVALID_CREDENTIALS"),
		MustOr(MustPhrase("summary", "link down"), MustTerm("severity", 5)),
		MustNot(MustRange("utctimestamp", now.Add(-time.Minute), now)),
		MustRange("details.count", nil, 10),
	)
	raw, err := Compile(p).JSON()
	require.NoError(t, err)

	want := `{
	  "bool": {"must": [
	    {"term": {"details.results": "ldap_invalid_credentials"}},
	    {"bool": {
	      "should": [
	        {"match_phrase": {"summary": "link down"}},
	        {"term": {"severity": 5}}
	      ],
	      "minimum_should_match": 1
	    }},
	    {"bool": {"must_not": [
	      {"range": {"utctimestamp": {"gte": "2024-05-01T11:59:00Z", "lte": "2024-05-01T12:00:00Z"}}}
	    ]}},
	    {"range": {"details.count": {"lte": 10}}}
	  ]}
	}`
	assert.JSONEq(t, want, string(raw))
}

func TestRequest(t *testing.T) {
	body := Request(Compile(MustTerm("category", "mozdef")), 25)
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query": {"bool": {"filter": [{"term": {"category": "mozdef"}}]}}, "size": 25}`, string(raw))
}
