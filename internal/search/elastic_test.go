package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/mqworker/internal/query"
)

func TestElasticSearch(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/events/_search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits": {"hits": [
			{"_index": "events", "_id": "1", "_source": {"hostname": "fe1", "details": {"loadaverage": [0.1, 0.2]}}}
		]}}`))
	}))
	defer srv.Close()

	es, err := NewElastic([]string{srv.URL + "/"}, time.Second)
	require.NoError(t, err)

	hits, err := es.Search(context.Background(), "events", query.Compile(query.MustTerm("category", "mozdef")), 100)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "1", hits[0].ID)
	assert.Equal(t, "fe1", hits[0].Source["hostname"])

	assert.Equal(t, float64(100), gotBody["size"])
	q := gotBody["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
	assert.Equal(t, map[string]interface{}{"term": map[string]interface{}{"category": "mozdef"}}, q[0])
}

func TestElasticFailover(t *testing.T) {
	var badCalls atomic.Int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badCalls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hits": {"hits": []}}`))
	}))
	defer good.Close()

	es, err := NewElastic([]string{bad.URL, good.URL}, time.Second)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		hits, err := es.Search(context.Background(), "events", query.Clause{"match_all": map[string]interface{}{}}, 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	}
	// After the first failure the healthy server is tried first.
	assert.Equal(t, int32(1), badCalls.Load())
}

func TestElasticAllFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()

	es, err := NewElastic([]string{bad.URL}, time.Second)
	require.NoError(t, err)
	_, err = es.Search(context.Background(), "events", query.Clause{"match_all": map[string]interface{}{}}, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")

	_, err = NewElastic(nil, time.Second)
	assert.Error(t, err)
}
