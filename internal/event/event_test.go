package event

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	cases := []struct {
		in      string
		want    Path
		wantErr bool
	}{
		{in: "summary", want: Path{"summary"}},
		{in: "details.results", want: Path{"details", "results"}},
		{in: "", wantErr: true},
		{in: "a..b", wantErr: true},
		{in: ".a", wantErr: true},
		{in: "a.", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParsePath(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedPath))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLookup(t *testing.T) {
	ev := Event{
		"summary": "test summary",
		"details": map[string]interface{}{
			"results": "LDAP_INVALID_CREDENTIALS",
			"nested":  Event{"deep": 3},
			"nothing": nil,
		},
		"tags": []interface{}{"a", "b"},
	}

	v, ok := ev.Lookup("details.results")
	require.True(t, ok)
	assert.Equal(t, "LDAP_INVALID_CREDENTIALS", v)

	v, ok = ev.Lookup("details.nested.deep")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	for _, p := range []string{
		"details.missing",
		"summary.inner",   // through a string
		"tags.a",          // through a list
		"details.nothing", // nil leaf
		"Details.results", // segments are case-sensitive
		"details..results",
	} {
		_, ok := ev.Lookup(p)
		assert.False(t, ok, p)
	}
}

func TestSetDelete(t *testing.T) {
	ev := Event{"summary": "x"}
	require.NoError(t, ev.Set("details.trapname", "linkDown"))
	s, ok := ev.LookupString("details.trapname")
	require.True(t, ok)
	assert.Equal(t, "linkDown", s)

	require.NoError(t, ev.Set("summary.deeper", 1))
	v, ok := ev.Lookup("summary.deeper")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	ev.Delete("summary.deeper")
	_, ok = ev.Lookup("summary.deeper")
	assert.False(t, ok)

	ev.Delete("no.such.path")
	assert.Error(t, ev.Set("", 1))
}

func TestCloneIsDeep(t *testing.T) {
	orig := Event{
		"details": map[string]interface{}{"program": "snmptt"},
		"tags":    []interface{}{"one"},
	}
	cp := orig.Clone()
	require.NoError(t, cp.Set("details.program", "sshd"))
	cp["tags"].([]interface{})[0] = "two"

	p, _ := orig.LookupString("details.program")
	assert.Equal(t, "snmptt", p)
	assert.Equal(t, "one", orig["tags"].([]interface{})[0])

	md := NewMetadata()
	md.AppendPlugin("a")
	mcp := md.Clone()
	mcp.AppendPlugin("b")
	assert.Equal(t, []string{"a"}, md.Plugins())
	assert.Equal(t, []string{"a", "b"}, mcp.Plugins())
}

func TestDecodeAndID(t *testing.T) {
	ev, err := Decode([]byte(`{"id": 42, "summary": "hello"}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("42"), ev["id"])
	assert.Equal(t, "42", ev.ID())

	ev, err = Decode([]byte(`{"details": {"eventid": "abc"}}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", ev.ID())

	_, err = Decode([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = Decode([]byte(`{`))
	assert.Error(t, err)
}

func TestMetadataIndex(t *testing.T) {
	md := NewMetadata()
	assert.Equal(t, DefaultIndex, md.Index())
	md[MetaIndex] = "alerts"
	assert.Equal(t, "alerts", md.Index())
	md[MetaIndex] = ""
	assert.Equal(t, DefaultIndex, md.Index())
}

func TestEnsureID(t *testing.T) {
	ev := Event{"summary": "x"}
	id := ev.EnsureID()
	require.NotEmpty(t, id)
	assert.Equal(t, id, ev["id"])
	assert.Equal(t, id, ev.EnsureID())

	assert.Equal(t, "abc", Event{"details": map[string]interface{}{"eventid": "abc"}}.EnsureID())
}
