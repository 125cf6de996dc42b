package tagger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
)

func confFromYAML(t *testing.T, doc string) config.PluginConf {
	t.Helper()
	var pc config.PluginConf
	require.NoError(t, yaml.Unmarshal([]byte(doc), &pc))
	return pc
}

func TestTagger(t *testing.T) {
	pc := confFromYAML(t, `
name: ldap-auth
type: tagger
criteria:
  query: 'details.results:ldap_invalid_credentials'
params:
  tags: [auth, ldap]
  index: alerts
  doc_type: authfailure
  set:
    details.category: authentication
    severity: WARNING
`)
	p, err := Factory(pc)
	require.NoError(t, err)
	assert.Equal(t, "ldap-auth", p.Name())
	_, hasPrio := p.Priority()
	assert.False(t, hasPrio)
	require.NotNil(t, p.Criteria().Predicate())

	ev := event.Event{"tags": []interface{}{"ldap", "vpn"}, "details": map[string]interface{}{"results": "LDAP_INVALID_CREDENTIALS"}}
	out, md, err := p.Handle(context.Background(), ev, event.NewMetadata())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"ldap", "vpn", "auth"}, out["tags"])
	assert.Equal(t, "WARNING", out["severity"])
	v, ok := out.Lookup("details.category")
	require.True(t, ok)
	assert.Equal(t, "authentication", v)
	assert.Equal(t, "alerts", md.Index())
	assert.Equal(t, "authfailure", md[event.MetaDocType])
}

func TestTaggerScalarTags(t *testing.T) {
	p, err := Factory(config.PluginConf{
		Name:     "t",
		Criteria: config.CriteriaConf{Tokens: []string{"sshd"}},
		Params:   map[string]interface{}{"tags": "ssh"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"sshd"}, p.Criteria().TokenList())

	out, md, err := p.Handle(context.Background(), event.Event{"tags": "existing"}, event.NewMetadata())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"existing", "ssh"}, out["tags"])
	assert.Equal(t, event.DefaultIndex, md.Index())

	out, _, err = p.Handle(context.Background(), event.Event{}, event.NewMetadata())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"ssh"}, out["tags"])
}

func TestTaggerSetIsCopied(t *testing.T) {
	params := map[string]interface{}{
		"set": map[string]interface{}{
			"details":   map[string]interface{}{"a": 1},
			"details.b": 2,
		},
	}
	p, err := Factory(config.PluginConf{
		Name:     "t",
		Criteria: config.CriteriaConf{Tokens: []string{"x"}},
		Params:   params,
	})
	require.NoError(t, err)

	ev1, _, err := p.Handle(context.Background(), event.Event{}, event.NewMetadata())
	require.NoError(t, err)
	ev2, _, err := p.Handle(context.Background(), event.Event{}, event.NewMetadata())
	require.NoError(t, err)
	want := map[string]interface{}{"a": 1, "b": 2}
	assert.Equal(t, want, ev1["details"])
	assert.Equal(t, want, ev2["details"])

	ev2["details"].(map[string]interface{})["c"] = 3
	assert.Equal(t, want, ev1["details"], "events do not share set values")
	set := params["set"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"a": 1}, set["details"], "config is never written")
}

func TestFactoryErrors(t *testing.T) {
	cases := map[string]config.PluginConf{
		"no criteria":  {Name: "a"},
		"bad query":    {Name: "b", Criteria: config.CriteriaConf{Query: "summary:"}},
		"bad tags":     {Name: "c", Criteria: config.CriteriaConf{Tokens: []string{"x"}}, Params: map[string]interface{}{"tags": 5}},
		"bad tag item": {Name: "d", Criteria: config.CriteriaConf{Tokens: []string{"x"}}, Params: map[string]interface{}{"tags": []interface{}{"a", 1}}},
		"bad index":    {Name: "e", Criteria: config.CriteriaConf{Tokens: []string{"x"}}, Params: map[string]interface{}{"index": 1}},
		"bad set":      {Name: "f", Criteria: config.CriteriaConf{Tokens: []string{"x"}}, Params: map[string]interface{}{"set": "x"}},
		"bad set path": {Name: "g", Criteria: config.CriteriaConf{Tokens: []string{"x"}}, Params: map[string]interface{}{"set": map[string]interface{}{"a..b": 1}}},
	}
	for name, pc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Factory(pc)
			assert.Error(t, err)
		})
	}
}
