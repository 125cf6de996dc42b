package snmptt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/plugin"
)

func TestParseTrap(t *testing.T) {
	p := New("")
	ev := event.Event{
		"summary": `linkDown WARNING "Status Events" core-sw1.example.com - Link down on interface 3 (Gi0/3)`,
		"details": map[string]interface{}{"program": "snmptt", "hostname": "collector"},
	}
	out, md, err := p.Handle(context.Background(), ev, event.NewMetadata())
	require.NoError(t, err)
	assert.Equal(t, "events", md.Index())

	details := out["details"].(map[string]interface{})
	assert.Equal(t, "linkDown", details["trapname"])
	assert.Equal(t, "WARNING", details["trapseverity"])
	assert.Equal(t, "core-sw1.example.com", details["source_host"])
	assert.Equal(t, "core-sw1.example.com", details["hostname"])
	assert.Equal(t, "Link down on interface 3 (Gi0/3)", details["trappayload"])
}

func TestParseTrapIgnored(t *testing.T) {
	cases := map[string]event.Event{
		"other program": {"summary": `a b "Status Events" h - x`, "details": map[string]interface{}{"program": "sshd"}},
		"no details":    {"summary": `a b "Status Events" h - x`},
		"no summary":    {"details": map[string]interface{}{"program": "snmptt"}},
		"list summary":  {"summary": []interface{}{"x"}, "details": map[string]interface{}{"program": "snmptt"}},
		"no match":      {"summary": "plain text", "details": map[string]interface{}{"program": "snmptt"}},
		"details flat":  {"summary": `a b "Status Events" h - x`, "details": "snmptt"},
	}
	for name, ev := range cases {
		t.Run(name, func(t *testing.T) {
			before := ev.Clone()
			out, _, err := New("").Handle(context.Background(), ev, event.NewMetadata())
			require.NoError(t, err)
			assert.Equal(t, before, out)
		})
	}
}

func TestRegistration(t *testing.T) {
	b, err := plugin.NewBuilder("")
	require.NoError(t, err)
	p, err := Factory(config.PluginConf{Name: "snmp-traps", Type: Type})
	require.NoError(t, err)
	require.NoError(t, b.Register(p))
	s := b.Build()

	d := s.Descriptors()[0]
	assert.Equal(t, "snmp-traps", d.Name)
	assert.Equal(t, 5, d.Priority)
	assert.Equal(t, []string{"snmptt"}, d.Criteria.TokenList())
	assert.Len(t, s.PlanFor(event.Event{"details": map[string]interface{}{"program": "SNMPTT"}}), 1)
}
