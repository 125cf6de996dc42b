package plugin

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/query"
)

func noop(ctx context.Context, ev event.Event, md event.Metadata) (event.Event, event.Metadata, error) {
	return ev, md, nil
}

func prio(n int) *int { return &n }

func newFunc(name string, c Criteria, p *int) *Func {
	return &Func{PluginName: name, PluginCriteria: c, PluginPriority: p, Fn: noop}
}

func names(ds []*Descriptor) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Name)
	}
	return out
}

func TestPriorityOrder(t *testing.T) {
	b, err := NewBuilder("")
	require.NoError(t, err)
	// Registered out of order on purpose.
	require.NoError(t, b.Register(newFunc("C", Tokens("snmptt"), nil)))
	require.NoError(t, b.Register(newFunc("B", Tokens("snmptt"), prio(5))))
	require.NoError(t, b.Register(newFunc("A", Tokens("snmptt"), prio(1))))
	s := b.Build()

	ev := event.Event{"details": map[string]interface{}{"program": "snmptt"}}
	assert.Equal(t, []string{"A", "B", "C"}, names(s.PlanFor(ev)))
	assert.Equal(t, 100, s.Descriptors()[2].Priority)
}

func TestPriorityTiesKeepRegistrationOrder(t *testing.T) {
	b, err := NewBuilder("")
	require.NoError(t, err)
	for _, n := range []string{"z", "y", "x", "w"} {
		require.NoError(t, b.Register(newFunc(n, Tokens("sshd"), prio(10))))
	}
	require.NoError(t, b.Register(newFunc("first", Tokens("sshd"), prio(0))))
	s := b.Build()
	ev := event.Event{"details": map[string]interface{}{"program": "sshd"}}
	assert.Equal(t, []string{"first", "z", "y", "x", "w"}, names(s.PlanFor(ev)))
}

func TestTokenCriteria(t *testing.T) {
	b, err := NewBuilder("")
	require.NoError(t, err)
	require.NoError(t, b.Register(newFunc("snmp", Tokens("snmptt", "snmpd"), nil)))
	require.NoError(t, b.Register(newFunc("none", Tokens(), nil)))
	s := b.Build()

	cases := []struct {
		name string
		ev   event.Event
		want []string
	}{
		{"exact", event.Event{"details": map[string]interface{}{"program": "snmptt"}}, []string{"snmp"}},
		{"case and space folded", event.Event{"details": map[string]interface{}{"program": " SNMPD "}}, []string{"snmp"}},
		{"list element", event.Event{"details": map[string]interface{}{"program": []interface{}{"cron", "snmptt"}}}, []string{"snmp"}},
		{"whole value only", event.Event{"details": map[string]interface{}{"program": "snmptt daemon"}}, nil},
		{"absent", event.Event{"summary": "snmptt"}, nil},
		{"not a map", event.Event{"details": "snmptt"}, nil},
		{"empty event", event.Event{}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := s.PlanFor(tc.ev)
			if tc.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, names(got))
		})
	}
}

func TestDesignatedField(t *testing.T) {
	b, err := NewBuilder("source.app")
	require.NoError(t, err)
	require.NoError(t, b.Register(newFunc("vpn", Tokens("openvpn"), nil)))
	s := b.Build()
	assert.Equal(t, "source.app", s.DesignatedField())
	assert.Len(t, s.PlanFor(event.Event{"source": map[string]interface{}{"app": "OpenVPN"}}), 1)
	assert.Empty(t, s.PlanFor(event.Event{"details": map[string]interface{}{"program": "openvpn"}}))

	_, err = NewBuilder("source..app")
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestRegisterErrors(t *testing.T) {
	b, err := NewBuilder("")
	require.NoError(t, err)
	require.NoError(t, b.Register(newFunc("dup", Tokens("a"), nil)))

	cases := map[string]Plugin{
		"nil":         nil,
		"no name":     newFunc("", Tokens("a"), nil),
		"duplicate":   newFunc("dup", Tokens("a"), nil),
		"negative":    newFunc("neg", Tokens("a"), prio(-1)),
		"upper":       newFunc("upper", Tokens("SNMPTT"), nil),
		"untrimmed":   newFunc("untrimmed", Tokens(" a"), nil),
		"blank":       newFunc("blank", Tokens(""), nil),
		"no criteria": newFunc("none", Criteria{}, nil),
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, b.Register(p), ErrInvalidDescriptor)
		})
	}
	assert.ErrorIs(t, b.Register(newFunc("override", Tokens("a"), nil), WithPriority(-3)), ErrInvalidDescriptor)
	assert.Equal(t, 1, b.Build().Len())
}

func TestPredicateCriteria(t *testing.T) {
	b, err := NewBuilder("")
	require.NoError(t, err)
	p, err := query.Parse(`summary:ldap AND NOT details.program:sshd`)
	require.NoError(t, err)
	require.NoError(t, b.Register(newFunc("ldap", Match(p), nil)))
	require.NoError(t, b.Register(newFunc("override", Tokens("x"), nil), WithCriteria(Match(query.MustTerm("tags", "vpn"))), WithPriority(1)))
	s := b.Build()

	assert.Equal(t, []string{"ldap"}, names(s.PlanFor(event.Event{"summary": "LDAP bind failed"})))
	assert.Empty(t, s.PlanFor(event.Event{"summary": "LDAP bind failed", "details": map[string]interface{}{"program": "sshd"}}))
	assert.Equal(t, []string{"override", "ldap"}, names(s.PlanFor(event.Event{"summary": "ldap", "tags": []interface{}{"VPN"}})))
}

// prefilterCorpus covers literal positions the prefilter must not miss.
func prefilterCorpus() []event.Event {
	return []event.Event{
		{"summary": "LDAP bind failed", "details": map[string]interface{}{"program": "slapd"}},
		{"summary": "example.com lookup", "details": map[string]interface{}{"program": "named"}},
		{"summary": "the example of com", "tags": []interface{}{"dns"}},
		{"summary": "don't panic", "severity": 7},
		{"summary": "link down on core-sw1", "details": map[string]interface{}{"program": "snmptt"}},
		{"summary": "xldap ldapx", "tags": []interface{}{"auth", map[string]interface{}{"nested": "vpn"}}},
		{"summary": []interface{}{"invalid", "credentials"}, "details": map[string]interface{}{"results": "LDAP_INVALID_CREDENTIALS"}},
		{"summary": nil},
		{},
	}
}

func prefilterPredicates() []query.Predicate {
	return []query.Predicate{
		query.MustTerm("summary", "ldap"),
		query.MustTerm("summary", "example.com"),
		query.MustTerm("summary", "example"),
		query.MustTerm("summary", "com"),
		query.MustTerm("summary", "don't"),
		query.MustTerm("severity", 7),
		query.MustTerm("summary", "foo bar"),
		query.MustTerm("details.results", "ldap_invalid_credentials"),
		query.MustPhrase("summary", "link down"),
		query.MustPhrase("summary", "invalid credentials"),
		query.MustPhrase("summary", "core sw1"),
		query.MustAnd(query.MustTerm("summary", "ldap"), query.MustRange("severity", 0, 10)),
		query.MustOr(query.MustTerm("tags", "dns"), query.MustTerm("tags", "auth")),
		query.MustOr(query.MustTerm("tags", "dns"), query.MustNot(query.MustTerm("summary", "ldap"))),
		query.MustNot(query.MustTerm("summary", "ldap")),
		query.MustRange("severity", 5, nil),
	}
}

func TestPrefilterNeverChangesPlan(t *testing.T) {
	b, err := NewBuilder("")
	require.NoError(t, err)
	for i, p := range prefilterPredicates() {
		require.NoError(t, b.Register(newFunc(fmt.Sprintf("p%02d", i), Match(p), nil)))
	}
	require.NoError(t, b.Register(newFunc("tok", Tokens("snmptt"), prio(50))))
	s := b.Build()
	assert.Positive(t, s.filter.PatternCount())

	for i, ev := range prefilterCorpus() {
		assert.Equal(t, names(s.planFor(ev, false)), names(s.PlanFor(ev)), "event %d", i)
	}

	// Random words drawn from the same vocabulary.
	vocab := []string{"ldap", "example.com", "example", "com", "don't", "link", "down", "core-sw1", "foo", "bar", "x", "ldapx", "7"}
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		n := r.Intn(6)
		words := make([]string, n)
		tags := make([]interface{}, n)
		for j := range words {
			words[j] = vocab[r.Intn(len(vocab))]
			tags[j] = words[j]
		}
		ev := event.Event{"summary": strings.Join(words, " "), "tags": tags}
		assert.Equal(t, names(s.planFor(ev, false)), names(s.PlanFor(ev)), "%v", ev)
	}
}

func TestRegistrySwapConcurrent(t *testing.T) {
	build := func(tag string, n int) *Snapshot {
		b, err := NewBuilder("")
		require.NoError(t, err)
		for i := 0; i < n; i++ {
			require.NoError(t, b.Register(newFunc(fmt.Sprintf("%s-%d", tag, i), Tokens("snmptt"), prio(i))))
		}
		return b.Build()
	}
	r := NewRegistry(build("old", 3))
	assert.Equal(t, uint64(1), r.Current().Generation())

	ev := event.Event{"details": map[string]interface{}{"program": "snmptt"}}
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				plan := r.Current().PlanFor(ev)
				// Every plan comes from exactly one snapshot.
				tag := plan[0].Name[:3]
				want := 3
				if tag == "new" {
					want = 5
				}
				if !assert.Len(t, plan, want) {
					return
				}
				for _, d := range plan {
					if !assert.Equal(t, tag, d.Name[:3]) {
						return
					}
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			r.Swap(build("new", 5))
		} else {
			_, err := r.Rebuild(func() (*Snapshot, error) { return build("old", 3), nil })
			require.NoError(t, err)
		}
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, uint64(201), r.Current().Generation())

	before := r.Current()
	_, err := r.Rebuild(func() (*Snapshot, error) { return nil, assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
	assert.Same(t, before, r.Current())
}

func TestCatalogBuild(t *testing.T) {
	cat := NewCatalog()
	cat.Register("func", func(pc config.PluginConf) (Plugin, error) {
		if pc.Params["fail"] == true {
			return nil, assert.AnError
		}
		return newFunc(pc.Name, Tokens("snmptt"), prio(7)), nil
	})
	assert.Equal(t, []string{"func"}, cat.Types())
	assert.Panics(t, func() { cat.Register("func", nil) })

	off := false
	cfg := config.Default()
	cfg.Plugins = []config.PluginConf{
		{Name: "a", Type: "func"},
		{Name: "b", Type: "func", Priority: prio(1), Criteria: config.CriteriaConf{Query: "summary:ldap"}},
		{Name: "c", Type: "func", Enabled: &off},
		{Name: "d", Type: "func", Criteria: config.CriteriaConf{Tokens: []string{"sshd"}}},
	}
	s, err := cat.Build(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "d"}, names(s.Descriptors()))
	assert.Equal(t, []string{"a"}, names(s.PlanFor(event.Event{"details": map[string]interface{}{"program": "snmptt"}})))
	assert.Equal(t, []string{"b", "d"}, names(s.PlanFor(event.Event{"summary": "ldap", "details": map[string]interface{}{"program": "sshd"}})))

	cfg.Plugins = append(cfg.Plugins, config.PluginConf{Name: "e", Type: "missing"})
	_, err = cat.Build(cfg)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	cfg.Plugins = []config.PluginConf{{Name: "f", Type: "func", Params: map[string]interface{}{"fail": true}}}
	_, err = cat.Build(cfg)
	assert.ErrorIs(t, err, assert.AnError)

	cfg.Plugins = []config.PluginConf{{Name: "g", Type: "func", Priority: prio(-1)}}
	_, err = cat.Build(cfg)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}
