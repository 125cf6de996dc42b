// Package snmptt parses trap summaries written by the snmptt trap translator.
package snmptt

import (
	"context"
	"regexp"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/plugin"
)

// Type is the catalog type name.
const Type = "snmptt"

// Priority runs the parser ahead of plugins that rely on the trap fields.
const Priority = 5

var trapRe = regexp.MustCompile(`(?P<trapname>\S+) (?P<trapseverity>\S+) "Status Events" (?P<source_host>\S+) - (?P<trappayload>.*)`)

// Parser copies the trap name, severity, source host and payload out of the
// summary into details. details.hostname is set to the source host.
type Parser struct {
	name string
}

// New returns a parser registered under name ("snmptt" when empty).
func New(name string) *Parser {
	if name == "" {
		name = Type
	}
	return &Parser{name: name}
}

// Factory builds a Parser from its config entry.
func Factory(conf config.PluginConf) (plugin.Plugin, error) {
	return New(conf.Name), nil
}

func (p *Parser) Name() string { return p.name }

func (p *Parser) Criteria() plugin.Criteria { return plugin.Tokens("snmptt") }

func (p *Parser) Priority() (int, bool) { return Priority, true }

func (p *Parser) Handle(ctx context.Context, ev event.Event, md event.Metadata) (event.Event, event.Metadata, error) {
	if prog, _ := ev.LookupString("details.program"); prog != "snmptt" {
		return ev, md, nil
	}
	summary, ok := ev["summary"].(string)
	if !ok {
		return ev, md, nil
	}
	m := trapRe.FindStringSubmatch(summary)
	if m == nil {
		return ev, md, nil
	}
	for i, name := range trapRe.SubexpNames() {
		if name == "" {
			continue
		}
		if err := ev.Set("details."+name, m[i]); err != nil {
			return nil, nil, err
		}
	}
	if err := ev.Set("details.hostname", m[trapRe.SubexpIndex("source_host")]); err != nil {
		return nil, nil, err
	}
	return ev, md, nil
}
