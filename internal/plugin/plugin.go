// Package plugin defines the transformation plugin contract and the
// registry that orders plugins and selects them for an event.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/mqworker/internal/analysis"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/query"
)

// DefaultPriority applies to plugins that do not state one.
const DefaultPriority = 100

// ErrInvalidDescriptor is returned when a plugin cannot be registered.
var ErrInvalidDescriptor = errors.New("plugin: invalid descriptor")

// Plugin enriches or transforms events it registers interest in.
//
// Handle must not assume any field is present. It may mutate and return ev and
// md; the dispatcher hands it private copies and discards them on failure.
type Plugin interface {
	Name() string
	Criteria() Criteria
	// Priority returns the plugin's own priority; ok=false means DefaultPriority.
	Priority() (prio int, ok bool)
	Handle(ctx context.Context, ev event.Event, md event.Metadata) (event.Event, event.Metadata, error)
}

// Criteria selects the events a plugin runs on. It is either a token list
// compared against the registry's designated field or a full predicate.
// The zero value is invalid.
type Criteria struct {
	tokens    []string
	predicate query.Predicate
	isTokens  bool
}

// Tokens matches events whose designated field, case-folded and trimmed,
// equals one of tokens (any element when the field is multi-valued).
// An empty list matches nothing.
func Tokens(tokens ...string) Criteria {
	return Criteria{tokens: append([]string(nil), tokens...), isTokens: true}
}

// Match selects events matching p.
func Match(p query.Predicate) Criteria {
	return Criteria{predicate: p}
}

// TokenList returns a copy of the token list, or nil for predicate criteria.
func (c Criteria) TokenList() []string {
	if !c.isTokens {
		return nil
	}
	return append([]string(nil), c.tokens...)
}

// Predicate returns the predicate, or nil for token criteria.
func (c Criteria) Predicate() query.Predicate { return c.predicate }

func (c Criteria) String() string {
	if c.isTokens {
		return "tokens[" + strings.Join(c.tokens, ",") + "]"
	}
	if c.predicate == nil {
		return "<none>"
	}
	return c.predicate.String()
}

func (c Criteria) validate() error {
	if c.isTokens {
		for _, tok := range c.tokens {
			if tok == "" || strings.TrimSpace(tok) != tok || analysis.Fold(tok) != tok {
				return fmt.Errorf("token %q must be trimmed and lowercase", tok)
			}
		}
		return nil
	}
	if c.predicate == nil {
		return errors.New("criteria are required")
	}
	return nil
}

// Descriptor is a registered plugin with its resolved priority.
type Descriptor struct {
	Name     string
	Priority int
	Criteria Criteria
	Plugin   Plugin

	seq      int
	tokenSet map[string]struct{}
	literals []string
}

func (d *Descriptor) matches(designated event.Path, ev event.Event) bool {
	if !d.Criteria.isTokens {
		return query.Matches(d.Criteria.predicate, ev)
	}
	if len(d.tokenSet) == 0 {
		return false
	}
	v, ok := designated.Lookup(ev)
	if !ok {
		return false
	}
	for _, el := range analysis.Values(v) {
		s, ok := analysis.Text(el)
		if !ok {
			continue
		}
		if _, hit := d.tokenSet[analysis.Fold(strings.TrimSpace(s))]; hit {
			return true
		}
	}
	return false
}

// Func adapts a plain function into a Plugin.
type Func struct {
	PluginName     string
	PluginCriteria Criteria
	PluginPriority *int
	Fn             func(ctx context.Context, ev event.Event, md event.Metadata) (event.Event, event.Metadata, error)
}

func (f *Func) Name() string       { return f.PluginName }
func (f *Func) Criteria() Criteria { return f.PluginCriteria }

func (f *Func) Priority() (int, bool) {
	if f.PluginPriority == nil {
		return 0, false
	}
	return *f.PluginPriority, true
}

func (f *Func) Handle(ctx context.Context, ev event.Event, md event.Metadata) (event.Event, event.Metadata, error) {
	return f.Fn(ctx, ev, md)
}
