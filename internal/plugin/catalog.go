package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
	"github.com/gyaneshwarpardhi/mqworker/internal/query"
)

// Factory builds a plugin from its config entry.
type Factory func(conf config.PluginConf) (Plugin, error)

// Catalog maps plugin type names to factories. Register should only be
// called at startup; lookups are safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory. Panics on duplicate type to surface misconfiguration early.
func (c *Catalog) Register(typ string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.factories[typ]; exists {
		panic(fmt.Sprintf("plugin catalog: duplicate type %q", typ))
	}
	c.factories[typ] = f
}

// Types returns all registered type names, sorted.
func (c *Catalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.factories))
	for k := range c.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) get(typ string) (Factory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[typ]
	if !ok {
		return nil, fmt.Errorf("%w: no factory registered for plugin type %q", ErrInvalidDescriptor, typ)
	}
	return f, nil
}

// Build instantiates every enabled plugin of cfg and returns the resulting
// snapshot. Any failure aborts the whole build.
func (c *Catalog) Build(cfg *config.Config) (*Snapshot, error) {
	b, err := NewBuilder(cfg.Dispatch.DesignatedField)
	if err != nil {
		return nil, err
	}
	for _, pc := range cfg.Plugins {
		if !pc.IsEnabled() {
			continue
		}
		f, err := c.get(pc.Type)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", pc.Name, err)
		}
		p, err := f(pc)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", pc.Name, err)
		}
		opts, err := overrides(pc)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", pc.Name, err)
		}
		if err := b.Register(p, opts...); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

func overrides(pc config.PluginConf) ([]Option, error) {
	var opts []Option
	if pc.Priority != nil {
		opts = append(opts, WithPriority(*pc.Priority))
	}
	switch {
	case pc.Criteria.Query != "":
		pred, err := query.Parse(pc.Criteria.Query)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithCriteria(Match(pred)))
	case pc.Criteria.Tokens != nil:
		opts = append(opts, WithCriteria(Tokens(pc.Criteria.Tokens...)))
	}
	return opts, nil
}
