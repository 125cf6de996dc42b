// Package tagger is a config-driven plugin that tags matching events, sets
// fixed field values and routes them to another index.
package tagger

import (
	"context"
	"fmt"
	"sort"

	"github.com/gyaneshwarpardhi/mqworker/internal/config"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/plugin"
	"github.com/gyaneshwarpardhi/mqworker/internal/query"
)

// Type is the catalog type name.
const Type = "tagger"

// Tagger applies fixed mutations to every event its criteria select.
//
// Params:
//
//	tags:     [string]        appended to the event's tags list, skipping duplicates
//	set:      {path: value}   a copy stored at each dotted path, in path order
//	index:    string          metadata index for downstream routing
//	doc_type: string          metadata document type
type Tagger struct {
	name     string
	criteria plugin.Criteria
	tags     []string
	set      map[string]interface{}
	setOrder []string
	index    string
	docType  string
}

// Factory builds a Tagger from its config entry. Criteria are required.
func Factory(conf config.PluginConf) (plugin.Plugin, error) {
	t := &Tagger{name: conf.Name}
	switch {
	case conf.Criteria.Query != "":
		pred, err := query.Parse(conf.Criteria.Query)
		if err != nil {
			return nil, err
		}
		t.criteria = plugin.Match(pred)
	case conf.Criteria.Tokens != nil:
		t.criteria = plugin.Tokens(conf.Criteria.Tokens...)
	default:
		return nil, fmt.Errorf("tagger %s: criteria are required", conf.Name)
	}

	var err error
	if t.tags, err = stringList(conf.Params["tags"]); err != nil {
		return nil, fmt.Errorf("tagger %s: tags: %w", conf.Name, err)
	}
	if t.index, err = optString(conf.Params["index"]); err != nil {
		return nil, fmt.Errorf("tagger %s: index: %w", conf.Name, err)
	}
	if t.docType, err = optString(conf.Params["doc_type"]); err != nil {
		return nil, fmt.Errorf("tagger %s: doc_type: %w", conf.Name, err)
	}
	if raw, ok := conf.Params["set"]; ok {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("tagger %s: set must be a mapping, got %T", conf.Name, raw)
		}
		t.set = event.Event(m).Clone()
		for path := range m {
			if _, err := event.ParsePath(path); err != nil {
				return nil, fmt.Errorf("tagger %s: set: %w", conf.Name, err)
			}
			t.setOrder = append(t.setOrder, path)
		}
		sort.Strings(t.setOrder)
	}
	return t, nil
}

func (t *Tagger) Name() string { return t.name }

func (t *Tagger) Criteria() plugin.Criteria { return t.criteria }

func (t *Tagger) Priority() (int, bool) { return 0, false }

func (t *Tagger) Handle(ctx context.Context, ev event.Event, md event.Metadata) (event.Event, event.Metadata, error) {
	if len(t.tags) > 0 {
		ev["tags"] = appendTags(ev["tags"], t.tags)
	}
	for _, path := range t.setOrder {
		if err := ev.Set(path, event.CloneValue(t.set[path])); err != nil {
			return nil, nil, err
		}
	}
	if t.index != "" {
		md[event.MetaIndex] = t.index
	}
	if t.docType != "" {
		md[event.MetaDocType] = t.docType
	}
	return ev, md, nil
}

// appendTags merges tags into an existing tags value. A scalar becomes the
// first element of the list.
func appendTags(existing interface{}, tags []string) []interface{} {
	var out []interface{}
	seen := make(map[string]struct{})
	add := func(v interface{}) {
		if s, ok := v.(string); ok {
			if _, dup := seen[s]; dup {
				return
			}
			seen[s] = struct{}{}
		}
		out = append(out, v)
	}
	switch e := existing.(type) {
	case nil:
	case []interface{}:
		for _, v := range e {
			add(v)
		}
	case []string:
		for _, v := range e {
			add(v)
		}
	default:
		add(e)
	}
	for _, tag := range tags {
		add(tag)
	}
	return out
}

func stringList(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []string:
		return t, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, x := range t {
			s, ok := x.(string)
			if !ok {
				return nil, fmt.Errorf("expected strings, got %T", x)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list of strings, got %T", v)
}

func optString(v interface{}) (string, error) {
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected a string, got %T", v)
	}
	return s, nil
}
