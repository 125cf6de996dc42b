package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gyaneshwarpardhi/mqworker/internal/analysis"
	"github.com/gyaneshwarpardhi/mqworker/internal/event"
	"github.com/gyaneshwarpardhi/mqworker/internal/query"
)

// Validate checks the config for:
//   - Duplicate plugin names
//   - Unknown plugin types (when pluginTypes is non-nil)
//   - Negative priorities and malformed criteria
//   - Required fields and sane dispatch limits
func Validate(cfg *Config, pluginTypes []string) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string

	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level: %v", err))
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format: unknown format %q", cfg.Log.Format))
	}

	d := cfg.Dispatch
	if d.Workers < 1 {
		errs = append(errs, "dispatch.workers must be at least 1")
	}
	if d.QueueDepth < 1 {
		errs = append(errs, "dispatch.queue_depth must be at least 1")
	}
	if d.PluginTimeoutMs < 0 || d.EventTimeoutMs < 0 {
		errs = append(errs, "dispatch timeouts must not be negative")
	}
	if _, err := event.ParsePath(d.DesignatedField); err != nil {
		errs = append(errs, fmt.Sprintf("dispatch.designated_field: %v", err))
	}

	known := make(map[string]bool, len(pluginTypes))
	for _, t := range pluginTypes {
		known[t] = true
	}
	names := make(map[string]int)
	for i, p := range cfg.Plugins {
		loc := fmt.Sprintf("plugins[%d]", i)
		if p.Name == "" {
			errs = append(errs, loc+": name is required")
		} else {
			loc = fmt.Sprintf("plugin %s", p.Name)
			if prev, ok := names[p.Name]; ok {
				errs = append(errs, fmt.Sprintf("duplicate plugin name %q (plugins[%d] and plugins[%d])", p.Name, prev, i))
			} else {
				names[p.Name] = i
			}
		}
		switch {
		case p.Type == "":
			errs = append(errs, loc+": type is required")
		case pluginTypes != nil && !known[p.Type]:
			errs = append(errs, fmt.Sprintf("%s: unknown type %q", loc, p.Type))
		}
		if p.Priority != nil && *p.Priority < 0 {
			errs = append(errs, fmt.Sprintf("%s: priority %d must not be negative", loc, *p.Priority))
		}
		validateCriteria(p.Criteria, loc, &errs)
	}

	switch cfg.Sink.Kind {
	case "log", "nats":
	case "kafka":
		if len(cfg.Sink.Brokers) == 0 {
			errs = append(errs, "sink.brokers is required for kind kafka")
		}
	default:
		errs = append(errs, fmt.Sprintf("sink.kind: unknown kind %q", cfg.Sink.Kind))
	}

	if cfg.Health.Window < 0 || cfg.Health.Interval < 0 {
		errs = append(errs, "health window and interval must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateCriteria(c CriteriaConf, loc string, errs *[]string) {
	if c.Tokens != nil && c.Query != "" {
		*errs = append(*errs, loc+": only one of criteria.tokens/criteria.query may be set")
		return
	}
	for j, tok := range c.Tokens {
		if tok == "" || strings.TrimSpace(tok) != tok || analysis.Fold(tok) != tok {
			*errs = append(*errs, fmt.Sprintf("%s: criteria.tokens[%d] %q must be a trimmed lowercase token", loc, j, tok))
		}
	}
	if c.Query != "" {
		if _, err := query.Parse(c.Query); err != nil {
			*errs = append(*errs, fmt.Sprintf("%s: criteria.query: %v", loc, err))
		}
	}
}
