package config

import "time"

// Config is the top-level YAML structure.
type Config struct {
	Version  string       `yaml:"version"`
	Log      LogConf      `yaml:"log"`
	Dispatch DispatchConf `yaml:"dispatch"`
	Plugins  []PluginConf `yaml:"plugins"`
	MQ       MQConf       `yaml:"mq"`
	Sink     SinkConf     `yaml:"sink"`
	Health   HealthConf   `yaml:"health"`
	HTTP     HTTPConf     `yaml:"http"`
}

// LogConf selects the log level and output format (console or json).
type LogConf struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DispatchConf holds tunable concurrency settings.
type DispatchConf struct {
	Workers         int    `yaml:"workers"`
	QueueDepth      int    `yaml:"queue_depth"`
	PluginTimeoutMs int    `yaml:"plugin_timeout_ms"`
	EventTimeoutMs  int    `yaml:"event_timeout_ms"`
	DesignatedField string `yaml:"designated_field"`
}

// PluginTimeout returns the per-plugin handler budget.
func (d DispatchConf) PluginTimeout() time.Duration {
	return time.Duration(d.PluginTimeoutMs) * time.Millisecond
}

// EventTimeout returns how long a synchronous dispatch may wait.
func (d DispatchConf) EventTimeout() time.Duration {
	return time.Duration(d.EventTimeoutMs) * time.Millisecond
}

// PluginConf instantiates one plugin from the catalog.
type PluginConf struct {
	Name     string                 `yaml:"name"`
	Type     string                 `yaml:"type"`
	Enabled  *bool                  `yaml:"enabled,omitempty"`  // nil = enabled
	Priority *int                   `yaml:"priority,omitempty"` // nil = plugin's own
	Criteria CriteriaConf           `yaml:"criteria"`
	Params   map[string]interface{} `yaml:"params"`
}

// IsEnabled reports whether the plugin should be registered.
func (p PluginConf) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// CriteriaConf is a discriminated union: at most one of Tokens or Query is set.
// Neither set keeps the plugin's built-in criteria.
type CriteriaConf struct {
	Tokens []string `yaml:"tokens,omitempty"`
	Query  string   `yaml:"query,omitempty"`
}

// IsZero reports whether no criteria override is configured.
func (c CriteriaConf) IsZero() bool {
	return c.Tokens == nil && c.Query == ""
}

// MQConf configures the inbound NATS subscription.
type MQConf struct {
	URL        string `yaml:"url"`
	Subject    string `yaml:"subject"`
	QueueGroup string `yaml:"queue_group"`
}

// SinkConf selects where dispatched events are published.
type SinkConf struct {
	Kind          string   `yaml:"kind"` // nats | kafka | log
	URL           string   `yaml:"url"`
	Brokers       []string `yaml:"brokers"`
	SubjectPrefix string   `yaml:"subject_prefix"`
}

// HealthConf configures the health shipper.
type HealthConf struct {
	ESServers  []string      `yaml:"es_servers"`
	Index      string        `yaml:"index"`
	Window     time.Duration `yaml:"window"`
	Interval   time.Duration `yaml:"interval"`
	MongoURI   string        `yaml:"mongo_uri"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
}

// HTTPConf holds the API listen address.
type HTTPConf struct {
	Addr string `yaml:"addr"`
}
