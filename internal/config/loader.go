package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Loader reads a YAML config file and watches it for changes.
type Loader struct {
	path     string
	reload   sync.Mutex
	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config) error
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Path returns the watched file.
func (l *Loader) Path() string { return l.path }

// Config returns the current (latest) configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked with every freshly read config. A
// callback error rejects the new config.
func (l *Loader) OnChange(fn func(*Config) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the config on file changes.
// Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						log.Error().Err(err).Str("path", l.path).Msg("config reload failed, keeping previous config")
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Str("path", l.path).Msg("config watcher error")
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the config file. The new config
// becomes current only when it parses and every callback accepts it.
func (l *Loader) Reload() (*Config, error) {
	l.reload.Lock()
	defer l.reload.Unlock()

	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.RLock()
	callbacks := make([]func(*Config) error, len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.RUnlock()

	var errs []error
	for _, fn := range callbacks {
		if err := fn(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("reject config %s: %w", l.path, err)
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", l.path, err)
	}
	return cfg, nil
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with every default applied and no plugins.
func Default() *Config {
	cfg := &Config{Version: "1"}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	d := &cfg.Dispatch
	if d.Workers == 0 {
		d.Workers = 8
	}
	if d.QueueDepth == 0 {
		d.QueueDepth = 1000
	}
	if d.PluginTimeoutMs == 0 {
		d.PluginTimeoutMs = 2000
	}
	if d.EventTimeoutMs == 0 {
		d.EventTimeoutMs = 10000
	}
	if d.DesignatedField == "" {
		d.DesignatedField = "details.program"
	}
	if cfg.MQ.Subject == "" {
		cfg.MQ.Subject = "eventtask"
	}
	if cfg.MQ.QueueGroup == "" {
		cfg.MQ.QueueGroup = "mqworker"
	}
	if cfg.Sink.Kind == "" {
		cfg.Sink.Kind = "log"
	}
	h := &cfg.Health
	if len(h.ESServers) == 0 {
		h.ESServers = []string{"http://localhost:9200"}
	}
	if h.Index == "" {
		h.Index = "events"
	}
	if h.Window == 0 {
		h.Window = time.Minute
	}
	if h.Interval == 0 {
		h.Interval = time.Minute
	}
	if h.MongoURI == "" {
		h.MongoURI = "mongodb://localhost:3002"
	}
	if h.Database == "" {
		h.Database = "meteor"
	}
	if h.Collection == "" {
		h.Collection = "healthfrontend"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
}
