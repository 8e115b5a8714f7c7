// Package config loads the pgwire-probe YAML configuration and watches it
// for changes, adapted from the teacher's internal/config/config.go: the
// same ${VAR} environment substitution, yaml.v3 unmarshal, validate-then-
// default pipeline, and fsnotify-backed hot-reload watcher, retargeted from
// tenant pool definitions to named pgwire connection targets.
package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the top-level pgwire-probe configuration.
type Config struct {
	Listen      ListenConfig                `yaml:"listen"`
	Probe       ProbeDefaults               `yaml:"probe"`
	Connections map[string]ConnectionConfig `yaml:"connections"`
}

// ListenConfig is the bind address for the stats HTTP surface
// (internal/statsserver).
type ListenConfig struct {
	APIPort int    `yaml:"api_port"`
	APIBind string `yaml:"api_bind"`
}

// ProbeDefaults applies to any ConnectionConfig that doesn't override them.
type ProbeDefaults struct {
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	Query            string        `yaml:"query"`
	FailureThreshold int           `yaml:"failure_threshold"`
}

// ConnectionConfig describes one named pgwire target and its per-connection
// overrides of the probe defaults.
type ConnectionConfig struct {
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	Database string         `yaml:"database"`
	Username string         `yaml:"username"`
	Password string         `yaml:"password"`
	Interval *time.Duration `yaml:"interval,omitempty"`
	Timeout  *time.Duration `yaml:"timeout,omitempty"`
	Query    *string        `yaml:"query,omitempty"`
}

// ConnString renders the semicolon-separated key=value form internal/dsn
// parses.
func (c ConnectionConfig) ConnString() string {
	return fmt.Sprintf("host=%s;port=%d;database=%s;username=%s;password=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password)
}

// EffectiveInterval returns the connection's probe interval or the default.
func (c ConnectionConfig) EffectiveInterval(defaults ProbeDefaults) time.Duration {
	if c.Interval != nil {
		return *c.Interval
	}
	return defaults.Interval
}

// EffectiveTimeout returns the connection's probe timeout or the default.
func (c ConnectionConfig) EffectiveTimeout(defaults ProbeDefaults) time.Duration {
	if c.Timeout != nil {
		return *c.Timeout
	}
	return defaults.Timeout
}

// EffectiveQuery returns the connection's liveness query or the default.
func (c ConnectionConfig) EffectiveQuery(defaults ProbeDefaults) string {
	if c.Query != nil {
		return *c.Query
	}
	return defaults.Query
}

// Redacted returns a copy of c with Password masked, for logging.
func (c ConnectionConfig) Redacted() ConnectionConfig {
	if c.Password != "" {
		c.Password = "***REDACTED***"
	}
	return c
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with ${VAR} env substitution.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen.APIPort == 0 {
		cfg.Listen.APIPort = 8080
	}
	if cfg.Listen.APIBind == "" {
		cfg.Listen.APIBind = "127.0.0.1"
	}
	if cfg.Probe.Interval == 0 {
		cfg.Probe.Interval = 30 * time.Second
	}
	if cfg.Probe.Timeout == 0 {
		cfg.Probe.Timeout = 5 * time.Second
	}
	if cfg.Probe.Query == "" {
		cfg.Probe.Query = "SELECT 1"
	}
	if cfg.Probe.FailureThreshold == 0 {
		cfg.Probe.FailureThreshold = 3
	}
}

func validate(cfg *Config) error {
	for name, conn := range cfg.Connections {
		if conn.Host == "" {
			return fmt.Errorf("connection %q: host is required", name)
		}
		if conn.Port == 0 {
			return fmt.Errorf("connection %q: port is required", name)
		}
		if conn.Username == "" {
			return fmt.Errorf("connection %q: username is required", name)
		}
	}
	return nil
}

// Watcher watches a config file for changes and calls back with the new
// config, debouncing rapid successive writes.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a new config file watcher.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cw.reload()
				})
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watcher error: %v", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[config] hot-reload failed: %v", err)
		return
	}

	log.Printf("[config] configuration reloaded from %s", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
