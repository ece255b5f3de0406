// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ErrInvalidConfig wraps every validation failure of a loaded configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// Manager handles loading and accessing application configuration.
type Manager struct {
	mu            sync.RWMutex // protects koanfInstance, currentConfig and sources
	koanfInstance *koanf.Koanf
	currentConfig Config
	sources       []ConfigSource
}

// NewManager creates a Manager holding the default configuration.
func NewManager() *Manager {
	return &Manager{
		koanfInstance: koanf.New("."),
		currentConfig: DefaultConfig(),
	}
}

// DefaultConfig returns a new Config struct populated with hardcoded default values.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Engine: EngineConfig{
			URL:            "http://127.0.0.1:7421",
			RequestTimeout: 30 * time.Second,
			Retry: RetryConfig{
				MaxAttempts: 3,
				InitialWait: 200 * time.Millisecond,
				MaxWait:     5 * time.Second,
			},
		},
		Jobs: JobsConfig{
			CancelTimeout:    10 * time.Second,
			ProgressInterval: 100 * time.Millisecond,
		},
	}
}

// DefaultConfigAsMap flattens DefaultConfig for koanf's confmap provider so
// every key is known before files, env and flags are layered on top.
func DefaultConfigAsMap() map[string]any {
	def := DefaultConfig()
	return map[string]any{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		"engine.url":                def.Engine.URL,
		"engine.events_url":         def.Engine.EventsURL,
		"engine.request_timeout":    def.Engine.RequestTimeout,
		"engine.min_version":        def.Engine.MinVersion,
		"engine.retry.max_attempts": def.Engine.Retry.MaxAttempts,
		"engine.retry.initial_wait": def.Engine.Retry.InitialWait,
		"engine.retry.max_wait":     def.Engine.Retry.MaxWait,

		"jobs.cancel_timeout":    def.Jobs.CancelTimeout,
		"jobs.progress_interval": def.Jobs.ProgressInterval,

		"queue.force_subfolder": def.Queue.ForceSubfolder,
	}
}

// Load loads configuration from the default sources: defaults, the config
// file at path, FILEOPS_* environment variables and flags.
func (m *Manager) Load(flags *pflag.FlagSet, path string) error {
	debug := false
	if flags != nil {
		if f := flags.Lookup("debug"); f != nil && f.Value.String() == "true" {
			debug = true
		}
	}
	return m.LoadWithSources(DefaultSources(path, flags, debug))
}

// LoadWithSources loads the given sources in ascending priority order into a
// fresh koanf instance. The manager keeps its previous configuration if any
// source fails or the merged result does not validate.
func (m *Manager) LoadWithSources(sources []ConfigSource) error {
	ordered := slices.Clone(sources)
	slices.SortStableFunc(ordered, func(a, b ConfigSource) int {
		return a.Priority() - b.Priority()
	})

	k := koanf.New(".")
	for _, src := range ordered {
		if err := src.Load(k); err != nil {
			return fmt.Errorf("source %s: %w", src.Name(), err)
		}
	}

	var newCfg Config
	if err := k.UnmarshalWithConf("", &newCfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	postProcessConfig(&newCfg)
	if err := validate.Struct(newCfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	m.mu.Lock()
	m.koanfInstance = k
	m.currentConfig = newCfg
	m.sources = ordered
	m.mu.Unlock()
	return nil
}

// Reload re-reads the sources of the last successful load.
func (m *Manager) Reload() (Config, error) {
	m.mu.RLock()
	sources := m.sources
	m.mu.RUnlock()
	if len(sources) == 0 {
		return m.Get(), nil
	}
	if err := m.LoadWithSources(sources); err != nil {
		return m.Get(), err
	}
	return m.Get(), nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentConfig
}

// FilePath returns the config file of the last load, if any.
func (m *Manager) FilePath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, src := range m.sources {
		if fs, ok := src.(*FileSource); ok {
			return fs.Path
		}
	}
	return ""
}

// String returns the value of a single key as loaded.
func (m *Manager) String(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.koanfInstance.String(key)
}

// postProcessConfig fills values derived from others.
func postProcessConfig(cfg *Config) {
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if cfg.Engine.EventsURL == "" {
		cfg.Engine.EventsURL = EventsURLFor(cfg.Engine.URL)
	}
}

// EventsURLFor derives the job channel base from an engine HTTP base URL:
// the same host with a websocket scheme, under /api/v1/jobs.
func EventsURLFor(engineURL string) string {
	base := strings.TrimRight(engineURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/v1/jobs"
}

// BindFlags defines command-line flags corresponding to configuration settings.
// Flag names are the koanf keys so posflag maps them without a callback.
func BindFlags(flags *pflag.FlagSet) {
	defaults := DefaultConfig()

	flags.Bool("debug", false, "Enable debug logging")
	flags.String("log.format", defaults.Log.Format, "Log format (text, json)")
	flags.String("log.file", defaults.Log.File, "Path to log file (optional, leave empty for stderr)")
	flags.String("engine.url", defaults.Engine.URL, "Job engine base URL")
	flags.Duration("jobs.cancel_timeout", defaults.Jobs.CancelTimeout, "How long a cancel waits for engine confirmation")
	flags.Duration("jobs.progress_interval", defaults.Jobs.ProgressInterval, "Minimum interval between progress updates (0 = every update)")
}
