// pkg/config/types.go
package config

import "time"

// Config is the root configuration structure for fileops.
type Config struct {
	Log    LogConfig    `description:"Logging configuration" koanf:"log" yaml:"log"`
	Engine EngineConfig `description:"Job engine connection" koanf:"engine" yaml:"engine"`
	Jobs   JobsConfig   `description:"Job coordination tuning" koanf:"jobs" yaml:"jobs"`
	Queue  QueueConfig  `description:"Operation queue defaults" koanf:"queue" yaml:"queue"`
}

// LogConfig holds logging related configuration.
type LogConfig struct {
	Level  string `description:"Log level: trace | debug | info | warn | error" koanf:"level" yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `description:"Log format: text | json" koanf:"format" yaml:"format" validate:"oneof=text json"`
	File   string `description:"Log file path" koanf:"file" yaml:"file"`
}

// EngineConfig describes how to reach the job engine.
type EngineConfig struct {
	URL string `description:"Engine HTTP base URL" koanf:"url" yaml:"url" validate:"required,url"`
	// EventsURL is the base for job channels. Empty derives it from URL.
	EventsURL      string        `description:"Engine websocket base URL" koanf:"events_url" yaml:"events_url" validate:"omitempty,url"`
	RequestTimeout time.Duration `description:"Per-request HTTP timeout" koanf:"request_timeout" yaml:"request_timeout" validate:"gt=0"`
	MinVersion     string        `description:"Semver constraint the engine version must satisfy" koanf:"min_version" yaml:"min_version"`
	Retry          RetryConfig   `description:"Retry policy for idempotent engine calls" koanf:"retry" yaml:"retry"`
}

// RetryConfig mirrors engineclient.RetryConfig for file and env sources.
type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" yaml:"max_attempts" validate:"min=1"`
	InitialWait time.Duration `koanf:"initial_wait" yaml:"initial_wait" validate:"gte=0"`
	MaxWait     time.Duration `koanf:"max_wait" yaml:"max_wait" validate:"gtefield=InitialWait"`
}

// JobsConfig tunes running jobs. Both values can change while running.
type JobsConfig struct {
	CancelTimeout time.Duration `description:"How long a cancel waits for engine confirmation" koanf:"cancel_timeout" yaml:"cancel_timeout" validate:"gt=0"`
	// ProgressInterval of zero notifies on every progress frame.
	ProgressInterval time.Duration `description:"Minimum interval between progress notifications" koanf:"progress_interval" yaml:"progress_interval" validate:"gte=0"`
}

// QueueConfig holds defaults for multi-archive runs.
type QueueConfig struct {
	ForceSubfolder bool `description:"Extract every archive into its own subfolder" koanf:"force_subfolder" yaml:"force_subfolder"`
}
