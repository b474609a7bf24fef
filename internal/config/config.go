// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Durations are configured in milliseconds and exposed through helpers.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// RegistryPath points at a YAML registry; empty uses the bundled one.
	RegistryPath string `koanf:"registry_path"`

	// DedupCapacity bounds each connection's dedup window.
	DedupCapacity int `koanf:"dedup_capacity"`

	// PaceIntervalMS is the minimum gap between accepted payloads.
	PaceIntervalMS int `koanf:"pace_interval_ms"`

	// LapIntervalMS is the delay between laps of a running race.
	LapIntervalMS int `koanf:"lap_interval_ms"`

	// TotalLaps is the race distance.
	TotalLaps int `koanf:"total_laps"`

	// MaxSwapsPerLap bounds overtakes resolved in one lap.
	MaxSwapsPerLap int `koanf:"max_swaps_per_lap"`

	// DisableRaceCraft turns off track bonuses and incidents.
	DisableRaceCraft bool `koanf:"disable_race_craft"`

	// Seed fixes the fallback heuristic; 0 picks a random seed per session.
	Seed uint64 `koanf:"seed"`

	// OracleURL selects the remote prediction service; empty uses the in-process model.
	OracleURL string `koanf:"oracle_url"`

	// OracleTimeoutMS bounds each prediction before the heuristic takes over.
	OracleTimeoutMS int `koanf:"oracle_timeout_ms"`

	// OracleWorkers and OracleQueueSize size the prediction pool.
	OracleWorkers   int `koanf:"oracle_workers"`
	OracleQueueSize int `koanf:"oracle_queue_size"`

	// ModelLatencyMinMS and ModelLatencyMaxMS simulate in-process model latency bounds.
	ModelLatencyMinMS int `koanf:"model_latency_min_ms"`
	ModelLatencyMaxMS int `koanf:"model_latency_max_ms"`

	// SessionMailboxSize bounds queued commands per session.
	SessionMailboxSize int `koanf:"session_mailbox_size"`

	// WriteTimeoutMS bounds a single websocket write.
	WriteTimeoutMS int `koanf:"write_timeout_ms"`

	// OTelEndpoint enables OTLP/HTTP tracing when set.
	OTelEndpoint string `koanf:"otel_endpoint"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		DedupCapacity:      100,
		PaceIntervalMS:     50,
		LapIntervalMS:      1500,
		TotalLaps:          10,
		MaxSwapsPerLap:     3,
		OracleTimeoutMS:    250,
		OracleWorkers:      runtime.NumCPU() * 2,
		OracleQueueSize:    256,
		ModelLatencyMinMS:  20,
		ModelLatencyMaxMS:  80,
		SessionMailboxSize: 64,
		WriteTimeoutMS:     5000,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DedupCapacity < 2:
		return fmt.Errorf("%w: dedup_capacity must be at least 2, got %d", ErrInvalidConfig, c.DedupCapacity)
	case c.TotalLaps < 1:
		return fmt.Errorf("%w: total_laps must be at least 1, got %d", ErrInvalidConfig, c.TotalLaps)
	case c.PaceIntervalMS < 0:
		return fmt.Errorf("%w: pace_interval_ms must not be negative, got %d", ErrInvalidConfig, c.PaceIntervalMS)
	case c.OracleTimeoutMS <= 0:
		return fmt.Errorf("%w: oracle_timeout_ms must be positive, got %d", ErrInvalidConfig, c.OracleTimeoutMS)
	case c.LapIntervalMS < 0:
		return fmt.Errorf("%w: lap_interval_ms must not be negative, got %d", ErrInvalidConfig, c.LapIntervalMS)
	case c.ModelLatencyMaxMS < c.ModelLatencyMinMS:
		return fmt.Errorf("%w: model_latency_max_ms below model_latency_min_ms", ErrInvalidConfig)
	}
	return nil
}

// PaceInterval returns PaceIntervalMS as a duration.
func (c *Config) PaceInterval() time.Duration { return ms(c.PaceIntervalMS) }

// LapInterval returns LapIntervalMS as a duration.
func (c *Config) LapInterval() time.Duration { return ms(c.LapIntervalMS) }

// OracleTimeout returns OracleTimeoutMS as a duration.
func (c *Config) OracleTimeout() time.Duration { return ms(c.OracleTimeoutMS) }

// WriteTimeout returns WriteTimeoutMS as a duration.
func (c *Config) WriteTimeout() time.Duration { return ms(c.WriteTimeoutMS) }

// ModelLatency returns the simulated model latency bounds.
func (c *Config) ModelLatency() (time.Duration, time.Duration) {
	return ms(c.ModelLatencyMinMS), ms(c.ModelLatencyMaxMS)
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
