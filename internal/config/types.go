package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Store configures the tenant configuration backend.
	Store StoreConfig `json:"store"`

	// Dispatch tunes the delivery pipeline. Omitted fields use defaults.
	Dispatch DispatchConfig `json:"dispatch,omitempty"`

	// Maintenance holds the cron spec for store housekeeping.
	// Empty disables the maintenance scheduler.
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`

	Metrics MetricsConfig `json:"metrics,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StoreConfig selects the tenant store driver.
//
// Example:
//
//	"store": { "driver": "file", "path": "./warden_store" }
type StoreConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// DispatchConfig controls the async delivery pipeline.
// All durations are Go duration strings (e.g. "500ms", "10s").
type DispatchConfig struct {
	Workers     int    `json:"workers,omitempty"`
	QueueSize   int    `json:"queue_size,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
}

type MaintenanceConfig struct {
	// Schedule is a standard 5-field cron expression.
	Schedule string `json:"schedule,omitempty"`
}

// MetricsConfig controls the optional metrics/pprof HTTP listener.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9180").
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:9180"
	Pprof   bool   `json:"pprof,omitempty"`
}
