package pagination

import "time"

// Default limits.
const (
	// DefaultRowBudget is divided by the source's column count to derive a
	// page row cap when a 408 arrives before any cap was set.
	DefaultRowBudget = 100 * 1000

	// DefaultMinPageRowCap is the floor below which shrinking gives up.
	DefaultMinPageRowCap = 40

	// DefaultMaxStoredRows is the row ceiling of one stored-mode call.
	DefaultMaxStoredRows = 2000000

	// DefaultWorkers is the worker pool size of a BatchFetcher.
	DefaultWorkers = 3
)

// Config holds paginator and batch fetcher configuration.
type Config struct {
	// PageRowCap is used for requests that do not set their own cap.
	// Zero leaves the page size to the upstream.
	PageRowCap int `yaml:"page_row_cap" validate:"gte=0"`

	RowBudget     int `yaml:"row_budget" validate:"gt=0"`
	MinPageRowCap int `yaml:"min_page_row_cap" validate:"gt=0"`
	MaxStoredRows int `yaml:"max_stored_rows" validate:"gt=0"`
	Workers       int `yaml:"workers" validate:"gt=0"`

	// ValidateInterval checks the HH:MM:SS interval format of interpolated
	// requests that are not flagged SubSecond.
	ValidateInterval bool `yaml:"validate_interval"`

	Retry RetryConfig `yaml:"retry"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RowBudget:        DefaultRowBudget,
		MinPageRowCap:    DefaultMinPageRowCap,
		MaxStoredRows:    DefaultMaxStoredRows,
		Workers:          DefaultWorkers,
		ValidateInterval: true,
		Retry:            DefaultRetryConfig(),
	}
}

// withDefaults fills zero values with defaults.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RowBudget <= 0 {
		c.RowBudget = def.RowBudget
	}
	if c.MinPageRowCap <= 0 {
		c.MinPageRowCap = def.MinPageRowCap
	}
	if c.MaxStoredRows <= 0 {
		c.MaxStoredRows = def.MaxStoredRows
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.Retry.BackoffMultiplier < 1 {
		c.Retry.BackoffMultiplier = def.Retry.BackoffMultiplier
	}
	return c
}

// RetryConfig controls the backoff between immediate retries (409, 502).
type RetryConfig struct {
	// MaxAttempts bounds consecutive immediate retries of one page.
	// Zero retries until the condition clears or the context ends.
	MaxAttempts int `yaml:"max_attempts" validate:"gte=0"`

	// InitialBackoff is the first wait. Zero retries without waiting.
	InitialBackoff time.Duration `yaml:"initial_backoff" validate:"gte=0"`

	// MaxBackoff caps the wait.
	MaxBackoff time.Duration `yaml:"max_backoff" validate:"gte=0"`

	// BackoffMultiplier grows the wait after each retry.
	BackoffMultiplier float64 `yaml:"backoff_multiplier" validate:"gte=0"`
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       0,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}
