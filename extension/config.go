package extension

import "time"

// Config holds the revshare extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.revshare" or "revshare" keys).
type Config struct {
	// DisableMigrate prevents store migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// PoolKey selects the pool the engine operates on (default: "default").
	PoolKey string `json:"pool_key" mapstructure:"pool_key" yaml:"pool_key"`

	// SolvencyCheck rejects usage payments that would distribute more than
	// the pool has received.
	SolvencyCheck bool `json:"solvency_check" mapstructure:"solvency_check" yaml:"solvency_check"`

	// DisplayDecimals is how many decimals log lines use for major units.
	DisplayDecimals int `json:"display_decimals" mapstructure:"display_decimals" yaml:"display_decimals"`

	// UsageBufferSize is the capacity of the usage feed buffer (default: 10000).
	UsageBufferSize int `json:"usage_buffer_size" mapstructure:"usage_buffer_size" yaml:"usage_buffer_size"`

	// UsageBatchSize is the number of buffered items that triggers a flush
	// (default: 500).
	UsageBatchSize int `json:"usage_batch_size" mapstructure:"usage_batch_size" yaml:"usage_batch_size"`

	// UsageFlushInterval is how frequently the usage buffer is flushed even
	// if the batch size has not been reached (default: 5s).
	UsageFlushInterval time.Duration `json:"usage_flush_interval" mapstructure:"usage_flush_interval" yaml:"usage_flush_interval"`

	// RetryAttempts bounds how many times Do runs an operation that keeps
	// hitting concurrent modifications (default: 5).
	RetryAttempts uint `json:"retry_attempts" mapstructure:"retry_attempts" yaml:"retry_attempts"`

	// RetryDelay is the base backoff between attempts (default: 10ms).
	RetryDelay time.Duration `json:"retry_delay" mapstructure:"retry_delay" yaml:"retry_delay"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		UsageBufferSize:    10000,
		UsageBatchSize:     500,
		UsageFlushInterval: 5 * time.Second,
		RetryAttempts:      5,
		RetryDelay:         10 * time.Millisecond,
	}
}
