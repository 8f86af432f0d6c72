package extension

import (
	"time"

	"github.com/xraph/revshare"
	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/plugin"
	"github.com/xraph/revshare/store"
)

// Option configures the revshare Forge extension.
type Option func(*Extension)

// WithStore sets the store for the revshare engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a revshare.Option through to the underlying engine.
func WithEngineOption(opt revshare.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a revshare plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, revshare.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents store migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithPoolKey selects the pool the engine operates on.
func WithPoolKey(key string) Option {
	return func(e *Extension) { e.config.PoolKey = key }
}

// WithSolvencyCheck enables the pool solvency check.
func WithSolvencyCheck() Option {
	return func(e *Extension) { e.config.SolvencyCheck = true }
}

// WithUsageOperator enables the usage feed. Each flushed batch is signed by
// operator, which must act for the pool administrator.
func WithUsageOperator(operator auth.Signer) Option {
	return func(e *Extension) { e.operator = operator }
}

// WithUsageBatchSize sets the number of buffered usage items that triggers a flush.
func WithUsageBatchSize(size int) Option {
	return func(e *Extension) { e.config.UsageBatchSize = size }
}

// WithUsageFlushInterval sets how frequently the usage buffer is flushed.
func WithUsageFlushInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.UsageFlushInterval = d }
}

// WithRetry sets how Do retries operations that hit concurrent modifications.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(e *Extension) {
		e.config.RetryAttempts = attempts
		e.config.RetryDelay = delay
	}
}
