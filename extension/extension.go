// Package extension provides the Forge extension adapter for revshare.
//
// It implements the forge.Extension interface to integrate the revenue
// distribution engine into a Forge application with DI registration,
// lifecycle management and conflict retries.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.revshare" or "revshare" keys.
package extension

import (
	"context"
	"errors"

	"github.com/avast/retry-go/v4"
	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/revshare"
	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/store"
	"github.com/xraph/revshare/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "revshare"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Usage-based revenue distribution ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts revshare as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *revshare.Engine
	store      store.Store
	operator   auth.Signer
	engineOpts []revshare.Option
}

// New creates a new revshare Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *revshare.Engine { return e.engine }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	e.engine = revshare.New(e.engineStore(), e.buildEngineOpts()...)

	return vessel.Provide(fapp.Container(), func() (*revshare.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("revshare: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("revshare: store not initialized")
	}
	return e.store.Ping(ctx)
}

// Do runs op against the engine, retrying while it fails with a concurrent
// modification. Each attempt re-reads state, so op must be safe to repeat.
func (e *Extension) Do(ctx context.Context, op func(ctx context.Context, eng *revshare.Engine) error) error {
	if e.engine == nil {
		return errors.New("revshare: extension not initialized")
	}

	cfg := e.mergeWithDefaults(e.config)
	return retry.Do(
		func() error { return op(ctx, e.engine) },
		retry.Context(ctx),
		retry.Attempts(cfg.RetryAttempts),
		retry.Delay(cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(revshare.IsRetryable),
	)
}

// engineStore returns the configured store, falling back to memory.
func (e *Extension) engineStore() store.Store {
	if e.store == nil {
		e.store = memory.New()
	}
	if e.config.DisableMigrate {
		return noMigrate{e.store}
	}
	return e.store
}

// noMigrate hides Migrate from the engine's start sequence.
type noMigrate struct {
	store.Store
}

func (noMigrate) Migrate(context.Context) error { return nil }

// buildEngineOpts constructs revshare.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []revshare.Option {
	opts := make([]revshare.Option, 0, len(e.engineOpts)+4)

	if e.config.PoolKey != "" {
		opts = append(opts, revshare.WithPoolKey(e.config.PoolKey))
	}
	if e.config.SolvencyCheck {
		opts = append(opts, revshare.WithSolvencyCheck())
	}
	if e.config.DisplayDecimals > 0 {
		opts = append(opts, revshare.WithDisplayDecimals(e.config.DisplayDecimals))
	}
	if e.operator != nil {
		opts = append(opts, revshare.WithUsageFeed(e.operator,
			e.config.UsageBufferSize, e.config.UsageBatchSize, e.config.UsageFlushInterval))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("revshare: configuration is required but not found in config files; " +
				"ensure 'extensions.revshare' or 'revshare' key exists in your config")
		}
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("revshare: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("pool_key", e.config.PoolKey),
		forge.F("solvency_check", e.config.SolvencyCheck),
		forge.F("usage_feed", e.operator != nil),
		forge.F("usage_batch_size", e.config.UsageBatchSize),
		forge.F("usage_flush_interval", e.config.UsageFlushInterval),
		forge.F("retry_attempts", e.config.RetryAttempts),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.revshare", "revshare"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("revshare: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("revshare: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.UsageBufferSize == 0 {
		cfg.UsageBufferSize = defaults.UsageBufferSize
	}
	if cfg.UsageBatchSize == 0 {
		cfg.UsageBatchSize = defaults.UsageBatchSize
	}
	if cfg.UsageFlushInterval == 0 {
		cfg.UsageFlushInterval = defaults.UsageFlushInterval
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = defaults.RetryAttempts
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps and
// programmatic bool flags override when true.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.SolvencyCheck {
		yamlConfig.SolvencyCheck = true
	}

	if yamlConfig.PoolKey == "" {
		yamlConfig.PoolKey = programmaticConfig.PoolKey
	}
	if yamlConfig.DisplayDecimals == 0 {
		yamlConfig.DisplayDecimals = programmaticConfig.DisplayDecimals
	}
	if yamlConfig.UsageBufferSize == 0 {
		yamlConfig.UsageBufferSize = programmaticConfig.UsageBufferSize
	}
	if yamlConfig.UsageBatchSize == 0 {
		yamlConfig.UsageBatchSize = programmaticConfig.UsageBatchSize
	}
	if yamlConfig.UsageFlushInterval == 0 {
		yamlConfig.UsageFlushInterval = programmaticConfig.UsageFlushInterval
	}
	if yamlConfig.RetryAttempts == 0 {
		yamlConfig.RetryAttempts = programmaticConfig.RetryAttempts
	}
	if yamlConfig.RetryDelay == 0 {
		yamlConfig.RetryDelay = programmaticConfig.RetryDelay
	}

	return e.mergeWithDefaults(yamlConfig)
}
