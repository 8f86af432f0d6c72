package revshare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/id"
	"github.com/xraph/revshare/payee"
	"github.com/xraph/revshare/plugin"
	"github.com/xraph/revshare/pool"
	"github.com/xraph/revshare/store"
	"github.com/xraph/revshare/wallet"
)

// MaxBatchSize is the largest number of usage items one batch may carry.
const MaxBatchSize = 50

// Engine is the revenue distribution engine. It validates and authorizes
// each operation, computes the resulting ledger state on private copies of
// the records, and hands the whole change to the store as one atomic commit.
type Engine struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	verifier auth.Verifier
	now      func() time.Time

	poolKey       string
	solvencyCheck bool
	decimals      int

	// Usage feed
	operator           auth.Signer
	usageBuffer        chan UsageItem
	usageBufferSize    int
	usageBatchSize     int
	usageFlushInterval time.Duration
	stopChan           chan struct{}
	stopOnce           sync.Once
	wg                 sync.WaitGroup

	feedMu  sync.RWMutex
	stopped bool
}

// New creates a new Engine backed by s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:              s,
		plugins:            plugin.NewRegistry(),
		logger:             slog.Default(),
		verifier:           auth.Trusted{},
		now:                time.Now,
		poolKey:            pool.DefaultKey,
		usageBufferSize:    10000,
		usageBatchSize:     500,
		usageFlushInterval: 5 * time.Second,
		stopChan:           make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.usageBuffer = make(chan UsageItem, e.usageBufferSize)

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithVerifier sets how credentials are turned into identities.
// The default, auth.Trusted, accepts the stated identity.
func WithVerifier(v auth.Verifier) Option {
	return func(e *Engine) {
		e.verifier = v
	}
}

// WithClock overrides the time source used for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithPoolKey selects which pool the engine operates on.
func WithPoolKey(key string) Option {
	return func(e *Engine) {
		e.poolKey = key
	}
}

// WithSolvencyCheck rejects usage payments that would distribute more than
// the pool has received. Without it, distribution may run ahead of deposits
// and withdrawals fail later on the live pool balance.
func WithSolvencyCheck() Option {
	return func(e *Engine) {
		e.solvencyCheck = true
	}
}

// WithDisplayDecimals sets how many decimals log lines use when rendering
// amounts in major units.
func WithDisplayDecimals(n int) Option {
	return func(e *Engine) {
		e.decimals = n
	}
}

// WithUsageFeed enables RecordUsage. Each flushed batch is signed by
// operator, which must act for the pool administrator. A plain
// auth.Credential works with the trusted verifier; use auth.KeySigner with
// an Ed25519 verifier.
func WithUsageFeed(operator auth.Signer, bufferSize, batchSize int, flushInterval time.Duration) Option {
	return func(e *Engine) {
		e.operator = operator
		if bufferSize > 0 {
			e.usageBufferSize = bufferSize
		}
		if batchSize > 0 {
			e.usageBatchSize = batchSize
		}
		if flushInterval > 0 {
			e.usageFlushInterval = flushInterval
		}
	}
}

// Store returns the engine's store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// PoolKey returns the key of the pool the engine operates on.
func (e *Engine) PoolKey() string { return e.poolKey }

// Start migrates the store, initializes plugins and starts the usage feed worker.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	if e.operator != nil {
		e.wg.Add(1)
		go e.usageFlushWorker(context.WithoutCancel(ctx))
	}

	e.logger.Info("revshare engine started",
		"pool_key", e.poolKey,
		"solvency_check", e.solvencyCheck,
		"usage_feed", e.operator != nil,
		"usage_batch_size", e.usageBatchSize,
		"usage_flush_interval", e.usageFlushInterval,
	)

	return nil
}

// Stop flushes buffered usage, shuts plugins down and closes the store.
// RecordUsage fails with ErrStoreClosed once Stop has been called.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() {
		e.feedMu.Lock()
		e.stopped = true
		close(e.stopChan)
		e.feedMu.Unlock()
	})
	e.wg.Wait()

	e.plugins.EmitShutdown(context.Background())

	return e.store.Close()
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Pool returns the engine's pool.
func (e *Engine) Pool(ctx context.Context) (*pool.Pool, error) {
	return e.store.GetPool(ctx, e.poolKey)
}

// PoolBalance returns the live balance of the pool's escrow account.
func (e *Engine) PoolBalance(ctx context.Context) (uint64, error) {
	return e.store.Balance(ctx, pool.AccountFor(e.poolKey))
}

// Balance returns the balance of any wallet account.
func (e *Engine) Balance(ctx context.Context, account wallet.Account) (uint64, error) {
	return e.store.Balance(ctx, account)
}

// Payee retrieves a payee by ID.
func (e *Engine) Payee(ctx context.Context, payeeID id.PayeeID) (*payee.Payee, error) {
	return e.store.GetPayee(ctx, payeeID)
}

// PayeeByOwner retrieves the payee owned by an identity.
func (e *Engine) PayeeByOwner(ctx context.Context, owner auth.Identity) (*payee.Payee, error) {
	return e.store.GetPayeeByOwner(ctx, owner)
}

// ListPayees lists payees.
func (e *Engine) ListPayees(ctx context.Context, opts payee.ListOpts) ([]*payee.Payee, error) {
	return e.store.ListPayees(ctx, opts)
}

// Events lists the event log, oldest first.
func (e *Engine) Events(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	return e.store.ListEvents(ctx, opts)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// authenticate verifies cred for intent. Signed credentials only verify for
// the exact pool, operation and arguments they were made for.
func (e *Engine) authenticate(ctx context.Context, cred auth.Credential, intent auth.Intent) (auth.Identity, error) {
	identity, err := e.verifier.Verify(ctx, cred, intent)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	return identity, nil
}

func (e *Engine) loadPool(ctx context.Context) (*pool.Pool, error) {
	p, err := e.store.GetPool(ctx, e.poolKey)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (e *Engine) loadPayee(ctx context.Context, payeeID id.PayeeID) (*payee.Payee, error) {
	if payeeID.IsNil() {
		return nil, ValidationError{Field: "payee_id", Message: "required"}
	}
	p, err := e.store.GetPayee(ctx, payeeID)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (e *Engine) commit(ctx context.Context, cs *store.Changeset) error {
	if err := cs.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return e.store.Commit(ctx, cs)
}

// reject reports a failed operation to plugins and returns err unchanged.
func (e *Engine) reject(ctx context.Context, op string, actor auth.Identity, err error) error {
	e.logger.Debug("revshare operation rejected",
		"op", op,
		"actor", actor,
		"error", err,
	)
	e.plugins.EmitOperationRejected(ctx, op, actor, err)
	return err
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC()
}

func isConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
