package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/revshare"
	"github.com/xraph/revshare/auth"
	"github.com/xraph/revshare/event"
	"github.com/xraph/revshare/id"
	"github.com/xraph/revshare/payee"
	"github.com/xraph/revshare/pool"
	"github.com/xraph/revshare/store"
	"github.com/xraph/revshare/types"
	"github.com/xraph/revshare/wallet"
)

// Collection name constants.
const (
	colPools    = "revshare_pools"
	colPayees   = "revshare_payees"
	colEvents   = "revshare_events"
	colBalances = "revshare_balances"
	colCounters = "revshare_counters"
)

// eventCounter is the counters document that sequences the event log.
const eventCounter = "events"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
// Commit runs in a multi-document transaction, so the server must be a
// replica set or sharded cluster.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
	now func() time.Time
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all revshare collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("revshare/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Pool Store ====================

func (s *Store) GetPool(ctx context.Context, key string) (*pool.Pool, error) {
	var m poolModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": key}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, revshare.ErrPoolNotFound
		}
		return nil, fmt.Errorf("revshare/mongo: get pool: %w", err)
	}
	return fromPoolModel(&m)
}

// ==================== Payee Store ====================

func (s *Store) GetPayee(ctx context.Context, payeeID id.PayeeID) (*payee.Payee, error) {
	var m payeeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": payeeID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, revshare.ErrPayeeNotFound
		}
		return nil, fmt.Errorf("revshare/mongo: get payee: %w", err)
	}
	return fromPayeeModel(&m)
}

func (s *Store) GetPayeeByOwner(ctx context.Context, owner auth.Identity) (*payee.Payee, error) {
	var m payeeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"owner": string(owner)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, revshare.ErrPayeeNotFound
		}
		return nil, fmt.Errorf("revshare/mongo: get payee by owner: %w", err)
	}
	return fromPayeeModel(&m)
}

func (s *Store) ListPayees(ctx context.Context, opts payee.ListOpts) ([]*payee.Payee, error) {
	var models []payeeModel
	filter := bson.M{}
	if opts.ExternalID != "" {
		filter["external_id"] = opts.ExternalID
	}
	if opts.VerifiedOnly {
		filter["is_verified"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revshare/mongo: list payees: %w", err)
	}

	result := make([]*payee.Payee, len(models))
	for i := range models {
		p, err := fromPayeeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

// ==================== Event Store ====================

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	filter := bson.M{}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}
	if !opts.PayeeID.IsNil() {
		filter["payee_id"] = opts.PayeeID.String()
	}
	if !opts.Since.IsZero() {
		filter["occurred_at"] = bson.M{"$gte": opts.Since.UTC()}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "seq", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("revshare/mongo: list events: %w", err)
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Wallet Store ====================

func (s *Store) Balance(ctx context.Context, account wallet.Account) (uint64, error) {
	var m balanceModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": string(account)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("revshare/mongo: balance: %w", err)
	}
	return types.ParseAmount(m.Balance)
}

func (s *Store) Fund(ctx context.Context, account wallet.Account, amount uint64) error {
	err := s.transact(ctx, func(ctx context.Context) error {
		return s.post(ctx, store.Posting{Account: account, Credit: amount})
	})
	if err != nil {
		return fmt.Errorf("revshare/mongo: fund: %w", err)
	}
	return nil
}

// ==================== Commit ====================

// Commit applies the changeset in one transaction. Updates are filtered on
// the version the changeset carries; a missed match aborts with ErrConflict.
// Concurrent writers to the same documents surface as transient transaction
// errors, which the driver retries from a fresh snapshot.
func (s *Store) Commit(ctx context.Context, cs *store.Changeset) error {
	if cs.IsEmpty() {
		return nil
	}

	postings, err := cs.Postings()
	if err != nil {
		return err
	}

	err = s.transact(ctx, func(ctx context.Context) error {
		return s.apply(ctx, cs, postings)
	})
	if err != nil {
		return err
	}

	if cs.Pool != nil {
		cs.Pool.Version++
	}
	for _, p := range cs.Payees {
		p.Version++
	}
	return nil
}

func (s *Store) apply(ctx context.Context, cs *store.Changeset, postings []store.Posting) error {
	if cs.CreatePool != nil {
		if _, err := s.mdb.Collection(colPools).InsertOne(ctx, toPoolModel(cs.CreatePool)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: %s", revshare.ErrPoolExists, cs.CreatePool.Key)
			}
			return fmt.Errorf("revshare/mongo: create pool: %w", err)
		}
	}
	if cs.CreatePayee != nil {
		if _, err := s.mdb.Collection(colPayees).InsertOne(ctx, toPayeeModel(cs.CreatePayee)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: owner %s", revshare.ErrPayeeExists, cs.CreatePayee.Owner)
			}
			return fmt.Errorf("revshare/mongo: create payee: %w", err)
		}
	}

	if cs.Pool != nil {
		m := toPoolModel(cs.Pool)
		if err := s.replace(ctx, colPools, m.Key, m.Version, bson.M{
			"administrator":     m.Administrator,
			"fee_percent":       m.FeePercent,
			"total_deposited":   m.TotalDeposited,
			"total_distributed": m.TotalDistributed,
			"version":           m.Version + 1,
			"updated_at":        m.UpdatedAt,
		}); err != nil {
			return fmt.Errorf("pool %s: %w", m.Key, err)
		}
	}
	for _, p := range cs.Payees {
		m := toPayeeModel(p)
		if err := s.replace(ctx, colPayees, m.ID, m.Version, bson.M{
			"external_id":       m.ExternalID,
			"total_usage_units": m.TotalUsageUnits,
			"total_earnings":    m.TotalEarnings,
			"pending_balance":   m.PendingBalance,
			"is_verified":       m.IsVerified,
			"version":           m.Version + 1,
			"updated_at":        m.UpdatedAt,
		}); err != nil {
			return fmt.Errorf("payee %s: %w", m.ID, err)
		}
	}

	for _, posting := range postings {
		if err := s.post(ctx, posting); err != nil {
			return err
		}
	}

	return s.appendEvents(ctx, cs.Events)
}

// replace sets fields on the document at the expected version.
func (s *Store) replace(ctx context.Context, col, key string, version int64, fields bson.M) error {
	res, err := s.mdb.Collection(col).UpdateOne(ctx,
		bson.M{"_id": key, "version": version},
		bson.M{"$set": fields},
	)
	if err != nil {
		return fmt.Errorf("revshare/mongo: update %s: %w", col, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: expected version %d", revshare.ErrConflict, version)
	}
	return nil
}

// post applies one net posting to a balance document, creating it on first
// credit. Reads and writes share the surrounding transaction's snapshot.
func (s *Store) post(ctx context.Context, posting store.Posting) error {
	coll := s.mdb.Collection(colBalances)

	var cur balanceModel
	var bal uint64
	err := coll.FindOne(ctx, bson.M{"_id": string(posting.Account)}).Decode(&cur)
	switch {
	case err == nil:
		if bal, err = types.ParseAmount(cur.Balance); err != nil {
			return err
		}
	case isNoDocuments(err):
	default:
		return fmt.Errorf("revshare/mongo: read balance: %w", err)
	}

	var next uint64
	if posting.Debit > 0 {
		if bal < posting.Debit {
			return fmt.Errorf("%w: %s holds %d, needs %d",
				revshare.ErrInsufficientBalance, posting.Account, bal, posting.Debit)
		}
		next = bal - posting.Debit
	} else if next, err = types.Add(bal, posting.Credit); err != nil {
		return fmt.Errorf("%w: %s", err, posting.Account)
	}

	_, err = coll.UpdateOne(ctx,
		bson.M{"_id": string(posting.Account)},
		bson.M{"$set": bson.M{"balance": types.FormatAmount(next), "updated_at": s.now()}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("revshare/mongo: write balance: %w", err)
	}
	return nil
}

// appendEvents reserves a contiguous block of sequence numbers and inserts
// the events in changeset order.
func (s *Store) appendEvents(ctx context.Context, events []*event.Event) error {
	if len(events) == 0 {
		return nil
	}

	var counter counterModel
	err := s.mdb.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": eventCounter},
		bson.M{"$inc": bson.M{"seq": int64(len(events))}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return fmt.Errorf("revshare/mongo: reserve event sequence: %w", err)
	}

	docs := eventDocuments(events, counter.Seq)
	if _, err := s.mdb.Collection(colEvents).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("revshare/mongo: append events: %w", err)
	}
	return nil
}

// eventDocuments numbers events so the last one takes last.
func eventDocuments(events []*event.Event, last int64) []any {
	first := last - int64(len(events)) + 1
	docs := make([]any, len(events))
	for i, e := range events {
		docs[i] = toEventModel(e, first+int64(i))
	}
	return docs
}

// transact runs fn inside a session transaction.
func (s *Store) transact(ctx context.Context, fn func(ctx context.Context) error) error {
	sess, err := s.mdb.Collection(colPools).Database().Client().StartSession()
	if err != nil {
		return fmt.Errorf("revshare/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// ==================== Helpers ====================

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all revshare collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colPools: {
			{
				Keys:    bson.D{{Key: "id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colPayees: {
			{
				Keys:    bson.D{{Key: "owner", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "external_id", Value: 1}}},
		},
		colEvents: {
			{
				Keys:    bson.D{{Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "seq", Value: 1}}},
			{Keys: bson.D{{Key: "payee_id", Value: 1}, {Key: "seq", Value: 1}}},
		},
	}
}
