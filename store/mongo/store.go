package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	escrow "github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	escrowstore "github.com/xraph/escrow/store"
)

// Collection name constants.
const (
	colAccounts = "escrow_accounts"
)

// compile-time interface check
var _ escrowstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all escrow collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("escrow/mongo: migrate %s indexes: %w", col, err)
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

// ==================== Account Store ====================

// CreateAccount inserts a new document, or revives the tombstone of a
// previously removed pair in place.
func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)

	var existing accountModel
	err := s.mdb.NewFind(&existing).
		Filter(bson.M{"_id": m.AccountKey}).
		Scan(ctx)
	switch {
	case err == nil && !existing.Deleted:
		return escrow.ErrAlreadyExists
	case err == nil:
		res, err := s.mdb.NewUpdate(m).
			Filter(bson.M{"_id": m.AccountKey, "deleted": true}).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("escrow/mongo: revive account: %w", err)
		}
		if res.MatchedCount() == 0 {
			return escrow.ErrAlreadyExists
		}
		return nil
	case isNoDocuments(err):
		if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return escrow.ErrAlreadyExists
			}
			return fmt.Errorf("escrow/mongo: create account: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("escrow/mongo: create account: %w", err)
	}
}

func (s *Store) GetAccount(ctx context.Context, key account.Key) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": key.String(), "deleted": false}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, escrow.ErrNotFound
		}
		return nil, fmt.Errorf("escrow/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	m := toAccountModel(a)

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.AccountKey, "deleted": false}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("escrow/mongo: update account: %w", err)
	}
	if res.MatchedCount() == 0 {
		return escrow.ErrNotFound
	}
	return nil
}

// RemoveAccount clears the document and flags it deleted, keeping the nonce.
func (s *Store) RemoveAccount(ctx context.Context, key account.Key, nonce uint64) (bool, error) {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": key.String(), "deleted": false}).
		Set("deleted", true).
		Set("nonce", int64(nonce)). //nolint:gosec // bit-preserving
		Set("balance", int64(0)).
		Set("additional_info", "").
		Set("tee_signer_acknowledged", false).
		Set("refunds", refundsModel{}).
		Set("deliverables", journalModel{}).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("escrow/mongo: remove account: %w", err)
	}
	return res.MatchedCount() > 0, nil
}

func (s *Store) AccountNonce(ctx context.Context, key account.Key) (uint64, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": key.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("escrow/mongo: account nonce: %w", err)
	}
	return uint64(m.Nonce), nil //nolint:gosec // bit-preserving
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, int, error) {
	return s.list(ctx, bson.M{"deleted": false}, opts)
}

func (s *Store) ListAccountsByProvider(ctx context.Context, provider common.Address, opts account.ListOpts) ([]*account.Account, int, error) {
	return s.list(ctx, bson.M{"provider": provider.Hex(), "deleted": false}, opts)
}

func (s *Store) ListAccountsByConsumer(ctx context.Context, consumer common.Address, opts account.ListOpts) ([]*account.Account, int, error) {
	return s.list(ctx, bson.M{"consumer": consumer.Hex(), "deleted": false}, opts)
}

func (s *Store) GetAccounts(ctx context.Context, keys []account.Key) ([]*account.Account, error) {
	out := make([]*account.Account, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	ids := make([]string, len(keys))
	for i, key := range keys {
		ids[i] = key.String()
	}

	var models []accountModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"_id": bson.M{"$in": ids}, "deleted": false}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("escrow/mongo: get accounts: %w", err)
	}

	found := make(map[string]*account.Account, len(models))
	for i := range models {
		a, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		found[models[i].AccountKey] = a
	}
	for i, key := range ids {
		if a, ok := found[key]; ok {
			out[i] = a
		}
	}
	return out, nil
}

func (s *Store) list(ctx context.Context, filter bson.M, opts account.ListOpts) ([]*account.Account, int, error) {
	total, err := s.mdb.Collection(colAccounts).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("escrow/mongo: count accounts: %w", err)
	}
	if int64(opts.Offset) >= total {
		return []*account.Account{}, int(total), nil
	}

	var models []accountModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, 0, fmt.Errorf("escrow/mongo: list accounts: %w", err)
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		a, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, 0, err
		}
		result[i] = a
	}
	return result, int(total), nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all escrow collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{Keys: bson.D{{Key: "consumer", Value: 1}, {Key: "deleted", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "provider", Value: 1}, {Key: "deleted", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "deleted", Value: 1}, {Key: "created_at", Value: 1}}},
			{
				Keys:    bson.D{{Key: "id", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true),
			},
		},
	}
}
