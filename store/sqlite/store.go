package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"

	escrow "github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	escrowstore "github.com/xraph/escrow/store"
)

// compile-time interface check
var _ escrowstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("escrow/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("escrow/sqlite: migration failed: %w", err)
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

// CreateAccount inserts a new row, or revives the tombstone of a previously
// removed pair in place.
func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	m, err := toAccountModel(a)
	if err != nil {
		return err
	}

	existing := new(accountModel)
	err = s.sdb.NewSelect(existing).
		Where("account_key = ?", m.AccountKey).
		Scan(ctx)
	switch {
	case err == nil && !existing.Deleted:
		return escrow.ErrAlreadyExists
	case err == nil:
		_, err = s.sdb.NewUpdate(m).WherePK().Exec(ctx)
		return err
	case isNoRows(err):
		_, err = s.sdb.NewInsert(m).Exec(ctx)
		return err
	default:
		return err
	}
}

func (s *Store) GetAccount(ctx context.Context, key account.Key) (*account.Account, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("account_key = ?", key.String()).
		Where("deleted = ?", false).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, escrow.ErrNotFound
		}
		return nil, err
	}
	return fromAccountModel(m)
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	m, err := toAccountModel(a)
	if err != nil {
		return err
	}
	res, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return escrow.ErrNotFound
	}
	return nil
}

// RemoveAccount clears the row and flags it deleted, keeping the nonce.
func (s *Store) RemoveAccount(ctx context.Context, key account.Key, nonce uint64) (bool, error) {
	res, err := s.sdb.NewUpdate((*accountModel)(nil)).
		Set("deleted = ?", true).
		Set("nonce = ?", int64(nonce)). //nolint:gosec // bit-preserving
		Set("balance = ?", 0).
		Set("additional_info = ?", "").
		Set("tee_signer_acknowledged = ?", false).
		Set("refunds = ?", emptyJSON).
		Set("deliverables = ?", emptyJSON).
		Set("updated_at = ?", now()).
		Where("account_key = ?", key.String()).
		Where("deleted = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s *Store) AccountNonce(ctx context.Context, key account.Key) (uint64, error) {
	m := new(accountModel)
	err := s.sdb.NewSelect(m).
		Where("account_key = ?", key.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(m.Nonce), nil //nolint:gosec // bit-preserving
}

func (s *Store) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, int, error) {
	return s.list(ctx, "", "", opts)
}

func (s *Store) ListAccountsByProvider(ctx context.Context, provider common.Address, opts account.ListOpts) ([]*account.Account, int, error) {
	return s.list(ctx, "provider", provider.Hex(), opts)
}

func (s *Store) ListAccountsByConsumer(ctx context.Context, consumer common.Address, opts account.ListOpts) ([]*account.Account, int, error) {
	return s.list(ctx, "consumer", consumer.Hex(), opts)
}

func (s *Store) GetAccounts(ctx context.Context, keys []account.Key) ([]*account.Account, error) {
	out := make([]*account.Account, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	args := make([]any, len(keys))
	for i, key := range keys {
		args[i] = key.String()
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")

	var models []accountModel
	err := s.sdb.NewSelect(&models).
		Where("account_key IN ("+placeholders+")", args...).
		Where("deleted = ?", false).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	found := make(map[string]*account.Account, len(models))
	for i := range models {
		a, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		found[models[i].AccountKey] = a
	}
	for i, key := range keys {
		if a, ok := found[key.String()]; ok {
			out[i] = a
		}
	}
	return out, nil
}

// list pages live accounts, optionally filtered by one indexed column.
func (s *Store) list(ctx context.Context, column, value string, opts account.ListOpts) ([]*account.Account, int, error) {
	countSQL := `SELECT COUNT(*) FROM escrow_accounts WHERE deleted = ?`
	countArgs := []any{false}
	if column != "" {
		countSQL += ` AND ` + column + ` = ?`
		countArgs = append(countArgs, value)
	}

	var total int
	if err := s.sdb.NewRaw(countSQL, countArgs...).Scan(ctx, &total); err != nil {
		return nil, 0, err
	}
	if opts.Offset >= total {
		return []*account.Account{}, total, nil
	}

	var models []accountModel
	q := s.sdb.NewSelect(&models).Where("deleted = ?", false)
	if column != "" {
		q = q.Where(column+" = ?", value)
	}
	// SQLite only accepts OFFSET after a LIMIT.
	limit := opts.Limit
	if limit <= 0 {
		limit = total - opts.Offset
	}
	q = q.Limit(limit)
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC, account_key ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, 0, err
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		a, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, 0, err
		}
		result[i] = a
	}
	return result, total, nil
}

// ==================== Helpers ====================

// emptyJSON clears a JSON column. It binds as a blob so reads scan back
// into json.RawMessage.
var emptyJSON = json.RawMessage("{}")

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
