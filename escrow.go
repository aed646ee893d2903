package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/deliverable"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/refund"
	"github.com/xraph/escrow/signature"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/types"
)

// DefaultRefundLockDuration is how long a refund stays locked unless
// WithRefundLockDuration says otherwise.
const DefaultRefundLockDuration = 2 * time.Hour

// Operation names carried by OpError.
const (
	OpAddAccount                   = "add_account"
	OpGetAccount                   = "get_account"
	OpDeleteAccount                = "delete_account"
	OpListAccounts                 = "list_accounts"
	OpListAccountsByProvider       = "list_accounts_by_provider"
	OpListAccountsByConsumer       = "list_accounts_by_consumer"
	OpListAccountsByConsumers      = "list_accounts_by_consumers"
	OpAccountNonce                 = "account_nonce"
	OpDeposit                      = "deposit"
	OpRequestRefund                = "request_refund"
	OpRequestRefundAll             = "request_refund_all"
	OpProcessRefunds               = "process_refunds"
	OpAcknowledgeTEESigner         = "acknowledge_tee_signer"
	OpAddDeliverable               = "add_deliverable"
	OpAcknowledgeDeliverable       = "acknowledge_deliverable"
	OpAcknowledgeDeliverableSigned = "acknowledge_deliverable_signed"
	OpGetDeliverable               = "get_deliverable"
	OpListDeliverables             = "list_deliverables"
	OpVerifySignature              = "verify_signature"
	OpSettleDeliverable            = "settle_deliverable"
)

// Escrow is the ledger engine. Every call runs to completion under one
// engine-wide lock, works on a private copy of the account, and writes it
// back only after all account invariants hold again.
type Escrow struct {
	store    store.Store
	plugins  *plugin.Registry
	logger   *slog.Logger
	verifier *signature.Verifier

	mu sync.Mutex

	// Configuration
	refundLock time.Duration
	clock      func() time.Time
}

// New creates a new Escrow instance.
func New(s store.Store, opts ...Option) *Escrow {
	e := &Escrow{
		store:      s,
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
		verifier:   signature.NewVerifier(signature.DefaultDomain()),
		refundLock: DefaultRefundLockDuration,
		clock:      time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Escrow instance.
type Option func(*Escrow)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Escrow) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Escrow) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithRefundLockDuration sets how long a refund stays locked before
// ProcessRefunds releases it.
func WithRefundLockDuration(d time.Duration) Option {
	return func(e *Escrow) {
		e.refundLock = d
	}
}

// WithClock replaces the time source.
func WithClock(clock func() time.Time) Option {
	return func(e *Escrow) {
		e.clock = clock
	}
}

// WithDomain sets the signing domain delivery claims are verified under.
func WithDomain(d signature.Domain) Option {
	return func(e *Escrow) {
		e.verifier = signature.NewVerifier(d)
	}
}

// Start migrates the store and initializes plugins.
func (e *Escrow) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	e.plugins.EmitInit(ctx, e)

	d := e.verifier.Domain()
	e.logger.Info("escrow started",
		"refund_lock", e.refundLock,
		"domain", d.Name,
		"chain_id", d.ChainID,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down the Escrow.
func (e *Escrow) Stop() error {
	e.plugins.EmitShutdown(context.Background())
	return e.store.Close()
}

// Store returns the underlying store.
func (e *Escrow) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Escrow) Plugins() *plugin.Registry { return e.plugins }

// Verifier returns the signature verifier in use.
func (e *Escrow) Verifier() *signature.Verifier { return e.verifier }

// RefundLockDuration returns the configured refund lock.
func (e *Escrow) RefundLockDuration() time.Duration { return e.refundLock }

// ──────────────────────────────────────────────────
// Account Management
// ──────────────────────────────────────────────────

// AddAccount opens an account for the pair with an opening balance. A pair
// that was deleted before keeps its nonce.
func (e *Escrow) AddAccount(ctx context.Context, consumer, provider common.Address, balance types.Amount, info string) (*account.Account, error) {
	key := account.NewKey(consumer, provider)

	a, err := e.addAccount(ctx, key, balance, info)
	if err != nil {
		return nil, e.fail(OpAddAccount, key, "", -1, err)
	}

	e.logger.Debug("escrow: account created",
		"consumer", consumer.Hex(),
		"provider", provider.Hex(),
		"balance", balance,
		"nonce", a.Nonce,
	)
	e.plugins.EmitAccountCreated(ctx, a.Clone())
	return a, nil
}

func (e *Escrow) addAccount(ctx context.Context, key account.Key, balance types.Amount, info string) (*account.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.store.GetAccount(ctx, key); err == nil {
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	nonce, err := e.store.AccountNonce(ctx, key)
	if err != nil {
		return nil, err
	}

	a, err := account.New(key, balance, info, nonce, e.now())
	if err != nil {
		return nil, err
	}
	if err := a.CheckInvariants(); err != nil {
		return nil, err
	}
	if err := e.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// GetAccount returns the live account for the pair.
func (e *Escrow) GetAccount(ctx context.Context, consumer, provider common.Address) (*account.Account, error) {
	key := account.NewKey(consumer, provider)

	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.store.GetAccount(ctx, key)
	if err != nil {
		return nil, e.fail(OpGetAccount, key, "", -1, err)
	}
	return a, nil
}

// DeleteAccount soft-deletes the account. Balance, refunds, and deliverables
// are cleared; the nonce is kept so old signatures stay dead if the pair is
// created again. It returns the balance the account held, or zero when no
// live account existed.
func (e *Escrow) DeleteAccount(ctx context.Context, consumer, provider common.Address) (types.Amount, error) {
	key := account.NewKey(consumer, provider)

	balance, nonce, removed, err := e.deleteAccount(ctx, key)
	if err != nil {
		return 0, e.fail(OpDeleteAccount, key, "", -1, err)
	}
	if !removed {
		return 0, nil
	}

	e.logger.Debug("escrow: account deleted",
		"consumer", consumer.Hex(),
		"provider", provider.Hex(),
		"balance", balance,
		"nonce", nonce,
	)
	e.plugins.EmitAccountDeleted(ctx, key, nonce)
	return balance, nil
}

func (e *Escrow) deleteAccount(ctx context.Context, key account.Key) (types.Amount, uint64, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.store.GetAccount(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}

	removed, err := e.store.RemoveAccount(ctx, key, a.Nonce)
	if err != nil {
		return 0, 0, false, err
	}
	return a.Balance, a.Nonce, removed, nil
}

// AccountNonce returns the nonce of the pair, including a deleted pair's
// retained nonce. Pairs never created report zero.
func (e *Escrow) AccountNonce(ctx context.Context, consumer, provider common.Address) (uint64, error) {
	key := account.NewKey(consumer, provider)

	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.store.AccountNonce(ctx, key)
	if err != nil {
		return 0, e.fail(OpAccountNonce, key, "", -1, err)
	}
	return n, nil
}

// ListAccounts returns one page of all live accounts and the total count.
// A zero limit reads to the end.
func (e *Escrow) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, total, err := e.store.ListAccounts(ctx, opts)
	if err != nil {
		return nil, 0, e.fail(OpListAccounts, account.Key{}, "", -1, err)
	}
	return out, total, nil
}

// ListAccountsByProvider pages the accounts held with provider.
func (e *Escrow) ListAccountsByProvider(ctx context.Context, provider common.Address, opts account.ListOpts) ([]*account.Account, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, total, err := e.store.ListAccountsByProvider(ctx, provider, opts)
	if err != nil {
		return nil, 0, e.fail(OpListAccountsByProvider, account.Key{Provider: provider}, "", -1, err)
	}
	return out, total, nil
}

// ListAccountsByConsumer pages the accounts opened by consumer.
func (e *Escrow) ListAccountsByConsumer(ctx context.Context, consumer common.Address, opts account.ListOpts) ([]*account.Account, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	out, total, err := e.store.ListAccountsByConsumer(ctx, consumer, opts)
	if err != nil {
		return nil, 0, e.fail(OpListAccountsByConsumer, account.Key{Consumer: consumer}, "", -1, err)
	}
	return out, total, nil
}

// ListAccountsByConsumers looks up the account of every consumer with
// provider. Missing pairs come back as zero-valued placeholders in the same
// position. More than MaxBatchSize consumers fails with ErrBatchTooLarge.
func (e *Escrow) ListAccountsByConsumers(ctx context.Context, consumers []common.Address, provider common.Address) ([]*account.Account, error) {
	if len(consumers) > account.MaxBatchSize {
		return nil, e.fail(OpListAccountsByConsumers, account.Key{Provider: provider}, "", -1, ErrBatchTooLarge)
	}

	keys := make([]account.Key, len(consumers))
	for i, c := range consumers {
		keys[i] = account.NewKey(c, provider)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	found, err := e.store.GetAccounts(ctx, keys)
	if err != nil {
		return nil, e.fail(OpListAccountsByConsumers, account.Key{Provider: provider}, "", -1, err)
	}
	for i, a := range found {
		if a == nil {
			found[i] = account.Placeholder()
		}
	}
	return found, nil
}

// AcknowledgeTEESigner records whether the consumer trusts the provider's
// TEE signer. Revoking fails with ErrNonZeroBalance while funds remain.
func (e *Escrow) AcknowledgeTEESigner(ctx context.Context, consumer, provider common.Address, acknowledged bool) error {
	key := account.NewKey(consumer, provider)

	a, err := e.mutate(ctx, key, func(a *account.Account) (bool, error) {
		return true, a.AcknowledgeTEESigner(acknowledged)
	})
	if err != nil {
		return e.fail(OpAcknowledgeTEESigner, key, "", -1, err)
	}

	e.logger.Debug("escrow: tee signer acknowledgement set",
		"consumer", consumer.Hex(),
		"provider", provider.Hex(),
		"acknowledged", acknowledged,
	)
	e.plugins.EmitTEESignerAcknowledged(ctx, a, acknowledged)
	return nil
}

// ──────────────────────────────────────────────────
// Balance and Refunds
// ──────────────────────────────────────────────────

// Deposit credits amount to the account and then cancels up to cancel of
// pending refunds, newest first.
func (e *Escrow) Deposit(ctx context.Context, consumer, provider common.Address, amount, cancel types.Amount) (*account.Account, error) {
	key := account.NewKey(consumer, provider)

	var cancelled types.Amount
	a, err := e.mutate(ctx, key, func(a *account.Account) (bool, error) {
		var err error
		cancelled, err = a.Deposit(amount, cancel)
		return true, err
	})
	if err != nil {
		return nil, e.fail(OpDeposit, key, "", -1, err)
	}

	e.logger.Debug("escrow: deposit",
		"consumer", consumer.Hex(),
		"provider", provider.Hex(),
		"amount", amount,
		"cancelled", cancelled,
		"balance", a.Balance,
	)
	e.plugins.EmitDeposit(ctx, a.Clone(), amount, cancelled)
	return a, nil
}

// RequestRefund locks amount of the available balance for withdrawal once
// the refund lock has passed.
func (e *Escrow) RequestRefund(ctx context.Context, consumer, provider common.Address, amount types.Amount) (refund.Refund, error) {
	key := account.NewKey(consumer, provider)

	var r refund.Refund
	index := -1
	a, err := e.mutate(ctx, key, func(a *account.Account) (bool, error) {
		var err error
		index = a.Refunds.ActiveCount
		r, err = a.RequestRefund(amount, e.now())
		return true, err
	})
	if err != nil {
		return refund.Refund{}, e.fail(OpRequestRefund, key, "", index, err)
	}

	e.logger.Debug("escrow: refund requested",
		"consumer", consumer.Hex(),
		"provider", provider.Hex(),
		"index", r.Index,
		"amount", r.Amount,
	)
	e.plugins.EmitRefundRequested(ctx, a, r)
	return r, nil
}

// RequestRefundAll requests a refund of the whole available balance. It
// reports false, changing nothing, when nothing is available.
func (e *Escrow) RequestRefundAll(ctx context.Context, consumer, provider common.Address) (refund.Refund, bool, error) {
	key := account.NewKey(consumer, provider)

	var (
		r  refund.Refund
		ok bool
	)
	index := -1
	a, err := e.mutate(ctx, key, func(a *account.Account) (bool, error) {
		var err error
		index = a.Refunds.ActiveCount
		r, ok, err = a.RequestRefundAll(e.now())
		return ok, err
	})
	if err != nil {
		return refund.Refund{}, false, e.fail(OpRequestRefundAll, key, "", index, err)
	}
	if !ok {
		return refund.Refund{}, false, nil
	}

	e.logger.Debug("escrow: refund requested",
		"consumer", consumer.Hex(),
		"provider", provider.Hex(),
		"index", r.Index,
		"amount", r.Amount,
	)
	e.plugins.EmitRefundRequested(ctx, a, r)
	return r, true, nil
}

// ProcessRefunds pays out every refund whose lock has passed and returns
// the amount released.
func (e *Escrow) ProcessRefunds(ctx context.Context, consumer, provider common.Address) (types.Amount, error) {
	key := account.NewKey(consumer, provider)

	var released types.Amount
	a, err := e.mutate(ctx, key, func(a *account.Account) (bool, error) {
		released = a.ProcessRefunds(e.now(), e.refundLock)
		return released > 0, nil
	})
	if err != nil {
		return 0, e.fail(OpProcessRefunds, key, "", -1, err)
	}
	if released == 0 {
		return 0, nil
	}

	e.logger.Debug("escrow: refunds processed",
		"consumer", consumer.Hex(),
		"provider", provider.Hex(),
		"released", released,
		"balance", a.Balance,
	)
	e.plugins.EmitRefundProcessed(ctx, a, released)
	return released, nil
}

// ──────────────────────────────────────────────────
// Deliverables
// ──────────────────────────────────────────────────

// AddDeliverable appends a provider receipt to the account's journal. When
// the journal is full the oldest entry is evicted.
func (e *Escrow) AddDeliverable(ctx context.Context, consumer, provider common.Address, deliverableID string, contentHash common.Hash) (deliverable.Deliverable, error) {
	key := account.NewKey(consumer, provider)

	var (
		d       deliverable.Deliverable
		evicted string
	)
	_, err := e.mutate(ctx, key, func(a *account.Account) (bool, error) {
		var err error
		evicted, err = a.Deliverables.Add(deliverableID, contentHash, e.now())
		if err != nil {
			return false, err
		}
		d, err = a.Deliverables.Get(deliverableID)
		return true, err
	})
	if err != nil {
		return deliverable.Deliverable{}, e.fail(OpAddDeliverable, key, deliverableID, -1, err)
	}

	e.logger.Debug("escrow: deliverable added",
		"consumer", consumer.Hex(),
		"provider", provider.Hex(),
		"deliverable_id", deliverableID,
		"evicted", evicted,
	)
	if evicted != "" {
		e.plugins.EmitDeliverableEvicted(ctx, key, evicted)
	}
	e.plugins.EmitDeliverableAdded(ctx, key, d)
	return d, nil
}

// AcknowledgeDeliverable marks a deliverable acknowledged by explicit
// consumer action.
func (e *Escrow) AcknowledgeDeliverable(ctx context.Context, consumer, provider common.Address, deliverableID string) error {
	key := account.NewKey(consumer, provider)

	_, err := e.mutate(ctx, key, func(a *account.Account) (bool, error) {
		return true, a.Deliverables.Acknowledge(deliverableID)
	})
	if err != nil {
		return e.fail(OpAcknowledgeDeliverable, key, deliverableID, -1, err)
	}

	e.logger.Debug("escrow: deliverable acknowledged",
		"consumer", consumer.Hex(),
		"provider", provider.Hex(),
		"deliverable_id", deliverableID,
	)
	e.plugins.EmitDeliverableAcknowledged(ctx, key, deliverableID)
	return nil
}

// AcknowledgeDeliverableSigned acknowledges a deliverable on the strength of
// a claim signed by the consumer. The claim nonce must be above the
// account nonce and becomes the new account nonce.
func (e *Escrow) AcknowledgeDeliverableSigned(ctx context.Context, provider common.Address, claim signature.Claim, sig []byte) error {
	key := account.NewKey(claim.Consumer, provider)

	_, err := e.mutate(ctx, key, func(a *account.Account) (bool, error) {
		d, err := a.Deliverables.Get(claim.ID)
		if err != nil {
			return false, err
		}
		if err := e.verifier.Verify(claim, sig, claim.Consumer); err != nil {
			return false, err
		}
		if d.ContentHash != claim.ContentHash {
			return false, ErrContentHashMismatch
		}
		if err := a.AdvanceNonce(claim.Nonce); err != nil {
			return false, err
		}
		return true, a.Deliverables.Acknowledge(claim.ID)
	})
	if err != nil {
		return e.fail(OpAcknowledgeDeliverableSigned, key, claim.ID, -1, err)
	}

	e.logger.Debug("escrow: deliverable acknowledged by signature",
		"consumer", claim.Consumer.Hex(),
		"provider", provider.Hex(),
		"deliverable_id", claim.ID,
		"nonce", claim.Nonce,
	)
	e.plugins.EmitDeliverableAcknowledged(ctx, key, claim.ID)
	return nil
}

// GetDeliverable returns one journal record.
func (e *Escrow) GetDeliverable(ctx context.Context, consumer, provider common.Address, deliverableID string) (deliverable.Deliverable, error) {
	key := account.NewKey(consumer, provider)

	a, err := e.read(ctx, key)
	if err != nil {
		return deliverable.Deliverable{}, e.fail(OpGetDeliverable, key, deliverableID, -1, err)
	}
	d, err := a.Deliverables.Get(deliverableID)
	if err != nil {
		return deliverable.Deliverable{}, e.fail(OpGetDeliverable, key, deliverableID, -1, err)
	}
	return d, nil
}

// ListDeliverableIDs returns the journal ids, oldest first.
func (e *Escrow) ListDeliverableIDs(ctx context.Context, consumer, provider common.Address) ([]string, error) {
	key := account.NewKey(consumer, provider)

	a, err := e.read(ctx, key)
	if err != nil {
		return nil, e.fail(OpListDeliverables, key, "", -1, err)
	}
	return a.Deliverables.IDs(), nil
}

// ListDeliverables returns the journal records, oldest first.
func (e *Escrow) ListDeliverables(ctx context.Context, consumer, provider common.Address) ([]deliverable.Deliverable, error) {
	key := account.NewKey(consumer, provider)

	a, err := e.read(ctx, key)
	if err != nil {
		return nil, e.fail(OpListDeliverables, key, "", -1, err)
	}
	return a.Deliverables.List(), nil
}

// ──────────────────────────────────────────────────
// Signatures and Settlement
// ──────────────────────────────────────────────────

// VerifySignature checks that sig over claim was produced by signer under
// the engine's signing domain.
func (e *Escrow) VerifySignature(claim signature.Claim, sig []byte, signer common.Address) error {
	if err := e.verifier.Verify(claim, sig, signer); err != nil {
		return e.fail(OpVerifySignature, account.NewKey(claim.Consumer, common.Address{}), claim.ID, -1, err)
	}
	return nil
}

// SettleDeliverable charges the fee of an acknowledged deliverable against
// the consumer's balance. The claim must be signed by teeSigner, which the
// consumer must have acknowledged, and must carry a fresh nonce. Pending
// refunds the remaining balance can no longer cover are cancelled newest
// first.
func (e *Escrow) SettleDeliverable(ctx context.Context, provider, teeSigner common.Address, claim signature.Claim, sig []byte) (*deliverable.Settlement, error) {
	key := account.NewKey(claim.Consumer, provider)

	var s *deliverable.Settlement
	_, err := e.mutate(ctx, key, func(a *account.Account) (bool, error) {
		if !a.TEESignerAcknowledged {
			return false, ErrTEESignerNotAcknowledged
		}
		if err := e.verifier.Verify(claim, sig, teeSigner); err != nil {
			return false, err
		}
		cancelled, err := a.Settle(claim.ID, claim.ContentHash, claim.EncryptedPayload, claim.Fee, claim.Nonce)
		if err != nil {
			return false, err
		}
		s = &deliverable.Settlement{
			ID:               id.NewSettlementID(),
			Consumer:         claim.Consumer,
			Provider:         provider,
			DeliverableID:    claim.ID,
			Fee:              claim.Fee,
			Nonce:            claim.Nonce,
			RefundsCancelled: cancelled,
			SettledAt:        e.now(),
		}
		return true, nil
	})
	if err != nil {
		return nil, e.fail(OpSettleDeliverable, key, claim.ID, -1, err)
	}

	e.logger.Debug("escrow: deliverable settled",
		"consumer", claim.Consumer.Hex(),
		"provider", provider.Hex(),
		"deliverable_id", claim.ID,
		"fee", claim.Fee,
		"nonce", claim.Nonce,
		"refunds_cancelled", s.RefundsCancelled,
	)
	e.plugins.EmitDeliverableSettled(ctx, s)
	return s, nil
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// mutate runs fn against a private copy of the account and writes the copy
// back when fn reports a change. Nothing is written if fn fails or the
// result breaks an account invariant.
func (e *Escrow) mutate(ctx context.Context, key account.Key, fn func(a *account.Account) (bool, error)) (*account.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	stored, err := e.store.GetAccount(ctx, key)
	if err != nil {
		return nil, err
	}
	a := stored.Clone()

	changed, err := fn(a)
	if err != nil {
		return nil, err
	}
	if !changed {
		return a, nil
	}

	a.Touch(e.now())
	if err := a.CheckInvariants(); err != nil {
		return nil, err
	}
	if err := e.store.UpdateAccount(ctx, a); err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

func (e *Escrow) read(ctx context.Context, key account.Key) (*account.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.GetAccount(ctx, key)
}

// fail wraps err with the operation and the keys it concerned.
func (e *Escrow) fail(op string, key account.Key, deliverableID string, index int, err error) error {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return err
	}
	return &OpError{
		Op:            op,
		Consumer:      key.Consumer,
		Provider:      key.Provider,
		DeliverableID: deliverableID,
		Index:         index,
		Err:           err,
	}
}

func (e *Escrow) now() time.Time {
	return e.clock().UTC()
}
