// Package memory provides the in-process reference account store.
//
// Accounts live in one primary map. Three key sets index them: every live
// key, the keys of each consumer, and the keys of each provider. All four
// structures change together under one lock on every create and remove.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is an in-memory account.Store.
type Store struct {
	mu sync.RWMutex

	accounts   map[account.Key]*account.Account
	all        *keySet
	byConsumer map[common.Address]*keySet
	byProvider map[common.Address]*keySet

	// Soft-deleted accounts, cleared but for their keys and nonce.
	tombstones map[account.Key]*account.Account

	closed bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:   make(map[account.Key]*account.Account),
		all:        newKeySet(),
		byConsumer: make(map[common.Address]*keySet),
		byProvider: make(map[common.Address]*keySet),
		tombstones: make(map[account.Key]*account.Account),
	}
}

// ──────────────────────────────────────────────────
// Account store
// ──────────────────────────────────────────────────

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return escrow.ErrStoreClosed
	}
	key := a.Key()
	if _, exists := s.accounts[key]; exists {
		return escrow.ErrAlreadyExists
	}

	s.accounts[key] = a.Clone()
	s.all.add(key)
	indexAdd(s.byConsumer, key.Consumer, key)
	indexAdd(s.byProvider, key.Provider, key)
	delete(s.tombstones, key)
	return nil
}

func (s *Store) GetAccount(_ context.Context, key account.Key) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, escrow.ErrStoreClosed
	}

	if a, ok := s.accounts[key]; ok {
		return a.Clone(), nil
	}
	return nil, escrow.ErrNotFound
}

func (s *Store) UpdateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return escrow.ErrStoreClosed
	}
	key := a.Key()
	if _, exists := s.accounts[key]; !exists {
		return escrow.ErrNotFound
	}
	s.accounts[key] = a.Clone()
	return nil
}

func (s *Store) RemoveAccount(_ context.Context, key account.Key, nonce uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, escrow.ErrStoreClosed
	}
	a, exists := s.accounts[key]
	if !exists {
		return false, nil
	}

	a.SoftDelete()
	a.Nonce = nonce
	s.tombstones[key] = a

	delete(s.accounts, key)
	s.all.remove(key)
	indexRemove(s.byConsumer, key.Consumer, key)
	indexRemove(s.byProvider, key.Provider, key)
	return true, nil
}

func (s *Store) AccountNonce(_ context.Context, key account.Key) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, escrow.ErrStoreClosed
	}

	if a, ok := s.accounts[key]; ok {
		return a.Nonce, nil
	}
	if t, ok := s.tombstones[key]; ok {
		return t.Nonce, nil
	}
	return 0, nil
}

func (s *Store) ListAccounts(_ context.Context, opts account.ListOpts) ([]*account.Account, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, 0, escrow.ErrStoreClosed
	}

	return s.page(s.all, opts), s.all.len(), nil
}

func (s *Store) ListAccountsByProvider(_ context.Context, provider common.Address, opts account.ListOpts) ([]*account.Account, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, 0, escrow.ErrStoreClosed
	}

	set, ok := s.byProvider[provider]
	if !ok {
		return []*account.Account{}, 0, nil
	}
	return s.page(set, opts), set.len(), nil
}

func (s *Store) ListAccountsByConsumer(_ context.Context, consumer common.Address, opts account.ListOpts) ([]*account.Account, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, 0, escrow.ErrStoreClosed
	}

	set, ok := s.byConsumer[consumer]
	if !ok {
		return []*account.Account{}, 0, nil
	}
	return s.page(set, opts), set.len(), nil
}

func (s *Store) GetAccounts(_ context.Context, keys []account.Key) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, escrow.ErrStoreClosed
	}

	out := make([]*account.Account, len(keys))
	for i, key := range keys {
		if a, ok := s.accounts[key]; ok {
			out[i] = a.Clone()
		}
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return escrow.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// CheckConsistency verifies that the primary map and the three key sets
// describe exactly the same accounts.
func (s *Store) CheckConsistency() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.all.len() != len(s.accounts) {
		return fmt.Errorf("memory: %d keys indexed for %d accounts", s.all.len(), len(s.accounts))
	}
	if err := checkSet(s.all); err != nil {
		return fmt.Errorf("memory: all: %w", err)
	}

	for key, a := range s.accounts {
		if a.Key() != key {
			return fmt.Errorf("memory: account %s stored under %s", a.Key(), key)
		}
		if !s.all.contains(key) {
			return fmt.Errorf("memory: %s missing from key set", key)
		}
		if set, ok := s.byConsumer[key.Consumer]; !ok || !set.contains(key) {
			return fmt.Errorf("memory: %s missing from consumer index", key)
		}
		if set, ok := s.byProvider[key.Provider]; !ok || !set.contains(key) {
			return fmt.Errorf("memory: %s missing from provider index", key)
		}
		if _, ok := s.tombstones[key]; ok {
			return fmt.Errorf("memory: %s is both live and tombstoned", key)
		}
	}

	for key, t := range s.tombstones {
		if !t.Balance.IsZero() || t.Refunds.ActiveCount != 0 || len(t.Deliverables.Records) != 0 {
			return fmt.Errorf("memory: tombstone %s not cleared", key)
		}
	}

	for name, index := range map[string]map[common.Address]*keySet{
		"consumer": s.byConsumer,
		"provider": s.byProvider,
	} {
		total := 0
		for addr, set := range index {
			if set.len() == 0 {
				return fmt.Errorf("memory: empty %s set retained for %s", name, addr.Hex())
			}
			if err := checkSet(set); err != nil {
				return fmt.Errorf("memory: %s %s: %w", name, addr.Hex(), err)
			}
			for _, key := range set.keys {
				if _, ok := s.accounts[key]; !ok {
					return fmt.Errorf("memory: %s index holds removed key %s", name, key)
				}
			}
			total += set.len()
		}
		if total != len(s.accounts) {
			return fmt.Errorf("memory: %s index holds %d keys for %d accounts", name, total, len(s.accounts))
		}
	}
	return nil
}

// page clones the accounts of set within opts. Caller holds the lock.
func (s *Store) page(set *keySet, opts account.ListOpts) []*account.Account {
	start, end := opts.Page(set.len())
	out := make([]*account.Account, 0, end-start)
	for _, key := range set.keys[start:end] {
		out = append(out, s.accounts[key].Clone())
	}
	return out
}

func indexAdd(index map[common.Address]*keySet, addr common.Address, key account.Key) {
	set, ok := index[addr]
	if !ok {
		set = newKeySet()
		index[addr] = set
	}
	set.add(key)
}

func indexRemove(index map[common.Address]*keySet, addr common.Address, key account.Key) {
	set, ok := index[addr]
	if !ok {
		return
	}
	set.remove(key)
	if set.len() == 0 {
		delete(index, addr)
	}
}

func checkSet(set *keySet) error {
	if len(set.pos) != len(set.keys) {
		return fmt.Errorf("%d positions for %d keys", len(set.pos), len(set.keys))
	}
	for i, key := range set.keys {
		if set.pos[key] != i {
			return fmt.Errorf("key %s at %d recorded at %d", key, i, set.pos[key])
		}
	}
	return nil
}
