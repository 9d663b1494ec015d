// Package state implements the replicated account store: balances,
// nonces, validator stakes, Merkle state roots, and atomic multi-
// transaction application with snapshot/restore.
package state

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/crypto"
)

// Store is the single in-memory replicated state. Reads are safe
// concurrently with each other; writes (apply/set/validator changes)
// serialize behind a single reader-writer lock, mirroring the
// teacher's StateManager discipline of one mutex guarding the whole map
// rather than per-key locking.
type Store struct {
	mu          sync.RWMutex
	accounts    map[chain.PubKey]chain.Account
	validators  map[chain.PubKey]uint64
	totalSupply uint64
}

// New returns an empty state store.
func New() *Store {
	return &Store{
		accounts:   make(map[chain.PubKey]chain.Account),
		validators: make(map[chain.PubKey]uint64),
	}
}

// GetAccount returns pk's account, or the zero Account if pk was never
// written — it never fails.
func (s *Store) GetAccount(pk chain.PubKey) chain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[pk]
}

// SetAccount unconditionally overwrites pk's account. supplyDelta is
// the caller-declared change in circulating supply this write causes
// (0 for a pure transfer-balanced write); the caller must account for
// it so total_supply cannot silently drift out of conservation — the
// ambiguity the reference design left open.
func (s *Store) SetAccount(pk chain.PubKey, a chain.Account, supplyDelta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[pk] = a
	s.applySupplyDelta(supplyDelta)
}

func (s *Store) applySupplyDelta(delta int64) {
	if delta >= 0 {
		s.totalSupply += uint64(delta)
	} else {
		d := uint64(-delta)
		if d > s.totalSupply {
			s.totalSupply = 0
		} else {
			s.totalSupply -= d
		}
	}
}

// ValidateTransaction performs the stateful checks apply_transaction
// would make, without mutating state.
func (s *Store) ValidateTransaction(tx *chain.Transaction) error {
	if tx.IsCoinbase() {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sender := s.accounts[tx.From]
	if tx.Nonce != sender.Nonce {
		return fmt.Errorf("%w: account nonce %d, tx nonce %d", chain.ErrInvalidNonce, sender.Nonce, tx.Nonce)
	}
	if !sender.CanAfford(tx.Amount, tx.Fee) {
		return fmt.Errorf("%w: balance %d, need %d", chain.ErrInsufficientBalance, sender.Balance, tx.Amount+tx.Fee)
	}
	return nil
}

// ApplyTransaction mutates state per the transaction application rules:
// coinbase mints to the recipient and bumps total_supply; a regular
// transaction debits amount+fee from the sender (fees are burned, not
// forwarded — see the state-root design notes), increments the sender's
// nonce, and credits amount to the recipient.
func (s *Store) ApplyTransaction(tx *chain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyTransactionLocked(tx)
}

func (s *Store) applyTransactionLocked(tx *chain.Transaction) error {
	if tx.IsCoinbase() {
		recipient := s.accounts[tx.To]
		recipient.Balance += tx.Amount
		s.accounts[tx.To] = recipient
		s.totalSupply += tx.Amount
		return nil
	}

	sender := s.accounts[tx.From]
	if tx.Nonce != sender.Nonce {
		return fmt.Errorf("%w: account nonce %d, tx nonce %d", chain.ErrInvalidNonce, sender.Nonce, tx.Nonce)
	}
	if !sender.CanAfford(tx.Amount, tx.Fee) {
		return fmt.Errorf("%w: balance %d, need %d", chain.ErrInsufficientBalance, sender.Balance, tx.Amount+tx.Fee)
	}
	sender.Balance -= tx.Amount + tx.Fee
	sender.Nonce++
	s.accounts[tx.From] = sender

	recipient := s.accounts[tx.To]
	recipient.Balance += tx.Amount
	s.accounts[tx.To] = recipient
	// Fee is burned: it leaves the sender's balance and is credited
	// nowhere, matching the reference design's behavior of never
	// crediting a proposer or a burn account.
	return nil
}

// ApplyTransactions applies txs sequentially in order and returns the
// resulting state root. It does not roll back partial application on
// error — callers wanting atomicity must use ApplyTransactionsAtomic.
func (s *Store) ApplyTransactions(txs []chain.Transaction) (chain.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range txs {
		if err := s.applyTransactionLocked(&txs[i]); err != nil {
			return chain.Hash{}, fmt.Errorf("apply tx %d: %w", i, err)
		}
	}
	return s.computeStateRootLocked(), nil
}

// ApplyTransactionsAtomic snapshots state, applies txs sequentially, and
// restores the pre-call snapshot on any error, surfacing it to the
// caller. On success the application is kept — this is the one place
// a block's transactions actually take effect against the replicated
// state, called exactly once per committed block.
func (s *Store) ApplyTransactionsAtomic(txs []chain.Transaction) (chain.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	for i := range txs {
		if err := s.applyTransactionLocked(&txs[i]); err != nil {
			s.restoreLocked(snap)
			return chain.Hash{}, fmt.Errorf("apply tx %d: %w", i, err)
		}
	}
	return s.computeStateRootLocked(), nil
}

// SimulateTransactions reports the state root txs would produce without
// keeping the application — always restoring the pre-call snapshot,
// success or failure. Used wherever a state root needs recomputing
// without it being the block's actual commit: proposal construction and
// proposal re-validation both dry-run through here, so a transaction
// set is applied for real exactly once, at commit time.
func (s *Store) SimulateTransactions(txs []chain.Transaction) (chain.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshotLocked()
	defer s.restoreLocked(snap)

	for i := range txs {
		if err := s.applyTransactionLocked(&txs[i]); err != nil {
			return chain.Hash{}, fmt.Errorf("apply tx %d: %w", i, err)
		}
	}
	return s.computeStateRootLocked(), nil
}

// ComputeStateRoot returns the Merkle root over every account's
// canonical (pubkey, account) leaf, sorted by leaf hash for
// insertion-order independence.
func (s *Store) ComputeStateRoot() chain.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.computeStateRootLocked()
}

func (s *Store) computeStateRootLocked() chain.Hash {
	leaves := make([]chain.Hash, 0, len(s.accounts))
	for pk, a := range s.accounts {
		leaves = append(leaves, chain.HashBytes(chain.EncodeAccountLeaf(pk, a)))
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Less(leaves[j]) })
	return crypto.BuildMerkleTree(leaves).Root()
}

// AddValidator sets pk's stake, adding pk to the validator set if new.
func (s *Store) AddValidator(pk chain.PubKey, stake uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validators[pk] = stake
}

// RemoveValidator removes pk from the validator set.
func (s *Store) RemoveValidator(pk chain.PubKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.validators, pk)
}

// GetValidatorStake returns pk's stake, or 0 if pk is not a validator.
func (s *Store) GetValidatorStake(pk chain.PubKey) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validators[pk]
}

// TotalValidatorStake returns the sum of all validator stakes.
func (s *Store) TotalValidatorStake() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total uint64
	for _, stake := range s.validators {
		total += stake
	}
	return total
}

// Validators returns a snapshot copy of the validator set, keyed by
// public key.
func (s *Store) Validators() map[chain.PubKey]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[chain.PubKey]uint64, len(s.validators))
	for pk, stake := range s.validators {
		out[pk] = stake
	}
	return out
}

// TotalSupply returns the current circulating supply counter.
func (s *Store) TotalSupply() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalSupply
}
