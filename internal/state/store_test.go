package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccchain/ccchain/internal/chain"
)

func pk(b byte) chain.PubKey {
	var p chain.PubKey
	p[0] = b
	return p
}

func TestApplyTransactionRegular(t *testing.T) {
	s := New()
	alice := pk(1)
	bob := pk(2)
	s.SetAccount(alice, chain.Account{Balance: 1000}, 1000)

	tx := chain.Transaction{From: alice, To: bob, Amount: 100, Fee: 10, Nonce: 0}
	require.NoError(t, s.ApplyTransaction(&tx))

	a := s.GetAccount(alice)
	require.Equal(t, uint64(890), a.Balance)
	require.Equal(t, uint64(1), a.Nonce)
	b := s.GetAccount(bob)
	require.Equal(t, uint64(100), b.Balance)
}

func TestApplyTransactionCoinbase(t *testing.T) {
	s := New()
	bob := pk(2)
	tx := chain.Transaction{From: chain.ZeroPubKey, To: bob, Amount: 50}
	require.NoError(t, s.ApplyTransaction(&tx))
	require.Equal(t, uint64(50), s.GetAccount(bob).Balance)
	require.Equal(t, uint64(50), s.TotalSupply())
}

func TestApplyTransactionInsufficientBalance(t *testing.T) {
	s := New()
	alice := pk(1)
	s.SetAccount(alice, chain.Account{Balance: 10}, 10)
	tx := chain.Transaction{From: alice, To: pk(2), Amount: 100, Fee: 10}
	err := s.ApplyTransaction(&tx)
	require.ErrorIs(t, err, chain.ErrInsufficientBalance)
}

func TestApplyTransactionInvalidNonce(t *testing.T) {
	s := New()
	alice := pk(1)
	s.SetAccount(alice, chain.Account{Balance: 1000}, 1000)
	tx := chain.Transaction{From: alice, To: pk(2), Amount: 10, Nonce: 5}
	err := s.ApplyTransaction(&tx)
	require.ErrorIs(t, err, chain.ErrInvalidNonce)
}

func TestApplyTransactionsAtomicRollsBackOnError(t *testing.T) {
	s := New()
	alice := pk(1)
	s.SetAccount(alice, chain.Account{Balance: 100}, 100)
	before := s.ComputeStateRoot()

	txs := []chain.Transaction{
		{From: alice, To: pk(2), Amount: 50, Nonce: 0},
		{From: alice, To: pk(2), Amount: 1000, Nonce: 1}, // fails: insufficient balance
	}
	_, err := s.ApplyTransactionsAtomic(txs)
	require.Error(t, err)
	require.Equal(t, before, s.ComputeStateRoot())
	require.Equal(t, uint64(100), s.GetAccount(alice).Balance)
}

func TestApplyTransactionsAtomicCommitsOnSuccess(t *testing.T) {
	s := New()
	alice := pk(1)
	s.SetAccount(alice, chain.Account{Balance: 100}, 100)

	txs := []chain.Transaction{
		{From: alice, To: pk(2), Amount: 50, Nonce: 0},
	}
	root, err := s.ApplyTransactionsAtomic(txs)
	require.NoError(t, err)
	require.Equal(t, root, s.ComputeStateRoot())
	require.Equal(t, uint64(50), s.GetAccount(pk(2)).Balance)
}

func TestSimulateTransactionsNeverCommits(t *testing.T) {
	s := New()
	alice := pk(1)
	s.SetAccount(alice, chain.Account{Balance: 100}, 100)
	before := s.ComputeStateRoot()

	txs := []chain.Transaction{
		{From: alice, To: pk(2), Amount: 50, Nonce: 0},
	}
	root, err := s.SimulateTransactions(txs)
	require.NoError(t, err)
	require.NotEqual(t, before, root) // the simulated root reflects the transfer...
	require.Equal(t, before, s.ComputeStateRoot())
	require.Equal(t, uint64(100), s.GetAccount(alice).Balance)
	require.Equal(t, uint64(0), s.GetAccount(pk(2)).Balance)

	// Simulating twice in a row must be idempotent: neither call leaves
	// a trace for the next one to build on.
	root2, err := s.SimulateTransactions(txs)
	require.NoError(t, err)
	require.Equal(t, root, root2)
}

func TestStateRootOrderIndependent(t *testing.T) {
	s1 := New()
	s1.SetAccount(pk(1), chain.Account{Balance: 10}, 10)
	s1.SetAccount(pk(2), chain.Account{Balance: 20}, 20)

	s2 := New()
	s2.SetAccount(pk(2), chain.Account{Balance: 20}, 20)
	s2.SetAccount(pk(1), chain.Account{Balance: 10}, 10)

	require.Equal(t, s1.ComputeStateRoot(), s2.ComputeStateRoot())
}

func TestEmptyStateRootIsZero(t *testing.T) {
	s := New()
	require.Equal(t, chain.ZeroHash, s.ComputeStateRoot())
}

func TestValidatorStakeAddRemove(t *testing.T) {
	s := New()
	s.AddValidator(pk(1), 100)
	s.AddValidator(pk(2), 100)
	require.Equal(t, uint64(200), s.TotalValidatorStake())
	s.RemoveValidator(pk(1))
	require.Equal(t, uint64(100), s.TotalValidatorStake())
}
