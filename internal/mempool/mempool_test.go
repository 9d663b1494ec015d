package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/crypto"
)

type fakeState struct {
	nonces map[chain.PubKey]uint64
}

func (f *fakeState) GetAccount(pk chain.PubKey) chain.Account {
	return chain.Account{Nonce: f.nonces[pk]}
}

func makeTx(t *testing.T, from chain.PubKey, privSeed byte, to chain.PubKey, amount, fee, nonce uint64) chain.Transaction {
	seed := make([]byte, 32)
	seed[0] = privSeed
	pk, priv := crypto.GenerateKey(seed)
	tx := chain.Transaction{From: pk, To: to, Amount: amount, Fee: fee, Nonce: nonce}
	crypto.SignTransaction(priv, &tx)
	return tx
}

func TestAddTransactionRejectsDuplicate(t *testing.T) {
	fs := &fakeState{nonces: map[chain.PubKey]uint64{}}
	mp := New(Config{MinFeePerByte: 0}, fs)
	tx := makeTx(t, chain.PubKey{}, 1, chain.PubKey{2}, 100, 10, 0)
	require.NoError(t, mp.AddTransaction(tx))
	err := mp.AddTransaction(tx)
	require.ErrorIs(t, err, chain.ErrDuplicateTx)
}

func TestAddTransactionRejectsStale(t *testing.T) {
	fs := &fakeState{nonces: map[chain.PubKey]uint64{}}
	mp := New(Config{MinFeePerByte: 0}, fs)
	tx := makeTx(t, chain.PubKey{}, 1, chain.PubKey{2}, 100, 10, 0)
	fs.nonces[tx.From] = 1
	err := mp.AddTransaction(tx)
	require.ErrorIs(t, err, chain.ErrStaleTx)
}

func TestAddTransactionRejectsLowFee(t *testing.T) {
	fs := &fakeState{nonces: map[chain.PubKey]uint64{}}
	mp := New(Config{MinFeePerByte: 1.0}, fs)
	tx := makeTx(t, chain.PubKey{}, 1, chain.PubKey{2}, 100, 1, 0)
	err := mp.AddTransaction(tx)
	require.Error(t, err)
}

func TestPriorityOrdering(t *testing.T) {
	fs := &fakeState{nonces: map[chain.PubKey]uint64{}}
	mp := New(Config{MinFeePerByte: 0}, fs)

	t1 := makeTx(t, chain.PubKey{}, 1, chain.PubKey{9}, 0, 10, 0)
	t2 := makeTx(t, chain.PubKey{}, 2, chain.PubKey{9}, 0, 50, 0)
	t3 := makeTx(t, chain.PubKey{}, 3, chain.PubKey{9}, 0, 30, 0)

	require.NoError(t, mp.AddTransaction(t1))
	require.NoError(t, mp.AddTransaction(t2))
	require.NoError(t, mp.AddTransaction(t3))

	got := mp.GetTransactionsForBlock(2, ^uint64(0))
	require.Len(t, got, 2)
	require.Equal(t, t2.ID(), got[0].ID())
	require.Equal(t, t3.ID(), got[1].ID())
}

func TestNonceGapHeldBack(t *testing.T) {
	fs := &fakeState{nonces: map[chain.PubKey]uint64{}}
	mp := New(Config{MinFeePerByte: 0}, fs)

	seed := make([]byte, 32)
	seed[0] = 7
	pk, priv := crypto.GenerateKey(seed)

	tx1 := chain.Transaction{From: pk, To: chain.PubKey{1}, Amount: 1, Fee: 10, Nonce: 1}
	crypto.SignTransaction(priv, &tx1)
	require.NoError(t, mp.AddTransaction(tx1))

	got := mp.GetTransactionsForBlock(10, ^uint64(0))
	require.Empty(t, got, "nonce 1 should be held back while nonce 0 is missing")
}

func TestPruneCommittedRemovesIncludedAndStale(t *testing.T) {
	fs := &fakeState{nonces: map[chain.PubKey]uint64{}}
	mp := New(Config{MinFeePerByte: 0}, fs)
	tx := makeTx(t, chain.PubKey{}, 1, chain.PubKey{2}, 100, 10, 0)
	require.NoError(t, mp.AddTransaction(tx))
	stale := makeTx(t, chain.PubKey{}, 2, chain.PubKey{2}, 100, 10, 0)
	require.NoError(t, mp.AddTransaction(stale))
	fs.nonces[stale.From] = 1 // sender's nonce has moved past the pooled tx
	require.Equal(t, 2, mp.Count())
	mp.PruneCommitted([]chain.Transaction{tx})
	require.Equal(t, 0, mp.Count())
}

func TestSmartBatcherTriggersOnCount(t *testing.T) {
	fs := &fakeState{nonces: map[chain.PubKey]uint64{}}
	mp := New(Config{MinFeePerByte: 0}, fs)
	b := NewSmartBatcher(mp, BatcherConfig{MaxTxs: 1, MaxGas: ^uint64(0), MaxLingerDuration: 9999})
	tx := makeTx(t, chain.PubKey{}, 1, chain.PubKey{2}, 100, 10, 0)
	require.NoError(t, mp.AddTransaction(tx))
	b.Observe()
	require.True(t, b.Ready())
	batch, ok := b.Drain(10, ^uint64(0))
	require.True(t, ok)
	require.Len(t, batch.Txs, 1)
}
