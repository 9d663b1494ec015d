package verifier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/crypto"
)

func TestVerifySignaturesParallelPreservesOrder(t *testing.T) {
	v := New(4)
	txs := make([]chain.Transaction, 10)
	for i := range txs {
		pk, priv := crypto.GenerateKey(nil)
		txs[i] = chain.Transaction{From: pk, To: chain.PubKey{1}, Amount: uint64(i), Nonce: 0}
		crypto.SignTransaction(priv, &txs[i])
	}
	txs[3].Amount = 999999 // invalidate signature for this one

	results := v.VerifySignaturesParallel(txs)
	require.Len(t, results, 10)
	for i, ok := range results {
		if i == 3 {
			require.False(t, ok)
		} else {
			require.True(t, ok)
		}
	}
}

func TestExecuteParallelPreservesOrder(t *testing.T) {
	v := New(3)
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	results := ExecuteParallel(v, items, func(x *int) int { return *x * 2 })
	for i, r := range results {
		require.Equal(t, items[i]*2, r)
	}
}
