package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccchain/ccchain/internal/chain"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}
	pk, priv := GenerateKey(seed)
	msg := []byte("ccchain")
	sig := Sign(priv, msg)
	require.True(t, Verify(pk, msg, sig))
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	pk, priv := GenerateKey(nil)
	sig := Sign(priv, []byte("original"))
	require.False(t, Verify(pk, []byte("tampered"), sig))
}

func TestVerifyNeverPanicsOnMalformedInput(t *testing.T) {
	var pk chain.PubKey
	var sig chain.Sig
	require.NotPanics(t, func() {
		Verify(pk, []byte("anything"), sig)
	})
}

func TestMerkleRoundTrip(t *testing.T) {
	leaves := make([]chain.Hash, 0, 7)
	for i := 0; i < 7; i++ {
		leaves = append(leaves, HashBytes([]byte{byte(i)}))
	}
	tree := BuildMerkleTree(leaves)
	root := tree.Root()
	for i, leaf := range leaves {
		proof, ok := tree.Proof(i)
		require.True(t, ok)
		require.True(t, VerifyProof(root, leaf, proof, i))
	}
}

func TestMerkleEmptyTreeIsZeroRoot(t *testing.T) {
	tree := BuildMerkleTree(nil)
	require.Equal(t, chain.ZeroHash, tree.Root())
}

func TestMerkleProofOutOfRange(t *testing.T) {
	tree := BuildMerkleTree([]chain.Hash{HashBytes([]byte("a"))})
	_, ok := tree.Proof(5)
	require.False(t, ok)
}

func TestSignatureAggregatorBatch(t *testing.T) {
	agg := NewSignatureAggregator()
	for i := 0; i < 4; i++ {
		pk, priv := GenerateKey(nil)
		msg := []byte{byte(i)}
		agg.Add(pk, msg, Sign(priv, msg))
	}
	require.True(t, agg.VerifyBatch())

	pk, _ := GenerateKey(nil)
	_, other := GenerateKey(nil)
	agg.Add(pk, []byte("bad"), Sign(other, []byte("bad")))
	require.False(t, agg.VerifyBatch())
}

func TestParallelHashMultiplePreservesOrder(t *testing.T) {
	pieces := make([][]byte, 50)
	for i := range pieces {
		pieces[i] = []byte{byte(i), byte(i * 2)}
	}
	got := ParallelHashMultiple(pieces)
	for i, p := range pieces {
		require.Equal(t, HashBytes(p), got[i])
	}
}

func TestHashCacheMemoizesAndEvictsFIFO(t *testing.T) {
	c := NewHashCache(2)
	h1 := c.Hash([]byte("a"))
	require.Equal(t, h1, c.Hash([]byte("a")))
	c.Hash([]byte("b"))
	require.Equal(t, 2, c.Len())
	c.Hash([]byte("c")) // evicts "a"
	require.Equal(t, 2, c.Len())
	require.NotContains(t, c.index, "a")
	require.Contains(t, c.index, "b")
}
