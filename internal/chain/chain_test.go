package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChainGenesisAndAppend(t *testing.T) {
	c := NewChain()
	genesis := NewGenesisBlock(ZeroHash, 0)
	require.NoError(t, c.InitGenesis(genesis))
	require.Equal(t, genesis.Hash(), c.HeadHash())
	require.Equal(t, genesis.Hash(), c.GenesisHash())

	next := &Block{Header: BlockHeader{
		PrevHash:  genesis.Hash(),
		Height:    1,
		Timestamp: 1,
	}}
	require.NoError(t, c.AppendBlock(next))
	require.Equal(t, next.Hash(), c.HeadHash())
	require.Equal(t, uint64(1), c.Height())
}

func TestChainRejectsNonExtendingBlock(t *testing.T) {
	c := NewChain()
	genesis := NewGenesisBlock(ZeroHash, 0)
	require.NoError(t, c.InitGenesis(genesis))

	bad := &Block{Header: BlockHeader{PrevHash: Hash{0xff}, Height: 1, Timestamp: 1}}
	err := c.AppendBlock(bad)
	require.Error(t, err)
}

func TestChainRejectsWrongHeight(t *testing.T) {
	c := NewChain()
	genesis := NewGenesisBlock(ZeroHash, 0)
	require.NoError(t, c.InitGenesis(genesis))

	bad := &Block{Header: BlockHeader{PrevHash: genesis.Hash(), Height: 5, Timestamp: 1}}
	err := c.AppendBlock(bad)
	require.ErrorIs(t, err, ErrInvalidBlockHeight)
}

func TestTransactionIDDoesNotDependOnSignature(t *testing.T) {
	tx := Transaction{From: PubKey{1}, To: PubKey{2}, Amount: 10, Fee: 1}
	id1 := tx.ID()
	tx.Signature = Sig{0xAB}
	id2 := tx.ID()
	require.Equal(t, id1, id2)
}
