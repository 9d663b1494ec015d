package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccchain/ccchain/internal/chain"
)

func TestCommitGenesisAndReadBack(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	genesis := chain.NewGenesisBlock(chain.ZeroHash, 0)
	accounts := map[chain.PubKey]chain.Account{
		{1}: {Balance: 1000, Nonce: 0},
	}
	require.NoError(t, s.CommitGenesis(genesis, accounts, 1000))

	head, ok, err := s.Head()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, genesis.Hash(), head)

	gotGenesisHash, ok, err := s.Genesis()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, genesis.Hash(), gotGenesisHash)

	got, err := s.GetBlock(genesis.Hash())
	require.NoError(t, err)
	require.Equal(t, genesis.Header, got.Header)

	byHeight, err := s.GetBlockByHeight(0)
	require.NoError(t, err)
	require.Equal(t, genesis.Hash(), byHeight.Hash())

	supply, err := s.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, uint64(1000), supply)

	loaded, err := s.LoadAccounts()
	require.NoError(t, err)
	require.Equal(t, accounts, loaded)
}

func TestCommitBlockUpdatesHeadAndAccounts(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	genesis := chain.NewGenesisBlock(chain.ZeroHash, 0)
	require.NoError(t, s.CommitGenesis(genesis, nil, 0))

	next := &chain.Block{Header: chain.BlockHeader{
		PrevHash:  genesis.Hash(),
		Height:    1,
		Timestamp: 1,
	}}
	pk := chain.PubKey{2}
	touched := map[chain.PubKey]chain.Account{pk: {Balance: 500}}
	require.NoError(t, s.CommitBlock(next, touched, 500))

	head, ok, err := s.Head()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, next.Hash(), head)

	acct, err := s.LoadAccounts()
	require.NoError(t, err)
	require.Equal(t, uint64(500), acct[pk].Balance)

	supply, err := s.TotalSupply()
	require.NoError(t, err)
	require.Equal(t, uint64(500), supply)
}

func TestRebuildChainReplaysPersistedBlocks(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	genesis := chain.NewGenesisBlock(chain.ZeroHash, 0)
	require.NoError(t, s.CommitGenesis(genesis, nil, 0))

	next := &chain.Block{Header: chain.BlockHeader{
		PrevHash:  genesis.Hash(),
		Height:    1,
		Timestamp: 1,
	}}
	require.NoError(t, s.CommitBlock(next, nil, 0))

	c := chain.NewChain()
	require.NoError(t, s.RebuildChain(c))
	require.Equal(t, uint64(1), c.Height())
	require.Equal(t, next.Hash(), c.HeadHash())
	require.Equal(t, genesis.Hash(), c.GenesisHash())
}

func TestRebuildChainNoopOnEmptyStore(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	c := chain.NewChain()
	require.NoError(t, s.RebuildChain(c))
	require.Equal(t, uint64(0), c.Height())
}
