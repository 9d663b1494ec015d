package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/consensus"
)

type stubMempool struct {
	added []chain.Transaction
}

func (m *stubMempool) AddTransaction(tx chain.Transaction) error {
	m.added = append(m.added, tx)
	return nil
}

// noopConsensus discards every message routed to it; these tests only
// exercise the handshake, peer lifecycle, and tx-gossip paths.
type noopConsensus struct{}

func (noopConsensus) SubmitProposal(consensus.Proposal)     {}
func (noopConsensus) SubmitVote(consensus.Vote)             {}
func (noopConsensus) SubmitViewChange(consensus.ViewChange) {}
func (noopConsensus) SubmitNewView(consensus.NewViewMsg)    {}

func newTestChain(t *testing.T) *chain.Chain {
	t.Helper()
	c := chain.NewChain()
	genesis := chain.NewGenesisBlock(chain.ZeroHash, 0)
	require.NoError(t, c.InitGenesis(genesis))
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHandshakeAcceptsMatchingGenesis(t *testing.T) {
	c1 := newTestChain(t)
	c2 := c1 // both sides must share one genesis to connect successfully

	mp := &stubMempool{}
	a := New(Config{SelfID: chain.PubKey{1}, ListenAddr: "127.0.0.1:0"}, zap.NewNop(), c1, mp, noopConsensus{})
	require.NoError(t, a.Listen())
	defer a.Stop()
	a.Start(time.Minute)

	b := New(Config{SelfID: chain.PubKey{2}, ListenAddr: "127.0.0.1:0"}, zap.NewNop(), c2, mp, noopConsensus{})
	require.NoError(t, b.Listen())
	defer b.Stop()
	b.Start(time.Minute)

	require.NoError(t, b.Connect(a.listener.Addr().String()))

	waitFor(t, func() bool { return len(a.GetPeers()) == 1 })
	waitFor(t, func() bool { return len(b.GetPeers()) == 1 })
}

func TestHandshakeRejectsGenesisMismatch(t *testing.T) {
	c1 := newTestChain(t)
	c2 := chain.NewChain()
	require.NoError(t, c2.InitGenesis(chain.NewGenesisBlock(chain.ZeroHash, 1))) // differing timestamp -> differing hash

	mp := &stubMempool{}
	a := New(Config{SelfID: chain.PubKey{1}, ListenAddr: "127.0.0.1:0"}, zap.NewNop(), c1, mp, noopConsensus{})
	require.NoError(t, a.Listen())
	defer a.Stop()
	a.Start(time.Minute)

	b := New(Config{SelfID: chain.PubKey{2}, ListenAddr: "127.0.0.1:0"}, zap.NewNop(), c2, mp, noopConsensus{})

	err := b.Connect(a.listener.Addr().String())
	require.Error(t, err)
}

func TestGossipedTransactionReachesMempool(t *testing.T) {
	c := newTestChain(t)
	mpA := &stubMempool{}
	mpB := &stubMempool{}

	a := New(Config{SelfID: chain.PubKey{1}, ListenAddr: "127.0.0.1:0"}, zap.NewNop(), c, mpA, noopConsensus{})
	require.NoError(t, a.Listen())
	defer a.Stop()
	a.Start(time.Minute)

	b := New(Config{SelfID: chain.PubKey{2}, ListenAddr: "127.0.0.1:0"}, zap.NewNop(), c, mpB, noopConsensus{})
	require.NoError(t, b.Listen())
	defer b.Stop()
	b.Start(time.Minute)

	require.NoError(t, b.Connect(a.listener.Addr().String()))
	waitFor(t, func() bool { return len(a.GetPeers()) == 1 })

	tx := chain.Transaction{From: chain.PubKey{9}, To: chain.PubKey{8}, Amount: 5}
	a.BroadcastTransaction(tx)

	waitFor(t, func() bool { return len(mpB.added) == 1 })
	require.Equal(t, tx, mpB.added[0])
}

func TestCleanupPeersDropsStaleConnections(t *testing.T) {
	c := newTestChain(t)
	mp := &stubMempool{}
	a := New(Config{SelfID: chain.PubKey{1}, ListenAddr: "127.0.0.1:0"}, zap.NewNop(), c, mp, noopConsensus{})
	require.NoError(t, a.Listen())
	defer a.Stop()
	a.Start(time.Hour) // disable the automatic loop; cleanup is invoked manually below

	b := New(Config{SelfID: chain.PubKey{2}, ListenAddr: "127.0.0.1:0"}, zap.NewNop(), c, mp, noopConsensus{})
	require.NoError(t, b.Connect(a.listener.Addr().String()))

	waitFor(t, func() bool { return len(a.GetPeers()) == 1 })

	a.mu.Lock()
	for _, p := range a.peers {
		p.mu.Lock()
		p.lastSeen = time.Now().Add(-time.Hour)
		p.mu.Unlock()
	}
	a.mu.Unlock()

	a.CleanupPeers(time.Minute)
	require.Empty(t, a.GetPeers())
}
