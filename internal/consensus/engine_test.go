package consensus

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/crypto"
	"github.com/ccchain/ccchain/internal/mempool"
	"github.com/ccchain/ccchain/internal/state"
)

// loopbackNet feeds every broadcast straight back into the same engine,
// simulating a single-validator network where self is the only peer.
type loopbackNet struct {
	engine *Engine
}

func (n *loopbackNet) BroadcastProposal(p Proposal)      { n.engine.SubmitProposal(p) }
func (n *loopbackNet) BroadcastVote(v Vote)              { n.engine.SubmitVote(v) }
func (n *loopbackNet) BroadcastViewChange(vc ViewChange) { n.engine.SubmitViewChange(vc) }
func (n *loopbackNet) BroadcastNewView(nv NewViewMsg)    { n.engine.SubmitNewView(nv) }

func TestSingleValidatorHappyPathCommits(t *testing.T) {
	pk, priv := crypto.GenerateKey(nil)

	alice, alicePriv := crypto.GenerateKey(nil)
	bob, _ := crypto.GenerateKey(nil)

	st := state.New()
	st.SetAccount(alice, chain.Account{Balance: 1000}, 1000)

	c := chain.NewChain()
	genesis := chain.NewGenesisBlock(st.ComputeStateRoot(), 0)
	require.NoError(t, c.InitGenesis(genesis))

	pool := mempool.New(mempool.Config{MinFeePerByte: 0}, st)
	tx := chain.Transaction{From: alice, To: bob, Amount: 100, Fee: 10, Nonce: 0}
	crypto.SignTransaction(alicePriv, &tx)
	require.NoError(t, pool.AddTransaction(tx))

	vs := NewValidatorSet(map[chain.PubKey]uint64{pk: 100})

	cfg := Config{
		SelfKey:        pk,
		SelfPriv:       priv,
		GasLimit:       1_000_000,
		MaxTxsPerBlock: 100,
		BaseTimeout:    2 * time.Second,
	}

	engine := New(cfg, zap.NewNop(), c, st, pool, nil, nil, vs)
	engine.net = &loopbackNet{engine: engine}

	engine.tick()

	require.Equal(t, uint64(2), engine.State().Height) // advanced past the committed block
	head, err := c.Head()
	require.NoError(t, err)
	require.Equal(t, uint64(1), head.Header.Height)
	require.Equal(t, uint64(890), st.GetAccount(alice).Balance)
	require.Equal(t, uint64(100), st.GetAccount(bob).Balance)
}

// nopBroadcaster discards everything it's handed; used where a test
// only cares about one engine's own state transitions and never needs
// its messages delivered anywhere.
type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastProposal(Proposal)     {}
func (nopBroadcaster) BroadcastVote(Vote)             {}
func (nopBroadcaster) BroadcastViewChange(ViewChange) {}
func (nopBroadcaster) BroadcastNewView(NewViewMsg)    {}

// TestTimeoutWithoutQuorumEntersViewChange exercises a follower (never
// the leader for this height/view) whose phase deadline has already
// elapsed: a single tick must move it into ViewChange for the next view
// without reaching a quorum on its own lone vote.
func TestTimeoutWithoutQuorumEntersViewChange(t *testing.T) {
	stakes := map[chain.PubKey]uint64{}
	keys := make([]chain.PubKey, 3)
	privs := make([]ed25519.PrivateKey, 3)
	for i := range keys {
		pk, priv := crypto.GenerateKey(nil)
		keys[i] = pk
		privs[i] = priv
		stakes[pk] = 100
	}
	vs := NewValidatorSet(stakes)

	st := state.New()
	c := chain.NewChain()
	genesis := chain.NewGenesisBlock(st.ComputeStateRoot(), 0)
	require.NoError(t, c.InitGenesis(genesis))

	leader := vs.Leader(1, 0)
	var followerIdx int
	for i, pk := range keys {
		if pk != leader {
			followerIdx = i
			break
		}
	}

	pool := mempool.New(mempool.Config{}, st)
	engine := New(Config{
		SelfKey:        keys[followerIdx],
		SelfPriv:       privs[followerIdx],
		GasLimit:       1_000_000,
		MaxTxsPerBlock: 10,
		BaseTimeout:    10 * time.Millisecond,
	}, zap.NewNop(), c, st, pool, nopBroadcaster{}, nil, vs)

	engine.mu.Lock()
	engine.deadline = time.Now().Add(-time.Second)
	engine.mu.Unlock()

	engine.tick()

	require.Equal(t, PhaseViewChange, engine.State().Phase)
	require.Equal(t, uint64(0), engine.State().View) // advance to view 1 happens only once a view-change quorum or the next leader's NewView arrives
}
