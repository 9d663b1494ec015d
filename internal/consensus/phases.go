package consensus

import (
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/crypto"
)

// exitConsensusDivergence is the node binary's exit status for a block
// that reached a commit quorum but could not be applied locally.
const exitConsensusDivergence = 3

// attemptProposeLocked builds and broadcasts a proposal if this node is
// the leader for the current (height, view) and is still in Propose
// phase with nothing proposed yet this view.
func (e *Engine) attemptProposeLocked() {
	if e.cs.Phase != PhasePropose {
		return
	}
	leader := e.validators.Leader(e.cs.Height, e.cs.View)
	if leader != e.cfg.SelfKey {
		return
	}
	head, err := e.chain.Head()
	if err != nil {
		return
	}
	if head.Header.Height+1 != e.cs.Height {
		return // chain hasn't caught up to this engine's notion of height yet
	}

	txs := e.pool.GetTransactionsForBlock(e.cfg.MaxTxsPerBlock, e.cfg.GasLimit)
	stateRoot, err := e.state.SimulateTransactions(txs)
	if err != nil {
		e.log.Error("proposal dry run failed", zap.Error(err))
		return
	}
	merkleRoot := crypto.BuildMerkleTree(chain.TransactionIDs(txs)).Root()
	timestamp := uint64(time.Now().UnixNano())
	block := chain.NewBlock(head, txs, e.cfg.SelfKey, timestamp, stateRoot, merkleRoot, e.cfg.GasLimit)
	chain.SignBlock(block, e.cfg.SelfPriv)

	hash := block.Hash()
	e.scratchBlocks[hash] = block
	e.safety.RecordProposal(e.cfg.SelfKey, true)
	e.net.BroadcastProposal(Proposal{Block: block, View: e.cs.View})

	// The leader sees its own proposal immediately rather than waiting
	// for the network round trip back to itself.
	e.handleProposalLocked(Proposal{Block: block, View: e.cs.View})
}

// handleProposalLocked validates an incoming proposal and, if it
// passes, casts a Prevote per the locking rule of §4.6.4.
func (e *Engine) handleProposalLocked(p Proposal) {
	block := p.Block
	if block.Header.Height != e.cs.Height {
		return // not for our current height; dropped, including proposals for h+1
	}
	head, err := e.chain.Head()
	if err != nil {
		return
	}
	leaderFn := func(validators chain.ValidatorSet, height, view uint64) chain.PubKey {
		return e.validators.Leader(height, view)
	}
	if err := chain.ValidateBlock(block, head, e.validators, p.View, leaderFn, e.state, e.sigver, e.cfg.GasLimit); err != nil {
		e.log.Debug("rejecting invalid proposal", zap.Error(err))
		e.safety.RecordProposal(block.Header.Proposer, false)
		return
	}
	e.safety.RecordProposal(block.Header.Proposer, true)

	hash := block.Hash()
	e.scratchBlocks[hash] = block

	if e.cs.LockedBlock != nil && *e.cs.LockedBlock != hash {
		return // locked on a different block; withhold prevote
	}

	e.cs.Phase = PhasePrevote
	vote := e.signVote(VotePrevote, hash, p.View)
	e.recordVoteLocked(vote)
	e.net.BroadcastVote(vote)
}

// handleVoteLocked tallies an incoming vote, detects equivocation, and
// advances the phase once a quorum is reached.
func (e *Engine) handleVoteLocked(v Vote) {
	e.recordVoteLocked(v)
}

func (e *Engine) recordVoteLocked(v Vote) {
	if v.Height < e.cs.Height {
		return // past height, discard
	}
	e.safety.RecordActivity(v.Voter)

	key := voteKey{voter: v.Voter, slot: v.Slot()}
	if prior, seen := e.seenVotes[key]; seen {
		if prior != v.BlockHash {
			e.safety.RecordEquivocation(v.Voter, v.Slot())
			e.safety.RecordVote(v.Voter, false)
		}
		return // duplicate vote for the same slot, counted once
	}
	e.seenVotes[key] = v.BlockHash
	e.safety.RecordVote(v.Voter, true)

	var tally map[Slot]map[chain.Hash]map[chain.PubKey]struct{}
	switch v.Phase {
	case VotePrevote:
		tally = e.prevoteTally
	case VotePrecommit:
		tally = e.precommitTally
	default:
		return
	}
	slot := v.Slot()
	byBlock, ok := tally[slot]
	if !ok {
		byBlock = make(map[chain.Hash]map[chain.PubKey]struct{})
		tally[slot] = byBlock
	}
	voters, ok := byBlock[v.BlockHash]
	if !ok {
		voters = make(map[chain.PubKey]struct{})
		byBlock[v.BlockHash] = voters
	}
	voters[v.Voter] = struct{}{}

	if v.Height != e.cs.Height || v.View != e.cs.View {
		return // buffered for a future (height, view); re-evaluated once we arrive there
	}

	stake := e.validators.StakeOf(voters)
	if stake < e.validators.QuorumThreshold() {
		return
	}

	switch v.Phase {
	case VotePrevote:
		if e.cs.Phase == PhasePrevote {
			e.onPrevoteQuorumLocked(v.BlockHash, v.View)
		}
	case VotePrecommit:
		if e.cs.Phase == PhasePrecommit {
			e.onPrecommitQuorumLocked(v.BlockHash)
		}
	}
}

// onPrevoteQuorumLocked implements §4.6.4: on a 2f+1 prevote quorum for
// B, lock on B and precommit.
func (e *Engine) onPrevoteQuorumLocked(b chain.Hash, view uint64) {
	lockedRound := view
	e.cs.LockedBlock = &b
	e.cs.LockedRound = &lockedRound
	e.cs.Phase = PhasePrecommit

	vote := e.signVote(VotePrecommit, b, view)
	e.recordVoteLocked(vote)
	e.net.BroadcastVote(vote)
}

// onPrecommitQuorumLocked implements the Commit transition: on a 2f+1
// precommit quorum for B, apply it and advance to the next height.
func (e *Engine) onPrecommitQuorumLocked(b chain.Hash) {
	block, ok := e.scratchBlocks[b]
	if !ok {
		return // shouldn't happen: we prevoted/precommitted blocks we've seen
	}
	// The one real application of this block's transactions: every
	// earlier pass (proposal construction, validation re-check) only
	// ever dry-ran through SimulateTransactions.
	if _, err := e.state.ApplyTransactionsAtomic(block.Transactions); err != nil {
		e.log.Error("commit quorum reached but state application failed; aborting", zap.Error(err))
		_ = e.log.Sync()
		os.Exit(exitConsensusDivergence)
	}
	if err := e.chain.AppendBlock(block); err != nil {
		// Block application failure after commit quorum is the one
		// fatal path in the protocol — the node must not silently
		// diverge from its peers.
		e.log.Error("commit quorum reached but block application failed; aborting", zap.Error(err))
		_ = e.log.Sync()
		os.Exit(exitConsensusDivergence)
	}
	e.pool.PruneCommitted(block.Transactions)

	e.cs = State{Height: e.cs.Height + 1, View: 0, Round: 0, Phase: PhasePropose}
	e.scratchBlocks = make(map[chain.Hash]*chain.Block)
	e.viewChanges = make(map[uint64]map[chain.PubKey]ViewChange)

	if e.pending != nil {
		e.validators = e.pending
		e.pending = nil
	}
	e.deadline = time.Now().Add(e.phaseTimeout(0))
}

func (e *Engine) signVote(phase VotePhase, blockHash chain.Hash, view uint64) Vote {
	v := Vote{
		Voter:     e.cfg.SelfKey,
		Height:    e.cs.Height,
		View:      view,
		Round:     e.cs.Round,
		Phase:     phase,
		BlockHash: blockHash,
	}
	v.Signature = crypto.Sign(e.cfg.SelfPriv, v.SigningBytes())
	return v
}
