package consensus

import (
	"time"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/crypto"
)

// checkTimeoutLocked implements §4.6.5: on phase deadline expiry
// without reaching the required quorum, broadcast a ViewChange for the
// next view carrying this node's current lock.
func (e *Engine) checkTimeoutLocked() {
	if e.cs.Phase == PhaseViewChange || e.cs.Phase == PhaseNewView {
		return // already mid view-change; these phases are left only on view-change or new-view messages, never on deadline expiry
	}
	if time.Now().Before(e.deadline) {
		return
	}
	e.enterViewChangeLocked(e.cs.View + 1)
}

// enterViewChangeLocked moves to ViewChange for newView and broadcasts
// evidence of this node's lock, per §4.6.6.
func (e *Engine) enterViewChangeLocked(newView uint64) {
	e.cs.Phase = PhaseViewChange
	vc := ViewChange{
		Voter:       e.cfg.SelfKey,
		Height:      e.cs.Height,
		NewView:     newView,
		LockedBlock: e.cs.LockedBlock,
		LockedRound: e.cs.LockedRound,
	}
	vc.Signature = crypto.Sign(e.cfg.SelfPriv, vc.SigningBytes())
	e.handleViewChangeLocked(vc)
	e.net.BroadcastViewChange(vc)
	e.deadline = time.Now().Add(e.phaseTimeout(newView))
}

// handleViewChangeLocked tallies a ViewChange message. On f+1 messages
// for a higher view it jumps ahead (catch-up rule); on 2f+1 for
// newView, the leader of newView broadcasts NewView.
func (e *Engine) handleViewChangeLocked(vc ViewChange) {
	if vc.Height != e.cs.Height {
		return
	}
	byVoter, ok := e.viewChanges[vc.NewView]
	if !ok {
		byVoter = make(map[chain.PubKey]ViewChange)
		e.viewChanges[vc.NewView] = byVoter
	}
	byVoter[vc.Voter] = vc
	e.safety.RecordActivity(vc.Voter)

	voters := make(map[chain.PubKey]struct{}, len(byVoter))
	for pk := range byVoter {
		voters[pk] = struct{}{}
	}
	stake := e.validators.StakeOf(voters)

	// f+1 view-change votes for a view strictly ahead of ours means at
	// least one honest validator has already moved on; jump straight to
	// it rather than waiting out our own timeout. Gated to a real gap
	// (more than the ordinary one-view advance) and to firing once per
	// target view, since re-entering here for vc.NewView == e.cs.View+1
	// would recurse against the very view-change this call just raised.
	if vc.NewView > e.cs.View+1 && stake >= e.validators.FaultTolerance()+1 {
		if e.cs.Phase != PhaseViewChange || e.cs.View < vc.NewView-1 {
			e.cs.View = vc.NewView - 1
			e.enterViewChangeLocked(vc.NewView)
			return
		}
	}

	if stake < e.validators.QuorumThreshold() {
		return
	}
	if e.cs.Phase != PhaseViewChange || e.cs.View >= vc.NewView {
		return
	}

	leader := e.validators.Leader(e.cs.Height, vc.NewView)
	if leader != e.cfg.SelfKey {
		e.cs.View = vc.NewView
		e.cs.Phase = PhaseNewView
		return
	}

	evidence := make([]ViewChange, 0, len(byVoter))
	var highest *ViewChange
	for _, msg := range byVoter {
		evidence = append(evidence, msg)
		if msg.LockedBlock != nil && (highest == nil || (highest.LockedRound != nil && msg.LockedRound != nil && *msg.LockedRound > *highest.LockedRound)) {
			m := msg
			highest = &m
		}
	}

	var block *chain.Block
	if highest != nil && highest.LockedBlock != nil {
		block = e.scratchBlocks[*highest.LockedBlock]
	}
	if block == nil {
		head, err := e.chain.Head()
		if err != nil {
			return
		}
		txs := e.pool.GetTransactionsForBlock(e.cfg.MaxTxsPerBlock, e.cfg.GasLimit)
		stateRoot, err := e.state.SimulateTransactions(txs)
		if err != nil {
			return
		}
		merkleRoot := crypto.BuildMerkleTree(chain.TransactionIDs(txs)).Root()
		block = chain.NewBlock(head, txs, e.cfg.SelfKey, uint64(time.Now().UnixNano()), stateRoot, merkleRoot, e.cfg.GasLimit)
		chain.SignBlock(block, e.cfg.SelfPriv)
	}

	nv := NewViewMsg{
		Leader:   e.cfg.SelfKey,
		Height:   e.cs.Height,
		View:     vc.NewView,
		Block:    block,
		Evidence: evidence,
	}
	e.net.BroadcastNewView(nv)
	e.handleNewViewLocked(nv)
}

// handleNewViewLocked transitions to Propose at (h, newView) on a valid
// NewView from the expected leader, re-arming the phase deadline.
func (e *Engine) handleNewViewLocked(nv NewViewMsg) {
	if nv.Height != e.cs.Height {
		return
	}
	if e.validators.Leader(e.cs.Height, nv.View) != nv.Leader {
		return
	}
	e.cs.View = nv.View
	e.cs.Phase = PhasePropose
	e.deadline = time.Now().Add(e.phaseTimeout(nv.View))

	if nv.Block != nil {
		hash := nv.Block.Hash()
		e.scratchBlocks[hash] = nv.Block
		e.handleProposalLocked(Proposal{Block: nv.Block, View: nv.View})
	}
}
