// Package consensus implements ccBFT: a pipelined, view-based BFT phase
// state machine with stake-weighted quorums, deterministic leader
// rotation, exponential-backoff timeouts, and view change.
package consensus

import "github.com/ccchain/ccchain/internal/chain"

// Phase is one step of the per-(height,view) state machine.
type Phase int

const (
	PhasePropose Phase = iota
	PhasePrevote
	PhasePrecommit
	PhaseCommit
	PhaseViewChange
	PhaseNewView
)

func (p Phase) String() string {
	switch p {
	case PhasePropose:
		return "propose"
	case PhasePrevote:
		return "prevote"
	case PhasePrecommit:
		return "precommit"
	case PhaseCommit:
		return "commit"
	case PhaseViewChange:
		return "view_change"
	case PhaseNewView:
		return "new_view"
	default:
		return "unknown"
	}
}

// State is the consensus engine's current position in the protocol.
type State struct {
	Height      uint64
	View        uint64
	Round       uint64
	Phase       Phase
	LockedBlock *chain.Hash
	LockedRound *uint64
}

// VotePhase distinguishes a Prevote from a Precommit — the only two
// phases a Vote message is ever cast for.
type VotePhase int

const (
	VotePrevote VotePhase = iota
	VotePrecommit
)

// Vote is one signed ballot for a block at a given (height, view, round).
type Vote struct {
	Voter     chain.PubKey
	Height    uint64
	View      uint64
	Round     uint64
	Phase     VotePhase
	BlockHash chain.Hash
	Signature chain.Sig
}

// SigningBytes is the canonical preimage signed/verified for a vote.
func (v *Vote) SigningBytes() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, v.Voter[:]...)
	buf = appendUint64(buf, v.Height)
	buf = appendUint64(buf, v.View)
	buf = appendUint64(buf, v.Round)
	buf = append(buf, byte(v.Phase))
	buf = append(buf, v.BlockHash[:]...)
	return buf
}

// Slot identifies the (height, view, round, phase) a vote belongs to,
// used for duplicate/equivocation tracking.
type Slot struct {
	Height uint64
	View   uint64
	Round  uint64
	Phase  VotePhase
}

func (v *Vote) Slot() Slot {
	return Slot{Height: v.Height, View: v.View, Round: v.Round, Phase: v.Phase}
}

// Proposal is a leader's block proposal for (height, view).
type Proposal struct {
	Block *chain.Block
	View  uint64
}

// ViewChange is broadcast by a validator giving up on the current view,
// carrying its locked block (if any) as evidence for the next leader.
type ViewChange struct {
	Voter       chain.PubKey
	Height      uint64
	NewView     uint64
	LockedBlock *chain.Hash
	LockedRound *uint64
	Signature   chain.Sig
}

func (vc *ViewChange) SigningBytes() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, vc.Voter[:]...)
	buf = appendUint64(buf, vc.Height)
	buf = appendUint64(buf, vc.NewView)
	if vc.LockedBlock != nil {
		buf = append(buf, vc.LockedBlock[:]...)
	}
	return buf
}

// NewViewMsg is broadcast by the new leader once it collects a view-
// change quorum, carrying the highest-locked block among the evidence
// (or a fresh proposal if none were locked).
type NewViewMsg struct {
	Leader     chain.PubKey
	Height     uint64
	View       uint64
	Block      *chain.Block
	Evidence   []ViewChange
	Signature  chain.Sig
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(v >> (8 * i))
	}
	return append(buf, tmp[:]...)
}
