package consensus

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ccchain/ccchain/internal/chain"
)

// This file gives every consensus message the same canonical, fixed-
// order little-endian encoding chain uses for transactions and block
// headers — the wire transport never reaches for gob or JSON, so the
// bytes a peer hashes or re-signs are exactly the bytes it received.

// EncodeVote produces the full wire encoding of a vote.
func EncodeVote(v *Vote) []byte {
	buf := bytes.NewBuffer(v.SigningBytes())
	buf.Write(v.Signature[:])
	return buf.Bytes()
}

// DecodeVote parses a vote encoded by EncodeVote.
func DecodeVote(b []byte) (Vote, error) {
	r := bytes.NewReader(b)
	var v Vote
	if err := readFixed(r, v.Voter[:]); err != nil {
		return v, fmt.Errorf("decode vote.voter: %w", err)
	}
	var err error
	if v.Height, err = readU64(r); err != nil {
		return v, fmt.Errorf("decode vote.height: %w", err)
	}
	if v.View, err = readU64(r); err != nil {
		return v, fmt.Errorf("decode vote.view: %w", err)
	}
	if v.Round, err = readU64(r); err != nil {
		return v, fmt.Errorf("decode vote.round: %w", err)
	}
	phase, err := r.ReadByte()
	if err != nil {
		return v, fmt.Errorf("decode vote.phase: %w", err)
	}
	v.Phase = VotePhase(phase)
	if err := readFixed(r, v.BlockHash[:]); err != nil {
		return v, fmt.Errorf("decode vote.block_hash: %w", err)
	}
	if err := readFixed(r, v.Signature[:]); err != nil {
		return v, fmt.Errorf("decode vote.signature: %w", err)
	}
	return v, nil
}

// EncodeProposal produces the full wire encoding of a proposal.
func EncodeProposal(p *Proposal) []byte {
	var buf bytes.Buffer
	writeU64(&buf, p.View)
	buf.Write(chain.EncodeBlock(p.Block))
	return buf.Bytes()
}

// DecodeProposal parses a proposal encoded by EncodeProposal.
func DecodeProposal(b []byte) (Proposal, error) {
	var p Proposal
	r := bytes.NewReader(b)
	var err error
	if p.View, err = readU64(r); err != nil {
		return p, fmt.Errorf("decode proposal.view: %w", err)
	}
	rest := b[len(b)-r.Len():]
	block, err := chain.DecodeBlock(rest)
	if err != nil {
		return p, fmt.Errorf("decode proposal.block: %w", err)
	}
	p.Block = block
	return p, nil
}

// EncodeViewChange produces the full wire encoding of a view-change
// message, its optional lock evidence included.
func EncodeViewChange(vc *ViewChange) []byte {
	var buf bytes.Buffer
	buf.Write(vc.Voter[:])
	writeU64(&buf, vc.Height)
	writeU64(&buf, vc.NewView)
	if vc.LockedBlock != nil {
		buf.WriteByte(1)
		buf.Write(vc.LockedBlock[:])
		buf.WriteByte(1)
		writeU64(&buf, *vc.LockedRound)
	} else {
		buf.WriteByte(0)
	}
	buf.Write(vc.Signature[:])
	return buf.Bytes()
}

// DecodeViewChange parses a message encoded by EncodeViewChange.
func DecodeViewChange(b []byte) (ViewChange, error) {
	var vc ViewChange
	r := bytes.NewReader(b)
	if err := readFixed(r, vc.Voter[:]); err != nil {
		return vc, fmt.Errorf("decode view_change.voter: %w", err)
	}
	var err error
	if vc.Height, err = readU64(r); err != nil {
		return vc, fmt.Errorf("decode view_change.height: %w", err)
	}
	if vc.NewView, err = readU64(r); err != nil {
		return vc, fmt.Errorf("decode view_change.new_view: %w", err)
	}
	hasLock, err := r.ReadByte()
	if err != nil {
		return vc, fmt.Errorf("decode view_change.has_lock: %w", err)
	}
	if hasLock == 1 {
		var h chain.Hash
		if err := readFixed(r, h[:]); err != nil {
			return vc, fmt.Errorf("decode view_change.locked_block: %w", err)
		}
		vc.LockedBlock = &h
		if _, err := r.ReadByte(); err != nil { // hasLockedRound marker, always 1 when hasLock is
			return vc, fmt.Errorf("decode view_change.has_locked_round: %w", err)
		}
		round, err := readU64(r)
		if err != nil {
			return vc, fmt.Errorf("decode view_change.locked_round: %w", err)
		}
		vc.LockedRound = &round
	}
	if err := readFixed(r, vc.Signature[:]); err != nil {
		return vc, fmt.Errorf("decode view_change.signature: %w", err)
	}
	return vc, nil
}

// EncodeNewViewMsg produces the full wire encoding of a new-view
// message: the new leader's chosen block (if any) plus the view-change
// evidence it was justified by.
func EncodeNewViewMsg(nv *NewViewMsg) []byte {
	var buf bytes.Buffer
	buf.Write(nv.Leader[:])
	writeU64(&buf, nv.Height)
	writeU64(&buf, nv.View)
	if nv.Block != nil {
		encoded := chain.EncodeBlock(nv.Block)
		buf.WriteByte(1)
		writeU64(&buf, uint64(len(encoded)))
		buf.Write(encoded)
	} else {
		buf.WriteByte(0)
	}
	writeU64(&buf, uint64(len(nv.Evidence)))
	for i := range nv.Evidence {
		encoded := EncodeViewChange(&nv.Evidence[i])
		writeU64(&buf, uint64(len(encoded)))
		buf.Write(encoded)
	}
	buf.Write(nv.Signature[:])
	return buf.Bytes()
}

// DecodeNewViewMsg parses a message encoded by EncodeNewViewMsg.
func DecodeNewViewMsg(b []byte) (NewViewMsg, error) {
	var nv NewViewMsg
	r := bytes.NewReader(b)
	if err := readFixed(r, nv.Leader[:]); err != nil {
		return nv, fmt.Errorf("decode new_view.leader: %w", err)
	}
	var err error
	if nv.Height, err = readU64(r); err != nil {
		return nv, fmt.Errorf("decode new_view.height: %w", err)
	}
	if nv.View, err = readU64(r); err != nil {
		return nv, fmt.Errorf("decode new_view.view: %w", err)
	}
	hasBlock, err := r.ReadByte()
	if err != nil {
		return nv, fmt.Errorf("decode new_view.has_block: %w", err)
	}
	if hasBlock == 1 {
		blockLen, err := readU64(r)
		if err != nil {
			return nv, fmt.Errorf("decode new_view.block_len: %w", err)
		}
		blockBytes := make([]byte, blockLen)
		if err := readFixed(r, blockBytes); err != nil {
			return nv, fmt.Errorf("decode new_view.block: %w", err)
		}
		block, err := chain.DecodeBlock(blockBytes)
		if err != nil {
			return nv, fmt.Errorf("decode new_view.block: %w", err)
		}
		nv.Block = block
	}
	evCount, err := readU64(r)
	if err != nil {
		return nv, fmt.Errorf("decode new_view.evidence_count: %w", err)
	}
	nv.Evidence = make([]ViewChange, evCount)
	for i := 0; i < int(evCount); i++ {
		evLen, err := readU64(r)
		if err != nil {
			return nv, fmt.Errorf("decode new_view.evidence[%d] length: %w", i, err)
		}
		evBytes := make([]byte, evLen)
		if err := readFixed(r, evBytes); err != nil {
			return nv, fmt.Errorf("decode new_view.evidence[%d]: %w", i, err)
		}
		vc, err := DecodeViewChange(evBytes)
		if err != nil {
			return nv, fmt.Errorf("decode new_view.evidence[%d]: %w", i, err)
		}
		nv.Evidence[i] = vc
	}
	if err := readFixed(r, nv.Signature[:]); err != nil {
		return nv, fmt.Errorf("decode new_view.signature: %w", err)
	}
	return nv, nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func readU64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if err := readFixed(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(tmp[:]), nil
}

func readFixed(r *bytes.Reader, dst []byte) error {
	n, err := r.Read(dst)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return fmt.Errorf("%w: short read", chain.ErrMalformedMessage)
	}
	return nil
}
