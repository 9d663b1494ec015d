package network

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/consensus"
)

// protocolVersion is bumped whenever the wire encoding changes
// incompatibly; a handshake with a lower version is still accepted
// today since nothing depends on it yet beyond the peer info it
// records.
const protocolVersion = 1

// Handshake is the first message either side of a connection sends,
// required before anything else routes. A genesis_hash mismatch means
// the peer is on a different chain entirely and the connection closes.
type Handshake struct {
	NodeID      chain.PubKey
	Version     uint32
	Height      uint64
	GenesisHash chain.Hash
}

func EncodeHandshake(h *Handshake) []byte {
	var buf bytes.Buffer
	buf.Write(h.NodeID[:])
	writeU32(&buf, h.Version)
	writeU64(&buf, h.Height)
	buf.Write(h.GenesisHash[:])
	return buf.Bytes()
}

func DecodeHandshake(b []byte) (Handshake, error) {
	var h Handshake
	r := bytes.NewReader(b)
	if err := readFixed(r, h.NodeID[:]); err != nil {
		return h, fmt.Errorf("decode handshake.node_id: %w", err)
	}
	var err error
	if h.Version, err = readU32(r); err != nil {
		return h, fmt.Errorf("decode handshake.version: %w", err)
	}
	if h.Height, err = readU64(r); err != nil {
		return h, fmt.Errorf("decode handshake.height: %w", err)
	}
	if err := readFixed(r, h.GenesisHash[:]); err != nil {
		return h, fmt.Errorf("decode handshake.genesis_hash: %w", err)
	}
	return h, nil
}

// PeerInfo describes one peer as advertised in a PeerListResp.
type PeerInfo struct {
	NodeID chain.PubKey
	Addr   string
}

// PeerListResp answers a PeerListReq with this node's known peer
// addresses, used for discovery beyond the statically configured seed
// list.
type PeerListResp struct {
	Peers []PeerInfo
}

func EncodePeerListResp(p *PeerListResp) []byte {
	var buf bytes.Buffer
	writeU64(&buf, uint64(len(p.Peers)))
	for _, peer := range p.Peers {
		buf.Write(peer.NodeID[:])
		addr := []byte(peer.Addr)
		writeU64(&buf, uint64(len(addr)))
		buf.Write(addr)
	}
	return buf.Bytes()
}

func DecodePeerListResp(b []byte) (PeerListResp, error) {
	var p PeerListResp
	r := bytes.NewReader(b)
	count, err := readU64(r)
	if err != nil {
		return p, fmt.Errorf("decode peer_list.count: %w", err)
	}
	p.Peers = make([]PeerInfo, count)
	for i := range p.Peers {
		if err := readFixed(r, p.Peers[i].NodeID[:]); err != nil {
			return p, fmt.Errorf("decode peer_list[%d].node_id: %w", i, err)
		}
		addrLen, err := readU64(r)
		if err != nil {
			return p, fmt.Errorf("decode peer_list[%d].addr_len: %w", i, err)
		}
		addr := make([]byte, addrLen)
		if err := readFixed(r, addr); err != nil {
			return p, fmt.Errorf("decode peer_list[%d].addr: %w", i, err)
		}
		p.Peers[i].Addr = string(addr)
	}
	return p, nil
}

// BlockRequest asks a peer for a single block by hash.
type BlockRequest struct {
	Hash chain.Hash
}

func EncodeBlockRequest(r *BlockRequest) []byte { return append([]byte{}, r.Hash[:]...) }

func DecodeBlockRequest(b []byte) (BlockRequest, error) {
	var r BlockRequest
	if len(b) != len(r.Hash) {
		return r, fmt.Errorf("%w: block_request length", chain.ErrMalformedMessage)
	}
	copy(r.Hash[:], b)
	return r, nil
}

// BlockResponse answers a BlockRequest; Found is false when the
// responder doesn't have the requested block.
type BlockResponse struct {
	Found bool
	Block *chain.Block
}

func EncodeBlockResponse(r *BlockResponse) []byte {
	var buf bytes.Buffer
	if r.Found && r.Block != nil {
		buf.WriteByte(1)
		buf.Write(chain.EncodeBlock(r.Block))
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func DecodeBlockResponse(b []byte) (BlockResponse, error) {
	var r BlockResponse
	if len(b) == 0 {
		return r, fmt.Errorf("%w: empty block_response", chain.ErrMalformedMessage)
	}
	if b[0] == 0 {
		return r, nil
	}
	block, err := chain.DecodeBlock(b[1:])
	if err != nil {
		return r, fmt.Errorf("decode block_response.block: %w", err)
	}
	r.Found = true
	r.Block = block
	return r, nil
}

// SyncRequest asks a peer for every block after from_height, used to
// catch a lagging node up to the network's head.
type SyncRequest struct {
	FromHeight uint64
}

func EncodeSyncRequest(r *SyncRequest) []byte {
	var buf bytes.Buffer
	writeU64(&buf, r.FromHeight)
	return buf.Bytes()
}

func DecodeSyncRequest(b []byte) (SyncRequest, error) {
	var r SyncRequest
	br := bytes.NewReader(b)
	h, err := readU64(br)
	if err != nil {
		return r, fmt.Errorf("decode sync_request.from_height: %w", err)
	}
	r.FromHeight = h
	return r, nil
}

// SyncResponse carries the contiguous run of blocks a SyncRequest
// asked for, oldest first.
type SyncResponse struct {
	Blocks []*chain.Block
}

func EncodeSyncResponse(r *SyncResponse) []byte {
	var buf bytes.Buffer
	writeU64(&buf, uint64(len(r.Blocks)))
	for _, b := range r.Blocks {
		encoded := chain.EncodeBlock(b)
		writeU64(&buf, uint64(len(encoded)))
		buf.Write(encoded)
	}
	return buf.Bytes()
}

func DecodeSyncResponse(b []byte) (SyncResponse, error) {
	var r SyncResponse
	br := bytes.NewReader(b)
	count, err := readU64(br)
	if err != nil {
		return r, fmt.Errorf("decode sync_response.count: %w", err)
	}
	r.Blocks = make([]*chain.Block, count)
	rest := b[len(b)-br.Len():]
	for i := 0; i < int(count); i++ {
		blockLen, n, err := readLenPrefixed(rest)
		if err != nil {
			return r, fmt.Errorf("decode sync_response[%d] length: %w", i, err)
		}
		rest = rest[n:]
		block, err := chain.DecodeBlock(rest[:blockLen])
		if err != nil {
			return r, fmt.Errorf("decode sync_response[%d]: %w", i, err)
		}
		r.Blocks[i] = block
		rest = rest[blockLen:]
	}
	return r, nil
}

// ConsensusKind tags which of the four consensus message shapes a
// MsgConsensus envelope carries.
type ConsensusKind byte

const (
	ConsensusProposal ConsensusKind = iota
	ConsensusVote
	ConsensusViewChange
	ConsensusNewView
)

// ConsensusEnvelope wraps one consensus-engine message for transport;
// EncodeConsensusEnvelope/DecodeConsensusEnvelope dispatch to the
// consensus package's own canonical codecs per kind.
type ConsensusEnvelope struct {
	Kind       ConsensusKind
	Proposal   *consensus.Proposal
	Vote       *consensus.Vote
	ViewChange *consensus.ViewChange
	NewView    *consensus.NewViewMsg
}

func EncodeConsensusEnvelope(env *ConsensusEnvelope) []byte {
	var payload []byte
	switch env.Kind {
	case ConsensusProposal:
		payload = consensus.EncodeProposal(env.Proposal)
	case ConsensusVote:
		payload = consensus.EncodeVote(env.Vote)
	case ConsensusViewChange:
		payload = consensus.EncodeViewChange(env.ViewChange)
	case ConsensusNewView:
		payload = consensus.EncodeNewViewMsg(env.NewView)
	}
	buf := make([]byte, 0, len(payload)+1)
	buf = append(buf, byte(env.Kind))
	return append(buf, payload...)
}

func DecodeConsensusEnvelope(b []byte) (ConsensusEnvelope, error) {
	var env ConsensusEnvelope
	if len(b) < 1 {
		return env, fmt.Errorf("%w: empty consensus envelope", chain.ErrMalformedMessage)
	}
	env.Kind = ConsensusKind(b[0])
	payload := b[1:]
	switch env.Kind {
	case ConsensusProposal:
		p, err := consensus.DecodeProposal(payload)
		if err != nil {
			return env, err
		}
		env.Proposal = &p
	case ConsensusVote:
		v, err := consensus.DecodeVote(payload)
		if err != nil {
			return env, err
		}
		env.Vote = &v
	case ConsensusViewChange:
		vc, err := consensus.DecodeViewChange(payload)
		if err != nil {
			return env, err
		}
		env.ViewChange = &vc
	case ConsensusNewView:
		nv, err := consensus.DecodeNewViewMsg(payload)
		if err != nil {
			return env, err
		}
		env.NewView = &nv
	default:
		return env, fmt.Errorf("%w: unknown consensus kind %d", chain.ErrMalformedMessage, env.Kind)
	}
	return env, nil
}

func readLenPrefixed(b []byte) (length uint64, consumed int, err error) {
	r := bytes.NewReader(b)
	length, err = readU64(r)
	if err != nil {
		return 0, 0, err
	}
	return length, len(b) - r.Len(), nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func readU64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if err := readFixed(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(tmp[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if err := readFixed(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
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
