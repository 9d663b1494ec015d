package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxFrameSize bounds a single framed message; a peer claiming more is
// dropped rather than trusted with an unbounded allocation.
const maxFrameSize = 10 << 20

// ErrFrameTooLarge is returned by ReadFrame when a peer's declared
// length exceeds maxFrameSize.
var ErrFrameTooLarge = errors.New("network: frame exceeds maximum size")

// WriteFrame writes payload as a single frame: a 4-byte big-endian
// length prefix followed by the payload bytes.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameSize {
		return ErrFrameTooLarge
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. A declared length
// over maxFrameSize is treated as a protocol violation — the caller
// should close the connection rather than keep reading from a peer
// that's either broken or hostile.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// MsgType tags the payload carried by an Envelope.
type MsgType byte

const (
	MsgHandshake MsgType = iota
	MsgTx
	MsgBlock
	MsgConsensus
	MsgPeerListReq
	MsgPeerListResp
	MsgBlockRequest
	MsgBlockResponse
	MsgSyncRequest
	MsgSyncResponse
)

func (t MsgType) String() string {
	switch t {
	case MsgHandshake:
		return "handshake"
	case MsgTx:
		return "tx"
	case MsgBlock:
		return "block"
	case MsgConsensus:
		return "consensus"
	case MsgPeerListReq:
		return "peer_list_request"
	case MsgPeerListResp:
		return "peer_list_response"
	case MsgBlockRequest:
		return "block_request"
	case MsgBlockResponse:
		return "block_response"
	case MsgSyncRequest:
		return "sync_request"
	case MsgSyncResponse:
		return "sync_response"
	default:
		return "unknown"
	}
}

// Envelope is the tagged union every frame carries: a one-byte type tag
// followed by that type's own canonical encoding.
type Envelope struct {
	Type    MsgType
	Payload []byte
}

// EncodeEnvelope prefixes payload with its type tag.
func EncodeEnvelope(t MsgType, payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+1)
	buf = append(buf, byte(t))
	buf = append(buf, payload...)
	return buf
}

// DecodeEnvelope splits a frame's bytes back into its type tag and
// payload.
func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) < 1 {
		return Envelope{}, fmt.Errorf("network: empty frame")
	}
	return Envelope{Type: MsgType(b[0]), Payload: b[1:]}, nil
}
