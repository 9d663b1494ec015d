package chain

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"lukechampine.com/blake3"
)

// HashBytes is the sole place that calls into Blake3, so every content
// hash in the system (transaction IDs, block hashes, Merkle nodes,
// state-root leaves) goes through one code path.
func HashBytes(b []byte) Hash {
	return Hash(blake3.Sum256(b))
}

// HashPair hashes the concatenation of two node hashes, used when
// folding Merkle tree levels.
func HashPair(left, right Hash) Hash {
	buf := make([]byte, 0, 64)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return HashBytes(buf)
}

// MerkleRoot folds leaves bottom-up into a single root hash, promoting
// an odd trailing node unchanged rather than duplicating it. Defined
// here rather than reusing crypto.MerkleTree because crypto imports
// chain for the Hash type — chain computing a root during block
// validation can't import back without cycling. The full proof-bearing
// MerkleTree lives in internal/crypto for callers outside this package.
func MerkleRoot(leaves []Hash) Hash {
	if len(leaves) == 0 {
		return ZeroHash
	}
	level := make([]Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, HashPair(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}

// EncodeTransactionSigningBytes produces the canonical, fixed-order
// little-endian byte encoding of every Transaction field except
// Signature. It is both the Blake3 preimage for tx.ID() and the message
// signed/verified by Ed25519 — JSON is avoided because Go map/struct
// JSON field order is not a stable hash preimage across versions.
func EncodeTransactionSigningBytes(tx *Transaction) []byte {
	var buf bytes.Buffer
	buf.Write(tx.From[:])
	buf.Write(tx.To[:])
	writeUint64(&buf, tx.Amount)
	writeUint64(&buf, tx.Fee)
	writeUint64(&buf, tx.Nonce)
	writeUint64(&buf, tx.Timestamp)
	writeUint64(&buf, uint64(len(tx.Data)))
	buf.Write(tx.Data)
	return buf.Bytes()
}

// EncodeBlockHeader produces the canonical encoding hashed to form the
// block identity and signed by the proposer.
func EncodeBlockHeader(h *BlockHeader) []byte {
	var buf bytes.Buffer
	buf.Write(h.PrevHash[:])
	writeUint64(&buf, h.Height)
	writeUint64(&buf, h.Timestamp)
	buf.Write(h.Proposer[:])
	buf.Write(h.TxMerkleRoot[:])
	buf.Write(h.StateRoot[:])
	writeUint64(&buf, h.GasLimit)
	writeUint64(&buf, h.Nonce)
	return buf.Bytes()
}

// EncodeAccountLeaf produces the canonical (pubkey, account) preimage
// hashed into a state-root Merkle leaf.
func EncodeAccountLeaf(pk PubKey, a Account) []byte {
	var buf bytes.Buffer
	buf.Write(pk[:])
	writeUint64(&buf, a.Balance)
	writeUint64(&buf, a.Nonce)
	buf.Write(a.StorageRoot[:])
	buf.Write(a.CodeHash[:])
	return buf.Bytes()
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

// EncodeTransaction produces the full canonical wire encoding of tx,
// signing bytes plus the signature appended. Peers and the persisted
// store both use this single encoding — no gob, no JSON — and its
// leading bytes, everything before the signature, are exactly the bytes
// whose hash is tx.ID().
func EncodeTransaction(tx *Transaction) []byte {
	buf := bytes.NewBuffer(EncodeTransactionSigningBytes(tx))
	buf.Write(tx.Signature[:])
	return buf.Bytes()
}

// DecodeTransaction parses a transaction encoded by EncodeTransaction
// from the front of b, returning the transaction and the number of
// bytes consumed.
func DecodeTransaction(b []byte) (Transaction, int, error) {
	var tx Transaction
	r := bytes.NewReader(b)
	if _, err := readExact(r, tx.From[:]); err != nil {
		return tx, 0, fmt.Errorf("decode tx.from: %w", err)
	}
	if _, err := readExact(r, tx.To[:]); err != nil {
		return tx, 0, fmt.Errorf("decode tx.to: %w", err)
	}
	var err error
	if tx.Amount, err = readUint64(r); err != nil {
		return tx, 0, fmt.Errorf("decode tx.amount: %w", err)
	}
	if tx.Fee, err = readUint64(r); err != nil {
		return tx, 0, fmt.Errorf("decode tx.fee: %w", err)
	}
	if tx.Nonce, err = readUint64(r); err != nil {
		return tx, 0, fmt.Errorf("decode tx.nonce: %w", err)
	}
	if tx.Timestamp, err = readUint64(r); err != nil {
		return tx, 0, fmt.Errorf("decode tx.timestamp: %w", err)
	}
	dataLen, err := readUint64(r)
	if err != nil {
		return tx, 0, fmt.Errorf("decode tx.data length: %w", err)
	}
	if dataLen > maxFieldBytes {
		return tx, 0, fmt.Errorf("%w: tx.data length %d exceeds limit", ErrMalformedMessage, dataLen)
	}
	if dataLen > 0 {
		tx.Data = make([]byte, dataLen)
		if _, err := readExact(r, tx.Data); err != nil {
			return tx, 0, fmt.Errorf("decode tx.data: %w", err)
		}
	}
	if _, err := readExact(r, tx.Signature[:]); err != nil {
		return tx, 0, fmt.Errorf("decode tx.signature: %w", err)
	}
	return tx, len(b) - r.Len(), nil
}

// maxFieldBytes bounds any single length-prefixed field decoded from an
// untrusted peer, guarding against a malicious length claim forcing a
// huge allocation before the underlying bytes are even checked.
const maxFieldBytes = 8 << 20

// EncodeBlock produces the canonical wire encoding of a full block:
// header, transaction count, each transaction in order, then the
// proposer's signature over the header hash.
func EncodeBlock(b *Block) []byte {
	var buf bytes.Buffer
	buf.Write(EncodeBlockHeader(&b.Header))
	writeUint64(&buf, uint64(len(b.Transactions)))
	for i := range b.Transactions {
		buf.Write(EncodeTransaction(&b.Transactions[i]))
	}
	buf.Write(b.Signature[:])
	return buf.Bytes()
}

// DecodeBlock parses a block encoded by EncodeBlock from b in full —
// unlike DecodeTransaction it consumes the entire slice, since a block
// is always framed as a standalone wire message rather than embedded
// alongside sibling values.
func DecodeBlock(b []byte) (*Block, error) {
	r := bytes.NewReader(b)
	blk := &Block{}
	if _, err := readExact(r, blk.Header.PrevHash[:]); err != nil {
		return nil, fmt.Errorf("decode header.prev_hash: %w", err)
	}
	var err error
	if blk.Header.Height, err = readUint64(r); err != nil {
		return nil, fmt.Errorf("decode header.height: %w", err)
	}
	if blk.Header.Timestamp, err = readUint64(r); err != nil {
		return nil, fmt.Errorf("decode header.timestamp: %w", err)
	}
	if _, err := readExact(r, blk.Header.Proposer[:]); err != nil {
		return nil, fmt.Errorf("decode header.proposer: %w", err)
	}
	if _, err := readExact(r, blk.Header.TxMerkleRoot[:]); err != nil {
		return nil, fmt.Errorf("decode header.tx_merkle_root: %w", err)
	}
	if _, err := readExact(r, blk.Header.StateRoot[:]); err != nil {
		return nil, fmt.Errorf("decode header.state_root: %w", err)
	}
	if blk.Header.GasLimit, err = readUint64(r); err != nil {
		return nil, fmt.Errorf("decode header.gas_limit: %w", err)
	}
	if blk.Header.Nonce, err = readUint64(r); err != nil {
		return nil, fmt.Errorf("decode header.nonce: %w", err)
	}
	txCount, err := readUint64(r)
	if err != nil {
		return nil, fmt.Errorf("decode tx count: %w", err)
	}
	if txCount > maxFieldBytes {
		return nil, fmt.Errorf("%w: tx count %d exceeds limit", ErrMalformedMessage, txCount)
	}
	if txCount > 0 {
		blk.Transactions = make([]Transaction, txCount)
	}
	rest := b[len(b)-r.Len():]
	for i := 0; i < int(txCount); i++ {
		tx, n, err := DecodeTransaction(rest)
		if err != nil {
			return nil, fmt.Errorf("decode tx %d: %w", i, err)
		}
		blk.Transactions[i] = tx
		rest = rest[n:]
	}
	r = bytes.NewReader(rest)
	if _, err := readExact(r, blk.Signature[:]); err != nil {
		return nil, fmt.Errorf("decode block signature: %w", err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after block", ErrMalformedMessage, r.Len())
	}
	return blk, nil
}

func readExact(r *bytes.Reader, dst []byte) (int, error) {
	n, err := r.Read(dst)
	if err != nil {
		return n, err
	}
	if n != len(dst) {
		return n, fmt.Errorf("%w: short read", ErrMalformedMessage)
	}
	return n, nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var tmp [8]byte
	if _, err := readExact(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(tmp[:]), nil
}
