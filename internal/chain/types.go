// Package chain holds the core data model — accounts, transactions, blocks,
// and the single-head chain — shared by state, mempool, consensus, and
// network.
package chain

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
)

// Hash is a 32-byte content digest (Blake3 of a canonical encoding).
type Hash [32]byte

// ZeroHash is the Merkle root of an empty leaf set and the genesis
// block's prev_hash.
var ZeroHash Hash

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool { return h == ZeroHash }

// String renders h as lowercase hex.
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

// Less gives Hash a total lexicographic order, used to sort Merkle leaves
// and validator keys deterministically.
func (h Hash) Less(o Hash) bool { return bytes.Compare(h[:], o[:]) < 0 }

// HashFromHex parses a hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, ErrMalformedMessage
	}
	copy(h[:], b)
	return h, nil
}

// PubKey is an Ed25519 verifying key.
type PubKey [ed25519.PublicKeySize]byte

// ZeroPubKey marks a coinbase transaction's sender.
var ZeroPubKey PubKey

// IsZero reports whether pk is the all-zero coinbase sender key.
func (pk PubKey) IsZero() bool { return pk == ZeroPubKey }

// String renders pk as lowercase hex.
func (pk PubKey) String() string { return hex.EncodeToString(pk[:]) }

// Less orders public keys lexicographically, used for deterministic
// validator iteration and leader selection.
func (pk PubKey) Less(o PubKey) bool { return bytes.Compare(pk[:], o[:]) < 0 }

func PubKeyFromHex(s string) (PubKey, error) {
	var pk PubKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return pk, err
	}
	if len(b) != len(pk) {
		return pk, ErrMalformedMessage
	}
	copy(pk[:], b)
	return pk, nil
}

// Sig is an Ed25519 signature.
type Sig [ed25519.SignatureSize]byte

func (s Sig) String() string { return hex.EncodeToString(s[:]) }

// Account is the per-key replicated state entry. The zero value is the
// default account returned for any key never written before.
type Account struct {
	Balance     uint64
	Nonce       uint64
	StorageRoot Hash
	CodeHash    Hash
}

// CanAfford reports whether the account can pay amount+fee without
// overflow or going negative.
func (a Account) CanAfford(amount, fee uint64) bool {
	total, overflow := addUint64(amount, fee)
	if overflow {
		return false
	}
	return a.Balance >= total
}

func addUint64(a, b uint64) (sum uint64, overflow bool) {
	sum = a + b
	return sum, sum < a
}

// Transaction moves value from one account to another. A coinbase
// transaction has From == ZeroPubKey and carries no signature.
type Transaction struct {
	From      PubKey
	To        PubKey
	Amount    uint64
	Fee       uint64
	Nonce     uint64
	Timestamp uint64
	Data      []byte
	Signature Sig
}

// IsCoinbase reports whether tx mints rather than transfers.
func (tx *Transaction) IsCoinbase() bool { return tx.From.IsZero() }

// ID is the transaction's content hash: Blake3 over every field except
// Signature, used as the identity for mempool indexing, Merkle leaves,
// and the signed message.
func (tx *Transaction) ID() Hash {
	return HashBytes(EncodeTransactionSigningBytes(tx))
}

// SizeBytes estimates the on-wire encoded size, used for fee-per-byte
// priority and gas accounting.
func (tx *Transaction) SizeBytes() int {
	return len(EncodeTransactionSigningBytes(tx)) + len(tx.Signature)
}

// Block is a committed unit of the chain: a header plus the ordered
// transaction list and the proposer's signature over the header hash.
type Block struct {
	Header       BlockHeader
	Transactions []Transaction
	Signature    Sig
}

// BlockHeader carries everything hashed to produce the block's identity.
type BlockHeader struct {
	PrevHash     Hash
	Height       uint64
	Timestamp    uint64
	Proposer     PubKey
	TxMerkleRoot Hash
	StateRoot    Hash
	GasLimit     uint64
	Nonce        uint64
}

// Hash computes the block's identity: Blake3 of the canonical header
// encoding. Callers must populate TxMerkleRoot and StateRoot first.
func (b *Block) Hash() Hash {
	return HashBytes(EncodeBlockHeader(&b.Header))
}

// IsGenesis reports whether b is height 0, whose PrevHash is ZeroHash.
func (b *Block) IsGenesis() bool { return b.Header.Height == 0 }
