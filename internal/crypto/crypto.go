// Package crypto implements the node's cryptographic primitives: Ed25519
// signing, Blake3 hashing, Merkle trees, batch signature verification,
// and a bounded parallel hash helper.
package crypto

import (
	"crypto/ed25519"

	"github.com/ccchain/ccchain/internal/chain"
)

// GenerateKey derives an Ed25519 keypair from a 32-byte seed. A nil seed
// asks the runtime's CSPRNG for a fresh one.
func GenerateKey(seed []byte) (chain.PubKey, ed25519.PrivateKey) {
	if seed == nil {
		_, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			panic(err) // crypto/rand failure is unrecoverable
		}
		var pk chain.PubKey
		copy(pk[:], priv.Public().(ed25519.PublicKey))
		return pk, priv
	}
	priv := ed25519.NewKeyFromSeed(seed)
	var pk chain.PubKey
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return pk, priv
}

// Sign produces an Ed25519 signature over msg.
func Sign(priv ed25519.PrivateKey, msg []byte) chain.Sig {
	var s chain.Sig
	copy(s[:], ed25519.Sign(priv, msg))
	return s
}

// Verify reports whether sig is a valid Ed25519 signature by pk over
// msg. It never panics on malformed input — a bad key length or
// malformed signature simply verifies false, per the fault semantics
// consensus and mempool admission rely on.
func Verify(pk chain.PubKey, msg []byte, sig chain.Sig) bool {
	defer func() { recover() }() //nolint: errcheck — ed25519.Verify can panic on bad key length
	return ed25519.Verify(ed25519.PublicKey(pk[:]), msg, sig[:])
}

// SignTransaction signs tx's canonical signing bytes and writes the
// result into tx.Signature.
func SignTransaction(priv ed25519.PrivateKey, tx *chain.Transaction) {
	tx.Signature = Sign(priv, chain.EncodeTransactionSigningBytes(tx))
}

// VerifyTransactionSignature checks tx.Signature against tx.From. A
// coinbase transaction (From == zero key) is never checked here — the
// caller is expected to branch on IsCoinbase first.
func VerifyTransactionSignature(tx *chain.Transaction) bool {
	return Verify(tx.From, chain.EncodeTransactionSigningBytes(tx), tx.Signature)
}
