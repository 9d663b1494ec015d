package crypto

import "github.com/ccchain/ccchain/internal/chain"

// sigTriple is one accumulated (signature, pubkey, message) entry.
type sigTriple struct {
	pk  chain.PubKey
	msg []byte
	sig chain.Sig
}

// SignatureAggregator accumulates signature triples for batch
// verification. It is not safe for concurrent use.
type SignatureAggregator struct {
	triples []sigTriple
}

// NewSignatureAggregator returns an empty aggregator.
func NewSignatureAggregator() *SignatureAggregator {
	return &SignatureAggregator{}
}

// Add accumulates one (pubkey, message, signature) triple.
func (a *SignatureAggregator) Add(pk chain.PubKey, msg []byte, sig chain.Sig) {
	a.triples = append(a.triples, sigTriple{pk: pk, msg: msg, sig: sig})
}

// VerifyBatch returns true iff every accumulated triple verifies. The Go
// standard library has no dedicated Ed25519 batch-verification routine,
// so this walks the triples individually — semantically equivalent to
// per-signature verification, which is the contract §4.1 requires of
// any implementation strategy.
func (a *SignatureAggregator) VerifyBatch() bool {
	for _, t := range a.triples {
		if !Verify(t.pk, t.msg, t.sig) {
			return false
		}
	}
	return true
}

// Reset clears all accumulated triples for reuse.
func (a *SignatureAggregator) Reset() {
	a.triples = a.triples[:0]
}
