package chain

import (
	"crypto/ed25519"
)

// NewBlock constructs a block's header over an already-state-applied
// transaction set. Callers must compute stateRoot by applying txs
// against the parent state before calling NewBlock, then sign the
// returned block's Hash() with the proposer key.
func NewBlock(prev *Block, txs []Transaction, proposer PubKey, timestamp uint64, stateRoot Hash, txMerkleRoot Hash, gasLimit uint64) *Block {
	header := BlockHeader{
		Height:       prev.Header.Height + 1,
		Timestamp:    timestamp,
		Proposer:     proposer,
		TxMerkleRoot: txMerkleRoot,
		StateRoot:    stateRoot,
		GasLimit:     gasLimit,
	}
	header.PrevHash = prev.Hash()
	return &Block{Header: header, Transactions: txs}
}

// SignBlock computes the block hash and signs it with the proposer key,
// writing the result into block.Signature.
func SignBlock(block *Block, priv ed25519.PrivateKey) {
	hash := block.Hash()
	var s Sig
	copy(s[:], ed25519.Sign(priv, hash[:]))
	block.Signature = s
}

// VerifyBlockSignature checks block.Signature against the header's
// proposer and the block's own hash.
func VerifyBlockSignature(block *Block) bool {
	hash := block.Hash()
	defer func() { recover() }()
	return ed25519.Verify(ed25519.PublicKey(block.Header.Proposer[:]), hash[:], block.Signature[:])
}

// TransactionIDs returns the ordered transaction identity hashes used as
// Merkle leaves for TxMerkleRoot.
func TransactionIDs(txs []Transaction) []Hash {
	ids := make([]Hash, len(txs))
	for i := range txs {
		ids[i] = txs[i].ID()
	}
	return ids
}
