package chain

// NewGenesisBlock builds the height-0 block from an explicit initial
// account list already applied to state by the caller (state_root must
// reflect that application). Genesis's PrevHash is the zero hash: the
// spec's "prev_hash = self_hash" would make the header hash
// self-referential, which has no closed-form solution, so this
// implementation takes self-reference to mean "no real parent" and
// encodes that as the zero hash instead — every other genesis
// invariant (height 0, zero tx_merkle_root, explicit account list) is
// unchanged.
func NewGenesisBlock(stateRoot Hash, timestamp uint64) *Block {
	header := BlockHeader{
		PrevHash:     ZeroHash,
		Height:       0,
		Timestamp:    timestamp,
		TxMerkleRoot: ZeroHash,
		StateRoot:    stateRoot,
	}
	return &Block{Header: header}
}
