package chain

import "fmt"

// ValidatorSet is the minimal validator-set query block validation
// needs, satisfied by *state.Store and by consensus's frozen per-height
// snapshot alike.
type ValidatorSet interface {
	GetValidatorStake(pk PubKey) uint64
	TotalValidatorStake() uint64
}

// StateApplier re-executes a transaction set without committing it and
// reports the resulting state root, satisfied by *state.Store's
// SimulateTransactions. ValidateBlock only ever dry-runs through here —
// the one real application of a block's transactions happens at commit
// time, not during validation.
type StateApplier interface {
	SimulateTransactions(txs []Transaction) (Hash, error)
}

// LeaderFunc computes the expected leader public key for (height, view)
// over a validator set, injected so chain validation doesn't need to
// import the consensus package's leader-rotation logic directly.
type LeaderFunc func(validators ValidatorSet, height, view uint64) PubKey

// SigVerifier checks every transaction's signature, batched and in
// parallel, preserving input order in the result — satisfied by
// *verifier.Verifier. Injected rather than imported directly: verifier
// already imports chain, so chain importing verifier back would cycle.
type SigVerifier interface {
	VerifySignaturesParallel(txs []Transaction) []bool
}

// ValidateBlock runs every external-block check from §4.4 against
// parent and the frozen validator set for this height. On any failure
// the caller must reject the block and not vote — ValidateBlock never
// mutates appState; the dry-run simulation is only used to recompute
// the state root, and is side-effect-free on both success and failure.
func ValidateBlock(block *Block, parent *Block, validators ValidatorSet, view uint64, leader LeaderFunc, appState StateApplier, sigVerifier SigVerifier, gasLimit uint64) error {
	if block.Header.PrevHash != parent.Hash() {
		return fmt.Errorf("%w: prev_hash does not reference parent", ErrInvalidPrevHash)
	}
	if block.Header.Height != parent.Header.Height+1 {
		return fmt.Errorf("%w: expected height %d, got %d", ErrInvalidBlockHeight, parent.Header.Height+1, block.Header.Height)
	}
	if block.Header.Timestamp <= parent.Header.Timestamp {
		return ErrTimestampNotAdvancing
	}
	if validators.GetValidatorStake(block.Header.Proposer) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownProposer, block.Header.Proposer)
	}
	if leader != nil {
		expected := leader(validators, block.Header.Height, view)
		if expected != block.Header.Proposer {
			return fmt.Errorf("%w: expected %s, got %s", ErrWrongLeader, expected, block.Header.Proposer)
		}
	}
	if !VerifyBlockSignature(block) {
		return ErrInvalidSignature
	}
	leaves := TransactionIDs(block.Transactions)
	gotRoot := MerkleRoot(leaves)
	if gotRoot != block.Header.TxMerkleRoot {
		return ErrMerkleRootMismatch
	}
	if sigVerifier != nil {
		for i, ok := range sigVerifier.VerifySignaturesParallel(block.Transactions) {
			if !ok {
				return fmt.Errorf("%w: tx %d", ErrInvalidSignature, i)
			}
		}
	}
	var gasUsed uint64
	for i := range block.Transactions {
		gasUsed += uint64(block.Transactions[i].SizeBytes())
	}
	if gasUsed > gasLimit {
		return ErrGasLimitExceeded
	}
	stateRoot, err := appState.SimulateTransactions(block.Transactions)
	if err != nil {
		return fmt.Errorf("re-execution failed: %w", err)
	}
	if stateRoot != block.Header.StateRoot {
		return fmt.Errorf("%w: computed %s, header says %s", ErrStateRootMismatch, stateRoot, block.Header.StateRoot)
	}
	return nil
}
