package chain

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeValidatorSet struct {
	stake map[PubKey]uint64
}

func (f fakeValidatorSet) GetValidatorStake(pk PubKey) uint64 { return f.stake[pk] }
func (f fakeValidatorSet) TotalValidatorStake() uint64 {
	var total uint64
	for _, s := range f.stake {
		total += s
	}
	return total
}

type fakeStateApplier struct {
	root Hash
	err  error
}

func (f fakeStateApplier) SimulateTransactions(txs []Transaction) (Hash, error) {
	return f.root, f.err
}

type fakeSigVerifier struct {
	results []bool
}

func (f fakeSigVerifier) VerifySignaturesParallel(txs []Transaction) []bool { return f.results }

func testBlockWithOneTx(t *testing.T) (*Block, *Block, PubKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var proposer PubKey
	copy(proposer[:], pub)

	parent := NewGenesisBlock(ZeroHash, 0)

	tx := Transaction{From: PubKey{1}, To: PubKey{2}, Amount: 1, Fee: 0, Nonce: 0}
	txMerkleRoot := MerkleRoot(TransactionIDs([]Transaction{tx}))

	block := NewBlock(parent, []Transaction{tx}, proposer, 1, Hash{0x42}, txMerkleRoot, 1<<20)
	SignBlock(block, priv)
	return block, parent, proposer, priv
}

func TestValidateBlockRejectsForgedTransactionSignature(t *testing.T) {
	block, parent, proposer, _ := testBlockWithOneTx(t)
	validators := fakeValidatorSet{stake: map[PubKey]uint64{proposer: 1}}
	applier := fakeStateApplier{root: block.Header.StateRoot}
	forged := fakeSigVerifier{results: []bool{false}}

	err := ValidateBlock(block, parent, validators, 0, nil, applier, forged, 1<<20)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestValidateBlockAcceptsVerifiedTransactionSignatures(t *testing.T) {
	block, parent, proposer, _ := testBlockWithOneTx(t)
	validators := fakeValidatorSet{stake: map[PubKey]uint64{proposer: 1}}
	applier := fakeStateApplier{root: block.Header.StateRoot}
	verified := fakeSigVerifier{results: []bool{true}}

	err := ValidateBlock(block, parent, validators, 0, nil, applier, verified, 1<<20)
	require.NoError(t, err)
}

func TestValidateBlockSkipsSigCheckWhenVerifierNil(t *testing.T) {
	block, parent, proposer, _ := testBlockWithOneTx(t)
	validators := fakeValidatorSet{stake: map[PubKey]uint64{proposer: 1}}
	applier := fakeStateApplier{root: block.Header.StateRoot}

	err := ValidateBlock(block, parent, validators, 0, nil, applier, nil, 1<<20)
	require.NoError(t, err)
}
