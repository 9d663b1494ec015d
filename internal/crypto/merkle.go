package crypto

import "github.com/ccchain/ccchain/internal/chain"

// MerkleTree is a binary hash tree built bottom-up over an ordered leaf
// set. Levels with an odd node count promote the last node unchanged
// rather than duplicating it.
type MerkleTree struct {
	levels [][]chain.Hash // levels[0] = leaves, levels[len-1] = [root]
}

// BuildMerkleTree builds a tree over leaves in the given order. The root
// of an empty leaf set is the zero hash.
func BuildMerkleTree(leaves []chain.Hash) *MerkleTree {
	if len(leaves) == 0 {
		return &MerkleTree{levels: [][]chain.Hash{{chain.ZeroHash}}}
	}
	level := make([]chain.Hash, len(leaves))
	copy(level, leaves)
	levels := [][]chain.Hash{level}
	for len(level) > 1 {
		next := make([]chain.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, chain.HashPair(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		levels = append(levels, next)
		level = next
	}
	return &MerkleTree{levels: levels}
}

// Root returns the tree's root hash.
func (t *MerkleTree) Root() chain.Hash {
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// ProofStep is one level of a Merkle proof. Present is false when the
// node at this level was an odd leftover promoted unchanged — there is
// no sibling to fold in, and the step is a no-op during verification.
type ProofStep struct {
	Sibling chain.Hash
	Present bool
}

// Proof returns one step per tree level from leaf i up to the root, in
// bottom-to-top order, plus false if i is out of range.
func (t *MerkleTree) Proof(i int) ([]ProofStep, bool) {
	if i < 0 || i >= len(t.levels[0]) {
		return nil, false
	}
	proof := make([]ProofStep, 0, len(t.levels)-1)
	idx := i
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		var siblingIdx int
		if idx%2 == 0 {
			siblingIdx = idx + 1
		} else {
			siblingIdx = idx - 1
		}
		if siblingIdx < len(nodes) {
			proof = append(proof, ProofStep{Sibling: nodes[siblingIdx], Present: true})
		} else {
			proof = append(proof, ProofStep{Present: false})
		}
		idx /= 2
	}
	return proof, true
}

// VerifyProof reconstructs the root from leaf and proof, folding
// siblings according to index parity at each level, and reports whether
// it matches root.
func VerifyProof(root, leaf chain.Hash, proof []ProofStep, index int) bool {
	current := leaf
	idx := index
	for _, step := range proof {
		if step.Present {
			if idx%2 == 0 {
				current = chain.HashPair(current, step.Sibling)
			} else {
				current = chain.HashPair(step.Sibling, current)
			}
		}
		idx /= 2
	}
	return current == root
}
