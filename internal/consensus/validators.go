package consensus

import (
	"sort"

	"github.com/ccchain/ccchain/internal/chain"
)

// ValidatorSet is a frozen, height-scoped snapshot of validator stakes,
// sorted by public key for deterministic leader rotation and quorum
// computation. Validator-set changes scheduled mid-height never mutate
// a live ValidatorSet — they take effect by constructing a new one at
// the next height boundary (§4.6.8).
type ValidatorSet struct {
	sorted []chain.PubKey
	stake  map[chain.PubKey]uint64
	total  uint64
}

// NewValidatorSet builds a frozen set from a stake map.
func NewValidatorSet(stakes map[chain.PubKey]uint64) *ValidatorSet {
	sorted := make([]chain.PubKey, 0, len(stakes))
	var total uint64
	stakeCopy := make(map[chain.PubKey]uint64, len(stakes))
	for pk, s := range stakes {
		sorted = append(sorted, pk)
		stakeCopy[pk] = s
		total += s
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
	return &ValidatorSet{sorted: sorted, stake: stakeCopy, total: total}
}

// Len returns the validator count.
func (vs *ValidatorSet) Len() int { return len(vs.sorted) }

// GetValidatorStake implements chain.ValidatorSet.
func (vs *ValidatorSet) GetValidatorStake(pk chain.PubKey) uint64 { return vs.stake[pk] }

// TotalValidatorStake implements chain.ValidatorSet.
func (vs *ValidatorSet) TotalValidatorStake() uint64 { return vs.total }

// QuorumThreshold returns the minimum stake a subset must hold to be a
// quorum: ⌈2·total_stake/3⌉ + 1.
func (vs *ValidatorSet) QuorumThreshold() uint64 {
	return quorumThreshold(vs.total)
}

func quorumThreshold(total uint64) uint64 {
	// ceil(2*total/3) computed in integer arithmetic, then +1.
	return (2*total+2)/3 + 1
}

// FaultTolerance returns f = floor((total_stake-1)/3), the maximum
// adversarial stake the set can tolerate.
func (vs *ValidatorSet) FaultTolerance() uint64 {
	if vs.total == 0 {
		return 0
	}
	return (vs.total - 1) / 3
}

// Leader computes the deterministic leader for (height, view): sort
// validators lexicographically by public key, index = (height+view)
// mod n.
func (vs *ValidatorSet) Leader(height, view uint64) chain.PubKey {
	if len(vs.sorted) == 0 {
		return chain.ZeroPubKey
	}
	idx := (height + view) % uint64(len(vs.sorted))
	return vs.sorted[idx]
}

// LeaderFunc adapts Leader to the chain.LeaderFunc signature expected by
// chain.ValidateBlock.
func LeaderFunc(validators chain.ValidatorSet, height, view uint64) chain.PubKey {
	vs, ok := validators.(*ValidatorSet)
	if !ok {
		return chain.ZeroPubKey
	}
	return vs.Leader(height, view)
}

// StakeOf sums the stake of a set of public keys within vs.
func (vs *ValidatorSet) StakeOf(voters map[chain.PubKey]struct{}) uint64 {
	var total uint64
	for pk := range voters {
		total += vs.stake[pk]
	}
	return total
}
