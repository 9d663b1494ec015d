package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccchain/ccchain/internal/chain"
)

func TestQuorumThresholdExactBoundary(t *testing.T) {
	// 4 validators, stake 100 each: total 400, f=1, quorum = ceil(800/3)+1 = 267+1=268...
	// Using integer ceil(2*400/3)=267, +1=268; 3 validators at 100 = 300 >= 268 is a quorum,
	// 2 validators at 100 = 200 < 268 is not.
	vs := NewValidatorSet(map[chain.PubKey]uint64{
		{1}: 100, {2}: 100, {3}: 100, {4}: 100,
	})
	require.Equal(t, uint64(400), vs.TotalValidatorStake())
	threshold := vs.QuorumThreshold()
	require.True(t, 300 >= threshold)
	require.False(t, 200 >= threshold)
}

func TestLeaderDeterministic(t *testing.T) {
	vs := NewValidatorSet(map[chain.PubKey]uint64{
		{1}: 100, {2}: 100, {3}: 100, {4}: 100,
	})
	l1 := vs.Leader(1, 0)
	l2 := vs.Leader(1, 0)
	require.Equal(t, l1, l2)

	// Leader rotates across (height+view) mod n.
	seen := map[chain.PubKey]int{}
	for v := uint64(0); v < 4; v++ {
		seen[vs.Leader(1, v)]++
	}
	require.Len(t, seen, 4) // with n=4 validators, a full view sweep touches each once
}

func TestFaultTolerance(t *testing.T) {
	vs := NewValidatorSet(map[chain.PubKey]uint64{
		{1}: 100, {2}: 100, {3}: 100, {4}: 100,
	})
	require.Equal(t, uint64(133), vs.FaultTolerance())
}
