package safety

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/consensus"
)

func TestRecordProposalRaisesAlertBelowThreshold(t *testing.T) {
	m := New(zap.NewNop(), nil)
	v := chain.PubKey{1}
	for i := 0; i < 4; i++ {
		m.RecordProposal(v, true)
	}
	m.RecordProposal(v, false) // 4/5 = 0.8, not yet below threshold
	select {
	case <-m.AlertCh():
		t.Fatal("unexpected alert at exactly the threshold")
	default:
	}
	m.RecordProposal(v, false) // 4/6 < 0.8
	select {
	case a := <-m.AlertCh():
		require.Equal(t, AlertInvalidProposal, a.Type)
		require.Equal(t, SeverityHigh, a.Severity)
	case <-time.After(time.Second):
		t.Fatal("expected alert")
	}
}

func TestRecordEquivocationRaisesCriticalAndHook(t *testing.T) {
	var hooked Alert
	m := New(zap.NewNop(), func(a Alert) { hooked = a })
	v := chain.PubKey{2}
	m.RecordEquivocation(v, consensus.Slot{Height: 1})

	select {
	case a := <-m.AlertCh():
		require.Equal(t, AlertDoubleVoting, a.Type)
		require.Equal(t, SeverityCritical, a.Severity)
	case <-time.After(time.Second):
		t.Fatal("expected alert")
	}
	require.Equal(t, AlertDoubleVoting, hooked.Type)
}

func TestCheckUnresponsiveFlagsStaleValidator(t *testing.T) {
	m := New(zap.NewNop(), nil)
	v := chain.PubKey{3}
	m.RecordActivity(v)
	m.mu.Lock()
	m.metrics[v].LastActivity = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	m.CheckUnresponsive(time.Now())
	select {
	case a := <-m.AlertCh():
		require.Equal(t, AlertUnresponsive, a.Type)
	case <-time.After(time.Second):
		t.Fatal("expected alert")
	}
}

func TestRecordVoteNeverAlertsBelowMinSample(t *testing.T) {
	m := New(zap.NewNop(), nil)
	v := chain.PubKey{4}
	m.RecordVote(v, false)
	m.RecordVote(v, false)
	select {
	case <-m.AlertCh():
		t.Fatal("should not alert below minSampleSize")
	default:
	}
}
