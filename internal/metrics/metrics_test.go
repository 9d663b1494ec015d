package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ccchain/ccchain/internal/adaptive"
	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/safety"
)

type fakeMempool struct{ n int }

func (f fakeMempool) Count() int { return f.n }

func TestRefreshSetsGaugesFromPerformanceMonitor(t *testing.T) {
	perf := adaptive.NewPerformanceMonitor()
	perf.RecordBlock(2*time.Second, 50)
	reg := prometheus.NewRegistry()
	m := New(reg, perf, fakeMempool{n: 3})

	m.Refresh(adaptive.Params{GasLimit: 5_000_000, BaseFee: 500})

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)

	stats := m.MempoolStats()
	require.Equal(t, 3, stats.Count)
}

func TestWatchAlertsObservesUntilStop(t *testing.T) {
	reg := prometheus.NewRegistry()
	perf := adaptive.NewPerformanceMonitor()
	m := New(reg, perf, fakeMempool{})
	mon := safety.New(zap.NewNop(), nil)

	stopCh := make(chan struct{})
	done := make(chan struct{})
	go func() {
		m.WatchAlerts(mon, stopCh)
		close(done)
	}()

	var key chain.PubKey
	for i := 0; i < 5; i++ {
		mon.RecordProposal(key, false)
	}

	close(stopCh)
	<-done
}
