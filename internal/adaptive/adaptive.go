// Package adaptive tracks recent chain performance and derives local
// parameter adjustments from it — block time target, gas limit, and
// base fee. None of this affects consensus validity: every node
// computes its own adjustment from its own observations, purely to
// tune its own proposing/admission behavior.
package adaptive

import (
	"sync"
	"time"
)

// maxBlockWindow and maxConfirmationWindow are the two rolling-window
// capacities a complete node's performance monitor holds: recent block
// timings are sampled more densely than confirmation latencies.
const (
	maxBlockWindow        = 100
	maxConfirmationWindow = 1000
)

type blockSample struct {
	blockTime time.Duration
	txCount   int
}

// PerformanceMonitor holds two fixed-capacity ring buffers — one of
// recent block production samples, one of recent confirmation
// latencies — as plain slices with a write cursor, the simplest
// correct shape for these two small, differently-sized windows.
type PerformanceMonitor struct {
	mu sync.Mutex

	blocks    []blockSample
	blockNext int

	confirmations    []time.Duration
	confirmationNext int
}

// NewPerformanceMonitor returns an empty monitor.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{
		blocks:        make([]blockSample, 0, maxBlockWindow),
		confirmations: make([]time.Duration, 0, maxConfirmationWindow),
	}
}

// RecordBlock appends one (block_time, tx_count) sample, evicting the
// oldest once the window is full.
func (p *PerformanceMonitor) RecordBlock(blockTime time.Duration, txCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := blockSample{blockTime: blockTime, txCount: txCount}
	if len(p.blocks) < maxBlockWindow {
		p.blocks = append(p.blocks, s)
		return
	}
	p.blocks[p.blockNext] = s
	p.blockNext = (p.blockNext + 1) % maxBlockWindow
}

// RecordConfirmation appends one confirmation-latency sample, evicting
// the oldest once the window is full.
func (p *PerformanceMonitor) RecordConfirmation(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.confirmations) < maxConfirmationWindow {
		p.confirmations = append(p.confirmations, d)
		return
	}
	p.confirmations[p.confirmationNext] = d
	p.confirmationNext = (p.confirmationNext + 1) % maxConfirmationWindow
}

// TPS returns the mean transactions-per-second across the block
// window, computed from total tx count over total elapsed block time.
func (p *PerformanceMonitor) TPS() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.blocks) == 0 {
		return 0
	}
	var totalTx int
	var totalTime time.Duration
	for _, s := range p.blocks {
		totalTx += s.txCount
		totalTime += s.blockTime
	}
	if totalTime <= 0 {
		return 0
	}
	return float64(totalTx) / totalTime.Seconds()
}

// MeanBlockTime returns the arithmetic mean of the block-time window.
func (p *PerformanceMonitor) MeanBlockTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.blocks) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range p.blocks {
		total += s.blockTime
	}
	return total / time.Duration(len(p.blocks))
}

// MeanConfirmationTime returns the arithmetic mean of the confirmation
// window.
func (p *PerformanceMonitor) MeanConfirmationTime() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.confirmations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range p.confirmations {
		total += d
	}
	return total / time.Duration(len(p.confirmations))
}

// Params are the locally-tuned values a node adjusts in response to
// observed performance. They are read by proposal construction and
// mempool admission, never by validation — a peer's params never need
// to agree with this node's.
type Params struct {
	BlockTimeTarget time.Duration
	GasLimit        uint64
	BaseFee         uint64
}

// Bounds on the values Adjust ever produces, per a complete node's
// adaptive-parameter policy.
const (
	minBlockTimeTarget = 300 * time.Millisecond
	minGasLimit        = 1_000_000
	maxGasLimit        = 100_000_000
	minBaseFee         = 100
	maxBaseFee         = 100_000
)

// Controller holds the current Params and derives the next set from a
// PerformanceMonitor's rolling statistics. It is not safe for
// concurrent use — callers own their own serialization the same way
// consensus.Engine's single goroutine owns cs.
type Controller struct {
	params Params
}

// NewController starts from the given initial params, normally the
// genesis file's configured targets.
func NewController(initial Params) *Controller {
	return &Controller{params: initial}
}

// Params returns the controller's current parameters.
func (c *Controller) Params() Params { return c.params }

// Adjust derives the next Params from perf's rolling statistics,
// applying the deterministic thresholds below. Every comparison is
// against perf's own local observations — no randomness, no network
// input — so Adjust is purely a function of (current params, recent
// history).
func (c *Controller) Adjust(perf *PerformanceMonitor) Params {
	p := c.params

	meanBlock := perf.MeanBlockTime()
	if meanBlock > 0 {
		switch {
		case meanBlock > 2*p.BlockTimeTarget:
			p.BlockTimeTarget += 100 * time.Millisecond
		case meanBlock < p.BlockTimeTarget/2:
			p.BlockTimeTarget -= 50 * time.Millisecond
		}
		if p.BlockTimeTarget < minBlockTimeTarget {
			p.BlockTimeTarget = minBlockTimeTarget
		}
	}

	tps := perf.TPS()
	switch {
	case tps > 10000:
		p.GasLimit = uint64(float64(p.GasLimit) * 1.1)
	case tps > 0 && tps < 1000:
		p.GasLimit = uint64(float64(p.GasLimit) * 0.9)
	}
	p.GasLimit = clampU64(p.GasLimit, minGasLimit, maxGasLimit)

	meanConfirm := perf.MeanConfirmationTime()
	switch {
	case meanConfirm > 5*time.Second:
		p.BaseFee = uint64(float64(p.BaseFee) * 1.2)
	case meanConfirm > 0 && meanConfirm < time.Second:
		p.BaseFee = uint64(float64(p.BaseFee) * 0.95)
	}
	p.BaseFee = clampU64(p.BaseFee, minBaseFee, maxBaseFee)

	c.params = p
	return p
}

func clampU64(v, lo, hi uint64) uint64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
