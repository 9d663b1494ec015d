package mempool

import (
	"sync"
	"time"

	"github.com/ccchain/ccchain/internal/chain"
)

// BatchMetadata accompanies a drained batch for logging and metrics.
type BatchMetadata struct {
	TxCount       int
	AvgFee        float64
	SizeBytes     int
	PriorityScore float64
}

// TransactionBatch is one proposer-ready set of transactions.
type TransactionBatch struct {
	Txs      []chain.Transaction
	Metadata BatchMetadata
}

// BatcherConfig sets the three "batch ready" triggers.
type BatcherConfig struct {
	MaxTxs          int
	MaxGas          uint64
	MaxLingerDuration time.Duration
}

// SmartBatcher wraps a Mempool, watching count, gas, and linger-time
// triggers and emitting TransactionBatch values when any fires.
type SmartBatcher struct {
	mu        sync.Mutex
	pool      *Mempool
	cfg       BatcherConfig
	firstSeen time.Time
}

// NewSmartBatcher returns a batcher over pool.
func NewSmartBatcher(pool *Mempool, cfg BatcherConfig) *SmartBatcher {
	return &SmartBatcher{pool: pool, cfg: cfg}
}

// Ready reports whether any of the three triggers has fired.
func (b *SmartBatcher) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readyLocked()
}

func (b *SmartBatcher) readyLocked() bool {
	count := b.pool.Count()
	if count == 0 {
		return false
	}
	if count >= b.cfg.MaxTxs {
		return true
	}
	if !b.firstSeen.IsZero() && time.Since(b.firstSeen) >= b.cfg.MaxLingerDuration {
		return true
	}
	stats := b.pool.MempoolStats()
	if uint64(stats.TotalBytes) >= b.cfg.MaxGas {
		return true
	}
	return false
}

// Observe marks firstSeen the first time the pool becomes non-empty,
// resetting once the pool is drained back to empty. Callers should poll
// Observe+Ready on a ticker (the teacher's engine-loop idiom in
// internal/consensus).
func (b *SmartBatcher) Observe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pool.Count() == 0 {
		b.firstSeen = time.Time{}
		return
	}
	if b.firstSeen.IsZero() {
		b.firstSeen = time.Now()
	}
}

// Drain returns a batch if ready, draining up to maxCount/maxGas
// transactions from the underlying pool and resetting the linger timer.
// The returned bool is false if no trigger has fired.
func (b *SmartBatcher) Drain(maxCount int, maxGas uint64) (TransactionBatch, bool) {
	b.mu.Lock()
	if !b.readyLocked() {
		b.mu.Unlock()
		return TransactionBatch{}, false
	}
	b.firstSeen = time.Time{}
	b.mu.Unlock()

	return b.buildBatch(maxCount, maxGas), true
}

// ForceBatch flushes unconditionally, ignoring all three triggers.
func (b *SmartBatcher) ForceBatch(maxCount int, maxGas uint64) TransactionBatch {
	b.mu.Lock()
	b.firstSeen = time.Time{}
	b.mu.Unlock()
	return b.buildBatch(maxCount, maxGas)
}

func (b *SmartBatcher) buildBatch(maxCount int, maxGas uint64) TransactionBatch {
	txs := b.pool.GetTransactionsForBlock(maxCount, maxGas)
	var totalFee float64
	var totalBytes int
	var totalPriority float64
	for _, tx := range txs {
		totalFee += float64(tx.Fee)
		size := tx.SizeBytes()
		totalBytes += size
		totalPriority += float64(tx.Fee) / float64(size)
	}
	meta := BatchMetadata{TxCount: len(txs), SizeBytes: totalBytes}
	if len(txs) > 0 {
		meta.AvgFee = totalFee / float64(len(txs))
		meta.PriorityScore = totalPriority / float64(len(txs))
	}
	return TransactionBatch{Txs: txs, Metadata: meta}
}
