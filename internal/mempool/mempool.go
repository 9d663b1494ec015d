// Package mempool implements fee-ordered transaction admission and the
// smart batcher that assembles proposer-ready transaction batches,
// generalizing the teacher's bare map-backed pool into a priority queue
// with per-sender nonce awareness.
package mempool

import (
	"container/heap"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/crypto"
)

// AccountView is the minimal state query the mempool needs for
// admission and drain-time staleness checks, satisfied by *state.Store.
type AccountView interface {
	GetAccount(pk chain.PubKey) chain.Account
}

// Entry is one admitted transaction plus its scheduling metadata.
type Entry struct {
	Tx         chain.Transaction
	EnqueuedAt time.Time
	Size       int
	Priority   float64
	index      int // heap position, maintained by priorityQueue
}

// Config bounds pool admission.
type Config struct {
	MinFeePerByte float64
	MaxBytes      int
}

// Mempool is a shared, mutex-protected priority queue of admitted
// transactions, ordered by descending priority with FIFO tiebreak.
type Mempool struct {
	mu        sync.Mutex
	cfg       Config
	state     AccountView
	byID      map[chain.Hash]*Entry
	bySender  map[chain.PubKey][]*Entry // kept sorted by nonce ascending
	pq        priorityQueue
	sizeBytes int
}

// New returns an empty mempool bound to the given account state view.
func New(cfg Config, state AccountView) *Mempool {
	return &Mempool{
		cfg:      cfg,
		state:    state,
		byID:     make(map[chain.Hash]*Entry),
		bySender: make(map[chain.PubKey][]*Entry),
	}
}

// AddTransaction runs the admission checks of §4.3 and inserts tx on
// success.
func (m *Mempool) AddTransaction(tx chain.Transaction) error {
	id := tx.ID()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[id]; exists {
		return fmt.Errorf("%w: %s", chain.ErrDuplicateTx, id)
	}
	if !tx.IsCoinbase() && !crypto.VerifyTransactionSignature(&tx) {
		return chain.ErrInvalidSignature
	}
	size := tx.SizeBytes()
	priority := float64(tx.Fee) / float64(size)
	if priority < m.cfg.MinFeePerByte {
		return fmt.Errorf("%w: fee/byte %.4f below minimum %.4f", chain.ErrInsufficientBalance, priority, m.cfg.MinFeePerByte)
	}
	currentNonce := m.state.GetAccount(tx.From).Nonce
	if tx.Nonce < currentNonce {
		return fmt.Errorf("%w: tx nonce %d < account nonce %d", chain.ErrStaleTx, tx.Nonce, currentNonce)
	}

	entry := &Entry{Tx: tx, EnqueuedAt: time.Now(), Size: size, Priority: priority}
	m.byID[id] = entry
	m.insertBySenderLocked(entry)
	heap.Push(&m.pq, entry)
	m.sizeBytes += size

	m.evictIfOverBudgetLocked()
	return nil
}

func (m *Mempool) insertBySenderLocked(e *Entry) {
	list := m.bySender[e.Tx.From]
	i := 0
	for i < len(list) && list[i].Tx.Nonce < e.Tx.Nonce {
		i++
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = e
	m.bySender[e.Tx.From] = list
}

func (m *Mempool) evictIfOverBudgetLocked() {
	if m.cfg.MaxBytes <= 0 {
		return
	}
	for m.sizeBytes > m.cfg.MaxBytes && m.pq.Len() > 0 {
		lowest := m.pq.lowestPriority()
		if lowest == nil {
			return
		}
		m.removeEntryLocked(lowest)
	}
}

func (m *Mempool) removeEntryLocked(e *Entry) {
	id := e.Tx.ID()
	delete(m.byID, id)
	m.sizeBytes -= e.Size
	heap.Remove(&m.pq, e.index)

	list := m.bySender[e.Tx.From]
	for i, other := range list {
		if other == e {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(m.bySender, e.Tx.From)
	} else {
		m.bySender[e.Tx.From] = list
	}
}

// Count returns the number of admitted transactions.
func (m *Mempool) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// Contains reports whether a transaction with the given ID is admitted.
func (m *Mempool) Contains(id chain.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[id]
	return ok
}

// GetTransactionsForBlock walks the priority queue selecting up to
// maxCount transactions whose cumulative gas (approximated here by
// size in bytes, the node's gas-accounting unit) stays within maxGas,
// skipping a sender's later-nonce transaction until its earlier-nonce
// transaction has also been selected.
func (m *Mempool) GetTransactionsForBlock(maxCount int, maxGas uint64) []chain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := make([]*Entry, len(m.pq))
	copy(ordered, m.pq)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].EnqueuedAt.Before(ordered[j].EnqueuedAt)
	})

	selected := make([]chain.Transaction, 0, maxCount)
	selectedNonce := make(map[chain.PubKey]uint64)
	var gasUsed uint64

	for _, e := range ordered {
		if len(selected) >= maxCount {
			break
		}
		expectedNonce, seenSender := selectedNonce[e.Tx.From]
		if !seenSender {
			expectedNonce = m.state.GetAccount(e.Tx.From).Nonce
		}
		if e.Tx.Nonce != expectedNonce {
			continue // gap: hold back until the earlier-nonce tx is selected
		}
		if gasUsed+uint64(e.Size) > maxGas {
			continue
		}
		selected = append(selected, e.Tx)
		selectedNonce[e.Tx.From] = e.Tx.Nonce + 1
		gasUsed += uint64(e.Size)
	}
	return selected
}

// RemoveTransaction evicts a single transaction by ID; it does nothing
// if no transaction with that ID is pooled.
func (m *Mempool) RemoveTransaction(id chain.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.byID[id]; ok {
		m.removeEntryLocked(e)
	}
}

// PruneCommitted removes every transaction whose ID appears in
// committed, plus any now-stale transactions whose
// nonce has fallen behind the sender's current account nonce.
func (m *Mempool) PruneCommitted(committed []chain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	committedKey := make(map[chain.Hash]struct{}, len(committed))
	for _, tx := range committed {
		committedKey[tx.ID()] = struct{}{}
	}
	for id, e := range m.byID {
		if _, was := committedKey[id]; was {
			m.removeEntryLocked(e)
			continue
		}
		if e.Tx.Nonce < m.state.GetAccount(e.Tx.From).Nonce {
			m.removeEntryLocked(e)
		}
	}
}

// Stats summarizes current pool contents for the metrics exporter.
type Stats struct {
	Count       int
	TotalBytes  int
	AvgFee      float64
	AvgPriority float64
}

// MempoolStats computes a Stats snapshot.
func (m *Mempool) MempoolStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.byID) == 0 {
		return Stats{}
	}
	var totalFee, totalPriority float64
	for _, e := range m.byID {
		totalFee += float64(e.Tx.Fee)
		totalPriority += e.Priority
	}
	n := float64(len(m.byID))
	return Stats{
		Count:       len(m.byID),
		TotalBytes:  m.sizeBytes,
		AvgFee:      totalFee / n,
		AvgPriority: totalPriority / n,
	}
}
