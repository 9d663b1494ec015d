// Package rpc defines the node's external query/submission surface —
// the interface boundary RPC transports (HTTP, gRPC, whatever a given
// deployment wires up) and wallets sit behind. It declares contracts
// only; no transport or handler implementation lives here.
package rpc

import (
	"time"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/metrics"
)

// Error is the structured failure shape returned to RPC clients instead
// of a bare error string, so a wallet can branch on Code rather than
// parsing Message.
type Error struct {
	Code    string
	Message string
	Details string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Node is the API surface the node exposes to RPC transports: block
// and account queries, transaction submission, and chain head/
// validator-set lookups.
type Node interface {
	GetBlockByHash(hash chain.Hash) (*chain.Block, error)
	GetBlockByHeight(height uint64) (*chain.Block, error)
	GetTransaction(id chain.Hash) (*chain.Transaction, error)
	GetAccount(pk chain.PubKey) (chain.Account, error)
	SubmitTransaction(tx chain.Transaction) error
	GetHead() (*chain.Block, error)
	GetValidators() map[chain.PubKey]uint64
}

// MetricsSource is the node's external surface for a metrics exporter:
// the performance_metrics and mempool_stats parts of the collaborator
// contract. It has no safety-status method.
type MetricsSource interface {
	PerformanceMetrics() (meanBlockTime, meanConfirmation time.Duration, tps float64)
	MempoolStats() metrics.MempoolStats
}
