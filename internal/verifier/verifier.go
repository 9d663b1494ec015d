// Package verifier fans multi-transaction signature verification and
// generic per-transaction work out across a bounded worker pool,
// preserving input order. Parallelism is purely an implementation
// detail: the contract is semantic equivalence to a sequential map.
package verifier

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/crypto"
)

// Verifier fans verification work out across a fixed-size worker pool.
type Verifier struct {
	workers int
}

// New returns a Verifier bounded to workers concurrent goroutines.
// workers <= 0 defaults to runtime.GOMAXPROCS(0).
func New(workers int) *Verifier {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Verifier{workers: workers}
}

// VerifySignaturesParallel verifies each transaction's signature
// concurrently, returning per-tx results in input order. A coinbase
// transaction always verifies true (it carries no signature to check).
func (v *Verifier) VerifySignaturesParallel(txs []chain.Transaction) []bool {
	results := make([]bool, len(txs))
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(v.workers)
	for i := range txs {
		i := i
		g.Go(func() error {
			tx := &txs[i]
			if tx.IsCoinbase() {
				results[i] = true
			} else {
				results[i] = crypto.VerifyTransactionSignature(tx)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ExecuteParallel applies fn to each element of items concurrently,
// preserving input order in the result slice.
func ExecuteParallel[T any, R any](v *Verifier, items []T, fn func(*T) R) []R {
	results := make([]R, len(items))
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(v.workers)
	for i := range items {
		i := i
		g.Go(func() error {
			results[i] = fn(&items[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}
