package crypto

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/ccchain/ccchain/internal/chain"
)

// ParallelHashMultiple hashes each piece concurrently, preserving input
// order in the result. Worker count defaults to GOMAXPROCS.
func ParallelHashMultiple(pieces [][]byte) []chain.Hash {
	return ParallelHashMultipleWorkers(pieces, runtime.GOMAXPROCS(0))
}

// ParallelHashMultipleWorkers is ParallelHashMultiple with an explicit,
// bounded worker count to avoid scheduler thrash under high fan-out.
func ParallelHashMultipleWorkers(pieces [][]byte, workers int) []chain.Hash {
	if workers < 1 {
		workers = 1
	}
	results := make([]chain.Hash, len(pieces))
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(workers)
	for i, piece := range pieces {
		i, piece := i, piece
		g.Go(func() error {
			results[i] = HashBytes(piece)
			return nil
		})
	}
	_ = g.Wait() // hashing never errors
	return results
}
