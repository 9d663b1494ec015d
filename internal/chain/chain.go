package chain

import (
	"fmt"
	"sync"
)

// Chain is the single-head, no-fork-selection block graph: a mapping
// from hash to block plus a head pointer. A validated block extending
// the current head becomes the new head; anything else is rejected —
// consensus, not the chain, is responsible for agreeing on one head per
// height.
type Chain struct {
	mu      sync.RWMutex
	blocks  map[Hash]*Block
	head    Hash
	genesis Hash
}

// NewChain returns an empty chain; callers must call InitGenesis before
// any other operation.
func NewChain() *Chain {
	return &Chain{blocks: make(map[Hash]*Block)}
}

// InitGenesis installs genesis as height 0 and sets it as both genesis
// and head. It is the only way height-0 blocks enter the chain.
func (c *Chain) InitGenesis(genesis *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.blocks) != 0 {
		return fmt.Errorf("chain already initialized")
	}
	if !genesis.IsGenesis() {
		return fmt.Errorf("%w: genesis block must have height 0", ErrInvalidBlockHeight)
	}
	hash := genesis.Hash()
	c.blocks[hash] = genesis
	c.head = hash
	c.genesis = hash
	return nil
}

// AppendBlock appends block as the new head. The caller is responsible
// for having already validated block (header hash, signature, state
// root, etc.) via ValidateBlock; AppendBlock only enforces that it extends
// the current head.
func (c *Chain) AppendBlock(block *Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	head, ok := c.blocks[c.head]
	if !ok {
		return fmt.Errorf("chain not initialized")
	}
	if block.Header.Height != head.Header.Height+1 {
		return fmt.Errorf("%w: expected height %d, got %d", ErrInvalidBlockHeight, head.Header.Height+1, block.Header.Height)
	}
	if block.Header.PrevHash != c.head {
		return fmt.Errorf("%w: block does not extend current head", ErrDoesNotExtendHead)
	}
	hash := block.Hash()
	c.blocks[hash] = block
	c.head = hash
	return nil
}

// GetBlockByHash returns the block with the given hash.
func (c *Chain) GetBlockByHash(h Hash) (*Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.blocks[h]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return b, nil
}

// Head returns the current head block.
func (c *Chain) Head() (*Block, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.blocks[c.head]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return b, nil
}

// HeadHash returns the current head's hash.
func (c *Chain) HeadHash() Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.head
}

// Height returns the head block's height, or 0 if uninitialized.
func (c *Chain) Height() uint64 {
	head, err := c.Head()
	if err != nil {
		return 0
	}
	return head.Header.Height
}

// GenesisHash returns the chain's genesis block hash.
func (c *Chain) GenesisHash() Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.genesis
}
