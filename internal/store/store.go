// Package store is the node's persisted layout: every committed block,
// the head/genesis pointers, and the account set, held in a goleveldb
// database so a restart resumes from the last committed block with a
// matching state root instead of re-syncing from genesis.
package store

import (
	"encoding/binary"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/ccchain/ccchain/internal/chain"
)

// Key prefixes partition the single leveldb keyspace by record kind.
var (
	prefixBlock     = []byte("blk:")
	prefixHeightIdx = []byte("hgt:")
	prefixAccount   = []byte("acc:")
	keyHead         = []byte("meta:head")
	keyGenesis      = []byte("meta:genesis")
	keyTotalSupply  = []byte("meta:total_supply")
)

// Store wraps a goleveldb handle with the node's record encoding.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if absent) the leveldb database at dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func blockKey(h chain.Hash) []byte      { return append(append([]byte{}, prefixBlock...), h[:]...) }
func accountKey(pk chain.PubKey) []byte { return append(append([]byte{}, prefixAccount...), pk[:]...) }

func heightKey(height uint64) []byte {
	key := append([]byte{}, prefixHeightIdx...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height) // big-endian so lexicographic iteration is height-ordered
	return append(key, buf[:]...)
}

// CommitBlock atomically persists a newly committed block: the block
// itself, its height index entry, the new head pointer, every account
// touched while applying it, and the updated total supply. A crash
// mid-write leaves the database at either the pre- or post-commit
// state, never a torn mixture, since leveldb.Batch.Write is atomic.
func (s *Store) CommitBlock(block *chain.Block, touched map[chain.PubKey]chain.Account, totalSupply uint64) error {
	batch := new(leveldb.Batch)

	hash := block.Hash()
	batch.Put(blockKey(hash), chain.EncodeBlock(block))
	batch.Put(heightKey(block.Header.Height), hash[:])
	batch.Put(keyHead, hash[:])

	for pk, acct := range touched {
		batch.Put(accountKey(pk), encodeAccount(acct))
	}
	var supplyBuf [8]byte
	binary.LittleEndian.PutUint64(supplyBuf[:], totalSupply)
	batch.Put(keyTotalSupply, supplyBuf[:])

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("store: commit block %d: %w", block.Header.Height, err)
	}
	return nil
}

// CommitGenesis persists the genesis block and its initial accounts in
// one batch, and records it as both genesis and head.
func (s *Store) CommitGenesis(genesis *chain.Block, accounts map[chain.PubKey]chain.Account, totalSupply uint64) error {
	batch := new(leveldb.Batch)
	hash := genesis.Hash()
	batch.Put(blockKey(hash), chain.EncodeBlock(genesis))
	batch.Put(heightKey(0), hash[:])
	batch.Put(keyHead, hash[:])
	batch.Put(keyGenesis, hash[:])
	for pk, acct := range accounts {
		batch.Put(accountKey(pk), encodeAccount(acct))
	}
	var supplyBuf [8]byte
	binary.LittleEndian.PutUint64(supplyBuf[:], totalSupply)
	batch.Put(keyTotalSupply, supplyBuf[:])
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("store: commit genesis: %w", err)
	}
	return nil
}

// Head returns the persisted head block hash. ok is false on a fresh,
// never-initialized database.
func (s *Store) Head() (h chain.Hash, ok bool, err error) {
	return s.readHash(keyHead)
}

// Genesis returns the persisted genesis block hash.
func (s *Store) Genesis() (h chain.Hash, ok bool, err error) {
	return s.readHash(keyGenesis)
}

func (s *Store) readHash(key []byte) (chain.Hash, bool, error) {
	var h chain.Hash
	raw, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return h, false, nil
	}
	if err != nil {
		return h, false, fmt.Errorf("store: read %s: %w", key, err)
	}
	copy(h[:], raw)
	return h, true, nil
}

// GetBlock loads a block by hash.
func (s *Store) GetBlock(hash chain.Hash) (*chain.Block, error) {
	raw, err := s.db.Get(blockKey(hash), nil)
	if err != nil {
		return nil, fmt.Errorf("store: read block %s: %w", hash, err)
	}
	return chain.DecodeBlock(raw)
}

// GetBlockByHeight loads a block via the height index.
func (s *Store) GetBlockByHeight(height uint64) (*chain.Block, error) {
	hashRaw, err := s.db.Get(heightKey(height), nil)
	if err != nil {
		return nil, fmt.Errorf("store: read height index %d: %w", height, err)
	}
	var h chain.Hash
	copy(h[:], hashRaw)
	return s.GetBlock(h)
}

// TotalSupply returns the persisted running total supply, or 0 on a
// fresh database.
func (s *Store) TotalSupply() (uint64, error) {
	raw, err := s.db.Get(keyTotalSupply, nil)
	if err == leveldb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read total supply: %w", err)
	}
	return binary.LittleEndian.Uint64(raw), nil
}

// LoadAccounts iterates every persisted account, used to rebuild the
// in-memory state store on startup.
func (s *Store) LoadAccounts() (map[chain.PubKey]chain.Account, error) {
	out := make(map[chain.PubKey]chain.Account)
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Seek(prefixAccount); iter.Valid(); iter.Next() {
		key := iter.Key()
		if !hasPrefix(key, prefixAccount) {
			break
		}
		var pk chain.PubKey
		copy(pk[:], key[len(prefixAccount):])
		acct, err := decodeAccount(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("store: decode account: %w", err)
		}
		out[pk] = acct
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("store: iterate accounts: %w", err)
	}
	return out, nil
}

// RebuildChain walks the persisted chain from genesis to head (via the
// height index, since it's already in height order) and replays every
// block into c, the crash-recovery path a restarting node takes before
// resuming consensus.
func (s *Store) RebuildChain(c *chain.Chain) error {
	genesisHash, ok, err := s.Genesis()
	if err != nil {
		return err
	}
	if !ok {
		return nil // nothing persisted yet; caller initializes a fresh genesis
	}
	genesis, err := s.GetBlock(genesisHash)
	if err != nil {
		return err
	}
	if err := c.InitGenesis(genesis); err != nil {
		return fmt.Errorf("store: replay genesis: %w", err)
	}

	head, _, err := s.Head()
	if err != nil {
		return err
	}
	headBlock, err := s.GetBlock(head)
	if err != nil {
		return err
	}
	for height := uint64(1); height <= headBlock.Header.Height; height++ {
		block, err := s.GetBlockByHeight(height)
		if err != nil {
			return fmt.Errorf("store: replay block %d: %w", height, err)
		}
		if err := c.AppendBlock(block); err != nil {
			return fmt.Errorf("store: replay block %d: %w", height, err)
		}
	}
	return nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// encodeAccount/decodeAccount reuse chain's own little-endian leaf
// encoding for an account's fields rather than inventing a second
// format for the same struct.
func encodeAccount(a chain.Account) []byte {
	buf := make([]byte, 0, 8+8+32+32)
	buf = appendU64(buf, a.Balance)
	buf = appendU64(buf, a.Nonce)
	buf = append(buf, a.StorageRoot[:]...)
	buf = append(buf, a.CodeHash[:]...)
	return buf
}

func decodeAccount(b []byte) (chain.Account, error) {
	var a chain.Account
	if len(b) != 8+8+32+32 {
		return a, fmt.Errorf("store: malformed account record (%d bytes)", len(b))
	}
	a.Balance = binary.LittleEndian.Uint64(b[0:8])
	a.Nonce = binary.LittleEndian.Uint64(b[8:16])
	copy(a.StorageRoot[:], b[16:48])
	copy(a.CodeHash[:], b[48:80])
	return a, nil
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
