// Package vm declares the contract storage interface a future contract
// execution environment will bridge to — scoped per-contract key/value
// access over the account state store. No execution engine exists yet;
// this is the storage seam that keeps the state package's layout free
// to add it later without a breaking change to callers.
package vm

import "github.com/ccchain/ccchain/internal/chain"

// Storage is the per-contract key/value surface a contract execution
// environment reads and writes through, namespaced by contract address.
type Storage interface {
	ReadStorage(contract chain.PubKey, key []byte) ([]byte, error)
	WriteStorage(contract chain.PubKey, key, value []byte) error
}
