package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ccchain/ccchain/internal/chain"
)

// GenesisConfig holds the tunable parameters carried in a genesis
// file's config block.
type GenesisConfig struct {
	BlockTimeMs uint64 `yaml:"block_time_ms"`
	GasLimit    uint64 `yaml:"gas_limit"`
	BaseFee     uint64 `yaml:"base_fee"`
}

// AccountEntry is one (pubkey, balance) pair in initial_accounts.
type AccountEntry struct {
	PubKeyHex string `yaml:"pubkey_hex"`
	Balance   uint64 `yaml:"balance"`
}

// ValidatorEntry is one (pubkey, stake) pair in initial_validators.
type ValidatorEntry struct {
	PubKeyHex string `yaml:"pubkey_hex"`
	Stake     uint64 `yaml:"stake"`
}

// Genesis is the on-disk genesis file format consumed at startup.
type Genesis struct {
	ChainID           string           `yaml:"chain_id"`
	GenesisTime       uint64           `yaml:"genesis_time"`
	InitialAccounts   []AccountEntry   `yaml:"initial_accounts"`
	InitialValidators []ValidatorEntry `yaml:"initial_validators"`
	Config            GenesisConfig    `yaml:"config"`
}

// LoadGenesis reads and parses a genesis file from path.
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read genesis file: %w", err)
	}
	var g Genesis
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("config: parse genesis file: %w", err)
	}
	return &g, nil
}

// WriteGenesis serializes g as YAML to path.
func WriteGenesis(path string, g *Genesis) error {
	raw, err := yaml.Marshal(g)
	if err != nil {
		return fmt.Errorf("config: marshal genesis file: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("config: write genesis file: %w", err)
	}
	return nil
}

// Accounts parses every initial_accounts entry into a (pubkey, balance)
// map, ready for the state store to apply at InitGenesis.
func (g *Genesis) Accounts() (map[chain.PubKey]uint64, error) {
	out := make(map[chain.PubKey]uint64, len(g.InitialAccounts))
	for _, e := range g.InitialAccounts {
		pk, err := chain.PubKeyFromHex(e.PubKeyHex)
		if err != nil {
			return nil, fmt.Errorf("config: account pubkey %q: %w", e.PubKeyHex, err)
		}
		out[pk] = e.Balance
	}
	return out, nil
}

// Validators parses every initial_validators entry into a (pubkey,
// stake) map.
func (g *Genesis) Validators() (map[chain.PubKey]uint64, error) {
	out := make(map[chain.PubKey]uint64, len(g.InitialValidators))
	for _, e := range g.InitialValidators {
		pk, err := chain.PubKeyFromHex(e.PubKeyHex)
		if err != nil {
			return nil, fmt.Errorf("config: validator pubkey %q: %w", e.PubKeyHex, err)
		}
		out[pk] = e.Stake
	}
	return out, nil
}

// Hash computes the genesis hash: Blake3 of a canonical encoding of
// the genesis file's contents, independent of YAML key order or
// whitespace (the wire protocol's determinism requirement applies
// here too — the hash must reproduce identically from a hand-edited
// file with reordered keys).
func (g *Genesis) Hash() (chain.Hash, error) {
	accounts, err := g.Accounts()
	if err != nil {
		return chain.Hash{}, err
	}
	validators, err := g.Validators()
	if err != nil {
		return chain.Hash{}, err
	}

	accountKeys := sortedKeys(accounts)
	validatorKeys := sortedKeys(validators)

	var buf []byte
	buf = append(buf, []byte(g.ChainID)...)
	buf = appendU64(buf, g.GenesisTime)
	for _, k := range accountKeys {
		buf = append(buf, k[:]...)
		buf = appendU64(buf, accounts[k])
	}
	for _, k := range validatorKeys {
		buf = append(buf, k[:]...)
		buf = appendU64(buf, validators[k])
	}
	buf = appendU64(buf, g.Config.BlockTimeMs)
	buf = appendU64(buf, g.Config.GasLimit)
	buf = appendU64(buf, g.Config.BaseFee)
	return chain.HashBytes(buf), nil
}

func sortedKeys(m map[chain.PubKey]uint64) []chain.PubKey {
	keys := make([]chain.PubKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(v >> (8 * i))
	}
	return append(buf, tmp[:]...)
}
