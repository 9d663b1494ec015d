package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ccchain/ccchain/internal/crypto"
)

func TestGenesisRoundTripAndHashStable(t *testing.T) {
	pk, _ := crypto.GenerateKey(nil)
	g := &Genesis{
		ChainID:     "ccchain-test",
		GenesisTime: 0,
		InitialAccounts: []AccountEntry{
			{PubKeyHex: pk.String(), Balance: 1000},
		},
		InitialValidators: []ValidatorEntry{
			{PubKeyHex: pk.String(), Stake: 100},
		},
		Config: GenesisConfig{BlockTimeMs: 2000, GasLimit: 1_000_000, BaseFee: 1000},
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "genesis.yaml")
	require.NoError(t, WriteGenesis(path, g))

	loaded, err := LoadGenesis(path)
	require.NoError(t, err)
	require.Equal(t, g.ChainID, loaded.ChainID)

	h1, err := g.Hash()
	require.NoError(t, err)
	h2, err := loaded.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestGenesisHashOrderIndependent(t *testing.T) {
	pkA, _ := crypto.GenerateKey(nil)
	pkB, _ := crypto.GenerateKey(nil)

	g1 := &Genesis{
		InitialAccounts: []AccountEntry{
			{PubKeyHex: pkA.String(), Balance: 1},
			{PubKeyHex: pkB.String(), Balance: 2},
		},
	}
	g2 := &Genesis{
		InitialAccounts: []AccountEntry{
			{PubKeyHex: pkB.String(), Balance: 2},
			{PubKeyHex: pkA.String(), Balance: 1},
		},
	}
	h1, err := g1.Hash()
	require.NoError(t, err)
	h2, err := g2.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestNodeConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /tmp/x\nlisten_addr: 127.0.0.1:1\nlog_level: debug\n"), 0o644))

	t.Setenv("CC_LOG_LEVEL", "warn")
	t.Setenv("CC_DATA_DIR", "/override")
	t.Setenv("CC_LISTEN_ADDR", "")

	cfg, err := LoadNodeConfig(path)
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, "/override", cfg.DataDir)
	require.Equal(t, "127.0.0.1:1", cfg.ListenAddr) // empty override left the file's value alone
}
