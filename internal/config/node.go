package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NodeConfig is the node binary's own configuration file — where to
// listen, where to persist data, how verbosely to log, and which seed
// peers to dial on startup.
type NodeConfig struct {
	DataDir     string   `yaml:"data_dir"`
	ListenAddr  string   `yaml:"listen_addr"`
	LogLevel    string   `yaml:"log_level"`
	SeedPeers   []string `yaml:"seed_peers"`
	GenesisPath string   `yaml:"genesis_path"`
}

// Default values used when a field is present in neither the config
// file nor the environment.
const (
	DefaultListenAddr = "0.0.0.0:26656"
	DefaultLogLevel   = "info"
	DefaultDataDir    = "./data"
)

// LoadNodeConfig reads path as YAML, then applies CC_LOG_LEVEL,
// CC_DATA_DIR, and CC_LISTEN_ADDR environment overrides, per §6.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read node config: %w", err)
	}
	cfg := &NodeConfig{
		DataDir:    DefaultDataDir,
		ListenAddr: DefaultListenAddr,
		LogLevel:   DefaultLogLevel,
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse node config: %w", err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *NodeConfig) applyEnvOverrides() {
	if v := os.Getenv("CC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("CC_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CC_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
}
