// Command ccchaind is the CC Chain node binary: run starts a node,
// keygen produces a validator keypair, and genesis emits a genesis
// file for a new chain.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ccchain/ccchain/internal/adaptive"
	"github.com/ccchain/ccchain/internal/chain"
	"github.com/ccchain/ccchain/internal/config"
	"github.com/ccchain/ccchain/internal/consensus"
	"github.com/ccchain/ccchain/internal/logging"
	"github.com/ccchain/ccchain/internal/mempool"
	"github.com/ccchain/ccchain/internal/metrics"
	"github.com/ccchain/ccchain/internal/network"
	"github.com/ccchain/ccchain/internal/safety"
	"github.com/ccchain/ccchain/internal/state"
	"github.com/ccchain/ccchain/internal/store"
	"github.com/ccchain/ccchain/internal/wallet"
)

// Exit codes per the node binary's external contract.
const (
	exitOK                  = 0
	exitConfigError         = 1
	exitIOError             = 2
	exitConsensusDivergence = 3
)

func main() {
	root := &cobra.Command{
		Use:   "ccchaind",
		Short: "CC Chain node",
	}
	root.AddCommand(newRunCmd(), newKeygenCmd(), newGenesisCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
}

func newKeygenCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate a validator keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := wallet.Generate()
			if err != nil {
				os.Exit(exitIOError)
			}
			if err := kp.WriteFile(out); err != nil {
				os.Exit(exitIOError)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "public key: %x\n", kp.Public)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path for the keypair file")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newGenesisCmd() *cobra.Command {
	var out, accountsCSV, validatorsCSV string
	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "emit a genesis file",
		RunE: func(cmd *cobra.Command, args []string) error {
			accounts, err := parseEntriesCSV(accountsCSV)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(exitConfigError)
			}
			validators, err := parseEntriesCSV(validatorsCSV)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(exitConfigError)
			}

			g := &config.Genesis{
				ChainID:     "ccchain-" + strconv.FormatInt(time.Now().Unix(), 10),
				GenesisTime: 0,
				Config:      config.GenesisConfig{BlockTimeMs: 1000, GasLimit: 10_000_000, BaseFee: 1000},
			}
			for pk, v := range accounts {
				g.InitialAccounts = append(g.InitialAccounts, config.AccountEntry{PubKeyHex: pk, Balance: v})
			}
			for pk, v := range validators {
				g.InitialValidators = append(g.InitialValidators, config.ValidatorEntry{PubKeyHex: pk, Stake: v})
			}
			if err := config.WriteGenesis(out, g); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(exitIOError)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path for the genesis file")
	cmd.Flags().StringVar(&accountsCSV, "accounts", "", "comma-separated pubkey_hex:balance pairs")
	cmd.Flags().StringVar(&validatorsCSV, "validators", "", "comma-separated pubkey_hex:stake pairs")
	cmd.MarkFlagRequired("out")
	return cmd
}

// parseEntriesCSV parses "pubkeyhex:value,pubkeyhex:value" into a map.
func parseEntriesCSV(csv string) (map[string]uint64, error) {
	out := make(map[string]uint64)
	if csv == "" {
		return out, nil
	}
	for _, pair := range strings.Split(csv, ",") {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed entry %q, want pubkey_hex:value", pair)
		}
		v, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed value in entry %q: %w", pair, err)
		}
		out[parts[0]] = v
	}
	return out, nil
}

func newRunCmd() *cobra.Command {
	var configPath, dataDir string
	var isValidator bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "start the node",
		RunE: func(cmd *cobra.Command, args []string) error {
			os.Exit(runNode(configPath, dataDir, isValidator))
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to node config file")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "override the config's data directory")
	cmd.Flags().BoolVar(&isValidator, "validator", false, "participate in consensus as a validator")
	cmd.MarkFlagRequired("config")
	cmd.MarkFlagRequired("data-dir")
	return cmd
}

// runNode wires every component together and blocks until a shutdown
// signal or a fatal error; it returns the process exit code rather
// than calling os.Exit itself, so it stays testable.
func runNode(configPath, dataDir string, isValidator bool) int {
	nodeCfg, err := config.LoadNodeConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	if dataDir != "" {
		nodeCfg.DataDir = dataDir
	}

	log, err := logging.New(nodeCfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}
	defer log.Sync() //nolint:errcheck

	genesisCfg, err := config.LoadGenesis(nodeCfg.GenesisPath)
	if err != nil {
		log.Error("load genesis", zap.Error(err))
		return exitConfigError
	}
	initialAccounts, err := genesisCfg.Accounts()
	if err != nil {
		log.Error("parse genesis accounts", zap.Error(err))
		return exitConfigError
	}
	initialValidators, err := genesisCfg.Validators()
	if err != nil {
		log.Error("parse genesis validators", zap.Error(err))
		return exitConfigError
	}

	db, err := store.Open(nodeCfg.DataDir + "/db")
	if err != nil {
		log.Error("open persisted store", zap.Error(err))
		return exitIOError
	}
	defer db.Close()

	c := chain.NewChain()
	st := state.New()

	if head, ok, err := db.Head(); err != nil {
		log.Error("read persisted head", zap.Error(err))
		return exitIOError
	} else if ok {
		log.Info("resuming from persisted state", zap.String("head", head.String()))
		if err := db.RebuildChain(c); err != nil {
			log.Error("rebuild chain from persisted blocks", zap.Error(err))
			return exitIOError
		}
		accounts, err := db.LoadAccounts()
		if err != nil {
			log.Error("load persisted accounts", zap.Error(err))
			return exitIOError
		}
		for pk, acct := range accounts {
			st.SetAccount(pk, acct, int64(acct.Balance))
		}
		for pk, stake := range initialValidators {
			st.AddValidator(pk, stake)
		}
	} else {
		log.Info("no persisted state, initializing genesis")
		accountRecords := make(map[chain.PubKey]chain.Account, len(initialAccounts))
		for pk, balance := range initialAccounts {
			acct := chain.Account{Balance: balance}
			st.SetAccount(pk, acct, int64(balance))
			accountRecords[pk] = acct
		}
		for pk, stake := range initialValidators {
			st.AddValidator(pk, stake)
		}
		genesisBlock := chain.NewGenesisBlock(st.ComputeStateRoot(), genesisCfg.GenesisTime)
		if err := c.InitGenesis(genesisBlock); err != nil {
			log.Error("init genesis", zap.Error(err))
			return exitConfigError
		}
		if err := db.CommitGenesis(genesisBlock, accountRecords, st.TotalSupply()); err != nil {
			log.Error("persist genesis", zap.Error(err))
			return exitIOError
		}
	}

	pool := mempool.New(mempool.Config{MinFeePerByte: 0, MaxBytes: 64 << 20}, st)

	var selfKP wallet.KeyPair
	if isValidator {
		selfKP, err = wallet.Generate()
		if err != nil {
			log.Error("generate validator identity", zap.Error(err))
			return exitIOError
		}
	}

	safetyMon := safety.New(log, nil)
	perf := adaptive.NewPerformanceMonitor()
	controller := adaptive.NewController(adaptive.Params{
		BlockTimeTarget: time.Duration(genesisCfg.Config.BlockTimeMs) * time.Millisecond,
		GasLimit:        genesisCfg.Config.GasLimit,
		BaseFee:         genesisCfg.Config.BaseFee,
	})

	transport := network.New(network.Config{SelfID: selfKP.Public, ListenAddr: nodeCfg.ListenAddr}, log, c, pool, nil)

	engine := consensus.New(
		consensus.Config{
			SelfKey:        selfKP.Public,
			SelfPriv:       selfKP.Private,
			GasLimit:       controller.Params().GasLimit,
			MaxTxsPerBlock: 5000,
			BaseTimeout:    2 * time.Second,
		},
		log, c, st, pool, transport, safetyMon, consensus.NewValidatorSet(initialValidators),
	)
	transport.SetConsensusReceiver(engine)

	reg := metrics.New(prometheus.DefaultRegisterer, perf, pool)

	if err := transport.Listen(); err != nil {
		log.Error("listen", zap.Error(err))
		return exitIOError
	}
	transport.Start(5 * time.Minute)
	for _, addr := range nodeCfg.SeedPeers {
		if err := transport.Connect(addr); err != nil {
			log.Warn("connect to seed peer", zap.String("addr", addr), zap.Error(err))
		}
	}
	engine.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	alertStop := make(chan struct{})
	go reg.WatchAlerts(safetyMon, alertStop)

	log.Info("node started", zap.String("listen_addr", nodeCfg.ListenAddr), zap.Bool("validator", isValidator))

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			safetyMon.CheckUnresponsive(time.Now())
			reg.Refresh(controller.Adjust(perf))
			transport.CleanupPeers(5 * time.Minute)
		}
	}

	log.Info("shutting down")
	close(alertStop)
	engine.Stop()
	transport.Stop()
	return exitOK
}
