// zytherion runs a single ledger node: it produces blocks with proof of work,
// has the staked committee vote on them and applies finalized blocks to the
// account ledger.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/colorfulnotion/zytherion/chainspecs"
	"github.com/colorfulnotion/zytherion/common"
	"github.com/colorfulnotion/zytherion/console"
	log "github.com/colorfulnotion/zytherion/log"
	"github.com/colorfulnotion/zytherion/node"
	"github.com/colorfulnotion/zytherion/pow"
	"github.com/colorfulnotion/zytherion/statedb"
	"github.com/colorfulnotion/zytherion/storage"
	"github.com/colorfulnotion/zytherion/telemetry"
	"github.com/colorfulnotion/zytherion/types"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

var (
	chainSpec         string
	logLevel          string
	debug             string
	telemetryEndpoint string
)

func version() string {
	commit := Commit
	if commit == "none" {
		commit = common.GetCommitHash()
	}
	return fmt.Sprintf("%s (commit %s, built %s)", Version, commit, BuildTime)
}

func main() {
	var rootCmd = &cobra.Command{
		Use:     "zytherion",
		Short:   "Proof-of-work ledger with stake-weighted finality",
		Version: version(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := log.InitLogger(logLevel); err != nil {
				return err
			}
			log.EnableModules(debug)
			return nil
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&chainSpec, "chain", "dev", "chain spec id or path to a chain spec JSON file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "trace, debug, info, warn, error or crit")
	rootCmd.PersistentFlags().StringVar(&debug, "debug", "", "comma separated modules to trace (pow_mod,stake_mod,...) or all")
	rootCmd.PersistentFlags().StringVar(&telemetryEndpoint, "telemetry", "", "OTLP/HTTP endpoint (host:port) for traces")

	rootCmd.AddCommand(keygenCmd(), mineCmd(), simulateCmd(), accountsCmd(), genspecCmd(), consoleCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func keygenCmd() *cobra.Command {
	var seedHex, label string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key pair and its ledger address",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				kp  *common.KeyPair
				err error
			)
			switch {
			case seedHex != "" && label != "":
				seed, derr := hexutil.Decode(seedHex)
				if derr != nil {
					return fmt.Errorf("seed: %w", derr)
				}
				kp, err = common.DeriveKeyPair(label, seed)
			case seedHex != "":
				seed, derr := hexutil.Decode(seedHex)
				if derr != nil {
					return fmt.Errorf("seed: %w", derr)
				}
				kp, err = common.KeyPairFromSeed(seed)
			default:
				kp, err = common.GenerateKeyPair()
			}
			if err != nil {
				return err
			}
			out := map[string]string{
				"seed":       hexutil.Encode(kp.Seed()),
				"public_key": hexutil.Encode(kp.PublicKey()),
				"address":    kp.Address().String(),
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&seedHex, "seed", "", "0x-prefixed seed; 32 bytes unless --label is set")
	cmd.Flags().StringVar(&label, "label", "", "derive the key from blake2b(label || seed)")
	return cmd
}

func mineCmd() *cobra.Command {
	var (
		difficulty uint64
		maxNonce   uint64
		policyName string
		txCount    int
		showTree   bool
	)
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Mine a single block of demo transfers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			shutdown, err := telemetry.InitTracer(ctx, telemetryEndpoint, "zytherion-miner")
			if err != nil {
				return err
			}
			defer shutdown(context.Background())

			policy, err := pow.ParsePolicy(policyName)
			if err != nil {
				return err
			}
			txs := demoTransfers(txCount, 0)
			block := types.NewBlock(common.Hash{}, txs, difficulty, 1)
			miner := pow.NewMiner(pow.WithPolicy(policy), pow.WithMaxNonce(maxNonce))
			mined, found, err := miner.Mine(ctx, block, difficulty)
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("no nonce below %d meets difficulty %d (%s)\n", maxNonce, difficulty, policy.Name())
				return nil
			}
			fmt.Println(mined.String())
			if showTree {
				fmt.Println(mined.MerkleTree().Print())
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&difficulty, "difficulty", 3, "mining difficulty")
	cmd.Flags().Uint64Var(&maxNonce, "max-nonce", 0, "nonce search bound, 0 for unbounded")
	cmd.Flags().StringVar(&policyName, "policy", pow.PolicyHexPrefix, "target policy: hex-prefix, legacy-prefix or numeric")
	cmd.Flags().IntVar(&txCount, "txs", 4, "number of demo transfers in the block")
	cmd.Flags().BoolVar(&showTree, "tree", false, "print the transaction merkle tree")
	return cmd
}

func simulateCmd() *cobra.Command {
	var (
		blocks   int
		txCount  int
		dataPath string
		external float32
		seed     uint64
		chart    string
		wsAddr   string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the produce, vote, finalize pipeline for a number of blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			shutdown, err := telemetry.InitTracer(ctx, telemetryEndpoint, "zytherion")
			if err != nil {
				return err
			}
			defer shutdown(context.Background())

			spec, err := chainspecs.ReadSpec(chainSpec)
			if err != nil {
				return fmt.Errorf("failed to read chain spec %s: %w", chainSpec, err)
			}
			opts := []node.Option{node.WithSeed(seed)}
			if dataPath != "" {
				ps, err := storage.NewPersistenceStore(dataPath)
				if err != nil {
					return err
				}
				opts = append(opts, node.WithStore(ps))
			}
			if cmd.Flags().Changed("external") {
				opts = append(opts, node.WithTrustScorer(node.StaticTrustScorer(external)))
			}
			if wsAddr != "" {
				hub := node.NewHub(ctx)
				opts = append(opts, node.WithEventHub(hub))
				go func() {
					if err := node.ServeEvents(ctx, wsAddr, hub); err != nil {
						log.Error(log.NodeMonitoring, "event server stopped", "err", err)
					}
				}()
			}
			n, err := node.NewNode(spec, opts...)
			if err != nil {
				return err
			}
			defer n.Close()

			before := n.State().Snapshot()
			nonce := uint64(0)
			for i := 0; i < blocks; i++ {
				txs := demoTransfers(txCount, nonce)
				block, found, err := n.ProduceBlock(ctx, txs)
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("block %d: nonce space exhausted at difficulty %d", i+1, n.Difficulty())
				}
				votes, err := n.CollectVotes(ctx, block.Hash)
				if err != nil {
					return err
				}
				final, score, err := n.FinalizeBlock(ctx, block.Hash)
				if err != nil {
					fmt.Printf("block %d %s not finalized (score %.3f, %d votes): %v\n", block.Header.Height, block.Hash.Short(), score, len(votes), err)
					continue
				}
				nonce += uint64(len(txs))
				fmt.Printf("block %d %s nonce=%d votes=%d score=%.3f supply=%d\n",
					final.Header.Height, final.Hash.Short(), final.Header.Nonce, len(votes), score, n.State().GetTotalSupply())
			}
			diff, err := statedb.DiffSnapshots(before, n.State().Snapshot())
			if err != nil {
				return err
			}
			fmt.Println(diff)
			if chart != "" {
				f, err := os.Create(chart)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := n.RenderChain(f); err != nil {
					return err
				}
				fmt.Printf("chain chart written to %s\n", chart)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&blocks, "blocks", 3, "number of blocks to produce")
	cmd.Flags().IntVar(&txCount, "txs", 2, "demo transfers per block")
	cmd.Flags().StringVar(&dataPath, "data", "", "LevelDB directory for blocks; in memory when empty")
	cmd.Flags().Float32Var(&external, "external", 0.5, "external trust score for every block")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "committee selection seed")
	cmd.Flags().StringVar(&chart, "chart", "", "write an HTML chart of the finalized chain to this file")
	cmd.Flags().StringVar(&wsAddr, "ws", "", "serve block events over websocket at host:port/ws")
	return cmd
}

func consoleCmd() *cobra.Command {
	var (
		history string
		seed    uint64
	)
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Start a JavaScript console over an in-memory node",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			spec, err := chainspecs.ReadSpec(chainSpec)
			if err != nil {
				return fmt.Errorf("failed to read chain spec %s: %w", chainSpec, err)
			}
			n, err := node.NewNode(spec, node.WithSeed(seed))
			if err != nil {
				return err
			}
			defer n.Close()
			return console.New(ctx, n, os.Stdout).Run(history)
		},
	}
	cmd.Flags().StringVar(&history, "history", "/tmp/zytherion_console_history.txt", "readline history file")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "committee selection seed")
	return cmd
}

func accountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the genesis ledger and stakers of the chain spec",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := chainspecs.ReadSpec(chainSpec)
			if err != nil {
				return err
			}
			n, err := node.NewNode(spec)
			if err != nil {
				return err
			}
			defer n.Close()
			return printJSON(map[string]interface{}{
				"accounts":     n.State().GetAllAccounts(),
				"stakers":      n.Registry().Stakers(),
				"total_supply": n.State().GetTotalSupply(),
				"total_stake":  n.Registry().TotalStake(),
			})
		},
	}
}

func genspecCmd() *cobra.Command {
	var dev chainspecs.DevConfig
	cmd := &cobra.Command{
		Use:   "genspec",
		Short: "Generate a development chain spec",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := chainspecs.GenSpec(dev)
			if err != nil {
				return err
			}
			return printJSON(spec)
		},
	}
	cmd.Flags().StringVar(&dev.ID, "id", "local", "chain id")
	cmd.Flags().IntVar(&dev.Validators, "validators", 4, "number of genesis validators")
	cmd.Flags().Uint64Var(&dev.Balance, "balance", 100_000, "genesis balance per validator")
	cmd.Flags().Uint64Var(&dev.Stake, "stake", 10_000, "bonded stake per validator")
	return cmd
}

// demoTransfers moves funds from the genesis account to the demo user.
func demoTransfers(count int, firstNonce uint64) []types.Transaction {
	txs := make([]types.Transaction, 0, count)
	for i := 0; i < count; i++ {
		tx := types.NewTransaction(statedb.GenesisAddress, statedb.UserAddress, 100, 1, firstNonce+uint64(i))
		txs = append(txs, *tx)
	}
	return txs
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
