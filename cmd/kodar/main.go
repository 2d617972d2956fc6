// Command kodar clusters an author/publication dataset, labels every cluster
// and exports the named clusters as CSV, JSON and N-Triples.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cognicore/kodar/pkg/kodar"
	"github.com/cognicore/kodar/pkg/kodar/config"
)

var (
	configPath string
	home       string
	clusters   int
	evaluate   bool
	mode       string
	backend    string
	verbose    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "kodar [flags] <dataset.csv>",
	Short: "Cluster, label and export a publication dataset",
	Long: `Splits the dataset into record streams, vectorizes titles and keywords,
runs k-means and fuzzy k-means, then joins, labels and exports every cluster
under <home>/result. With --evaluate the run stops after clustering and prints
the inter-cluster density of both partitions.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "configs/kodar.yaml", "configuration file (missing file means defaults)")
	rootCmd.Flags().StringVar(&home, "home", "", "working root (overrides config; KODAR_HOME wins over both)")
	rootCmd.Flags().IntVarP(&clusters, "clusters", "k", 0, "number of k-means clusters (default from config, 16)")
	rootCmd.Flags().BoolVar(&evaluate, "evaluate", false, "stop after clustering and report inter-cluster density")
	rootCmd.Flags().StringVar(&mode, "mode", "", "labeling mode: topic-model or semantic-fingerprint")
	rootCmd.Flags().StringVar(&backend, "store", "", "record store: seqfile, sqlite, memory or yt")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	c, err := kodar.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.Run(ctx, args[0], cfg.Engine.Clusters)
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		return err
	}

	out := cmd.OutOrStdout()
	if res.Density != nil {
		fmt.Fprintf(out, "kmeans inter-cluster density:  %.6f\n", res.Density.Hard)
		fmt.Fprintf(out, "fkmeans inter-cluster density: %.6f\n", res.Density.Fuzzy)
		return nil
	}
	fmt.Fprintf(out, "run %s: %d rows, %d named clusters, %d documents exported to %s/result\n",
		res.RunID, res.Rows, res.Export.Clusters, res.Export.Documents, c.Home())
	return nil
}

// loadConfig reads the config file and lays the command-line overrides on top.
func loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("home") {
		cfg.Home = home
	}
	if flags.Changed("clusters") {
		cfg.Engine.Clusters = clusters
	}
	if flags.Changed("evaluate") {
		cfg.Engine.Evaluate = evaluate
	}
	if flags.Changed("mode") {
		cfg.Labeling.Mode = mode
	}
	if flags.Changed("store") {
		cfg.Store.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
