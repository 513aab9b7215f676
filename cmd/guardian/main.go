package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"helmhud/internal/config"
	"helmhud/internal/engine"
	"helmhud/internal/store"
)

const version = "1.0.0"

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "guardian",
	Short: "helmhud guardian - emoji chain lifecycle and influence engine",
	Long: `guardian runs the vault progression core: it detects emoji chains,
promotes pending chains into registered patterns, keeps the influence
ledger, and drives role progression and training quests.

The engine speaks in typed results; a platform collaborator renders them
and performs all chat I/O.`,
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
}

// serveCmd runs the engine loops until interrupted.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the guardian engine",
	Long: `Loads the persisted snapshot, then runs the pending-queue sweep and
periodic persistence loops until interrupted. When a quest catalog file is
configured it is watched and hot-reloaded on change.`,
	RunE: runServe,
}

// statsCmd prints headline counts from the store.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print engine state counts",
	RunE:  runStats,
}

// versionCmd prints the version.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the guardian version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("guardian %s\n", version)
	},
}

func buildEngine() (*engine.Engine, *store.Store, *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	st, err := store.Open(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	eng, err := engine.New(cfg, st, logger)
	if err != nil {
		st.Close()
		return nil, nil, nil, err
	}
	return eng, st, cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	eng, st, cfg, err := buildEngine()
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.Training.QuestFile != "" {
		if err := eng.ReloadQuests(cfg.Training.QuestFile); err != nil {
			logger.Warn("initial quest catalog load failed", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(ctx)
	})
	if cfg.Training.QuestFile != "" {
		g.Go(func() error {
			return eng.WatchQuests(ctx, cfg.Training.QuestFile)
		})
	}

	logger.Info("guardian serving",
		zap.String("db", cfg.Storage.DatabasePath),
		zap.String("quest_file", cfg.Training.QuestFile))

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	logger.Info("guardian stopped")
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	eng, st, _, err := buildEngine()
	if err != nil {
		return err
	}
	defer st.Close()

	s := eng.Stats()
	fmt.Printf("profiles:     %d\n", s.Profiles)
	fmt.Printf("patterns:     %d\n", s.Patterns)
	fmt.Printf("pending:      %d\n", s.Pending)
	fmt.Printf("blessings:    %d\n", s.Blessings)
	fmt.Printf("flags:        %d\n", s.Flags)
	fmt.Printf("custom lore:  %d\n", s.CustomLore)
	fmt.Printf("alignment:    %s\n", s.Alignment)
	return nil
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "guardian.yaml", "path to config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
