package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/seoloop/internal/config"
	"github.com/steveyegge/seoloop/internal/storage"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	store  storage.Storage
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "seoloop",
	Short: "Autonomous SEO maintenance for static site repositories",
	Long: `seoloop keeps a set of site repositories in good search shape.

For each configured repository it syncs the working copy, profiles the
codebase, detects SEO defects, plans and applies fixes, commits and pushes
them, and records every change in a ledger. Once a change's measurement
window has passed, its effect on search clicks is attributed from Search
Console data.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		store, err = storage.NewStorage(context.Background(), &storage.Config{Path: cfg.DatabasePath})
		if err != nil {
			return fmt.Errorf("failed to open state database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			if err := store.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to close database: %v\n", err)
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "seoloop.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(1)
	}
}
