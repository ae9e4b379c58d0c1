package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pders01/feedpress/internal/config"
)

// Version is the version of the application, set at build time.
var Version = "dev"

var (
	configPath string
	permissive bool
)

func main() {
	root := &cobra.Command{
		Use:     "feedpress",
		Short:   "Poll web feeds and press new entries into EPUB files",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd)
		},
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	root.PersistentFlags().BoolVar(&permissive, "permissive", false, "allow feed URLs on loopback and private addresses")

	root.AddCommand(
		onceCmd(),
		searchCmd(),
		configCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "feedpress: %v\n", err)
		os.Exit(1)
	}
}

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single poll cycle and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd)
		},
	}
}

func searchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search ingested entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of results")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if path == "" {
				home, _ := os.UserHomeDir()
				path = filepath.Join(home, ".config", "feedpress", "config.toml")
			}
			if err := config.GenerateDefaultConfig(path); err != nil {
				return fmt.Errorf("generating config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default configuration to %s\n", path)
			return nil
		},
	})
	return cmd
}

func userAgent(cfg *config.Config) string {
	if cfg.HTTP.UserAgent != "" {
		return cfg.HTTP.UserAgent
	}
	return fmt.Sprintf("feedpress/%s (+https://github.com/pders01/feedpress)", Version)
}
