// Package cmd implements the command-line interface for the listing
// engine: the long-running service plus one-shot operator commands.
package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "listing-engine",
		Short: "Marketplace listing cache and revalidation engine",
		Long: `listing-engine keeps a cache of marketplace listings fresh.
It revalidates the stalest tracked models first under a time budget,
filters raw search results against per-model rules, and archives
listings that disappear or stop matching.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env file early so environment variables are available.
	_ = godotenv.Load()

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml)",
	)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("listing-engine version %s\n", version)
		},
	})

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(revalidateCommand())
	rootCmd.AddCommand(cleanupCommand())
}
