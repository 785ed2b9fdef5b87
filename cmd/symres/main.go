// Package main provides the symres command-line tool: offline address
// resolution and module inspection backed by the same engines the library
// uses in-process.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/symres/internal/config"
	"github.com/coral-mesh/symres/internal/logging"
	"github.com/coral-mesh/symres/pkg/version"
)

var (
	flagConfig   string
	flagLogLevel string

	cfg    config.Config
	logger zerolog.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "symres",
		Short:         "symres - address-to-source resolution for instrumentation tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(flagConfig)
			if err != nil {
				return err
			}
			if flagLogLevel != "" {
				cfg.Log.Level = flagLogLevel
			}
			logger = logging.New(logging.Config{
				Level:  cfg.Log.Level,
				Pretty: cfg.Log.Pretty,
			})
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newModulesCmd())
	rootCmd.AddCommand(newDemangleCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.String())
		},
	}
}
