package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"zugferd/internal/config"
	"zugferd/internal/logger"
)

var version = "1.0.0"

// cfg is set by Execute before any command runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "zugferd",
	Short: "ZUGFeRD Manager - prepare and check ZUGFeRD/Factur-X e-invoices",
	Long: `ZUGFeRD Manager keeps an address book of senders and recipients and a
product catalogue, turns invoice drafts into e-invoice documents and works
with the Mustang toolkit and Ghostscript to validate, visualize and combine
hybrid PDF/A-3 invoices.

Data is stored as JSON files in the data directory (DATA_DIR, or the user
configuration directory when unset).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command line with the loaded configuration.
func Execute(c *config.Config) {
	log := logger.WithComponent("cmd")
	cfg = c

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (default: DATA_DIR or the user config directory)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Timeout for external tools and Google services (default: TIMEOUT)")
}
