package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/adverant/nexus/supplylist-worker/internal/config"
	"github.com/adverant/nexus/supplylist-worker/internal/logging"
)

var (
	cfgFile      string
	logLevel     string
	outputFormat string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "supplylist-worker",
	Short: "Extract textbooks from scanned school supply lists",
	Long: `supplylist-worker reads scanned supply lists (PDF or images), runs OCR,
asks a generative model for the school, the school year and the textbooks of
every grade level, standardizes names against a reviewed knowledge base and
stores the result in PostgreSQL.

Without a subcommand it runs the queue worker.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		level := cfg.LogLevel
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		logging.SetLevel(level)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (yaml); environment variables override it",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: info or debug",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
}

// printOutput writes v in the selected output format
func printOutput(w io.Writer, v interface{}) error {
	switch strings.ToLower(outputFormat) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want yaml or json)", outputFormat)
	}
}
