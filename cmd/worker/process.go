package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/supplylist-worker/internal/logging"
	"github.com/adverant/nexus/supplylist-worker/internal/processor"
)

var processSave bool

var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Run the pipeline on one local file and print the result",
	Long: `Process a single supply list synchronously and print the aggregated
document. Nothing is saved unless --save is given; the knowledge base is
still consulted and newly learned mappings are still recorded for review.

Examples:
  supplylist-worker process liste.pdf
  supplylist-worker process liste.pdf -o json --save`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := logging.NewLogger("Process")

		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		p, err := buildPipeline(ctx, cfg, !processSave)
		if err != nil {
			return err
		}
		defer p.Close()

		req := &processor.ProcessRequest{
			JobID:    fileIDForPath(path),
			FileID:   fileIDForPath(path),
			Filename: filepath.Base(path),
			MimeType: mimeTypeForPath(path),
			FilePath: path,
		}

		result, procErr := p.processor.ProcessDocument(ctx, req)
		if err := p.processor.RecordOutcome(ctx, req, result, procErr); err != nil {
			logger.Warn("Failed to record document outcome", "error", err)
		}
		if procErr != nil {
			return fmt.Errorf("processing %s failed: %w", args[0], procErr)
		}

		return printOutput(cmd.OutOrStdout(), result)
	},
}

func init() {
	processCmd.Flags().BoolVar(&processSave, "save", false, "persist the extracted entities")
	rootCmd.AddCommand(processCmd)
}
