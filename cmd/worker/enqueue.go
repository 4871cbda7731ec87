package main

import (
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/supplylist-worker/internal/logging"
	"github.com/adverant/nexus/supplylist-worker/internal/ocr"
	"github.com/adverant/nexus/supplylist-worker/internal/queue"
	"github.com/adverant/nexus/supplylist-worker/internal/storage"
)

var (
	enqueueForce    bool
	enqueueMaxRetry int
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <file|dir>...",
	Short: "Submit local supply lists as jobs",
	Long: `Walk the given files and directories and enqueue every PDF or image.
Files whose log already says PROCESSED are skipped unless --force is set.

Examples:
  supplylist-worker enqueue ./scans
  supplylist-worker enqueue liste-cm2.pdf liste-6e.jpg --force`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := logging.NewLogger("Enqueue")

		files, err := collectFiles(args)
		if err != nil {
			return err
		}

		processed := map[string]bool{}
		if !enqueueForce {
			pg, err := storage.NewPostgresClient(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			processed, err = pg.ProcessedFileIDs(ctx)
			pg.Close()
			if err != nil {
				return err
			}
		}

		enqueuer, err := queue.NewEnqueuer(&queue.EnqueuerConfig{
			RedisURL:  cfg.RedisURL,
			QueueName: cfg.QueueName,
			MaxRetry:  enqueueMaxRetry,
			Timeout:   cfg.ProcessingTimeout,
		})
		if err != nil {
			return err
		}
		defer enqueuer.Close()

		var queued, skipped int
		for _, path := range files {
			fileID := fileIDForPath(path)
			if processed[fileID] {
				skipped++
				logger.Debug("Skipping processed file", "path", path, "fileId", fileID)
				continue
			}

			info, err := enqueuer.Enqueue(ctx, &queue.JobPayload{
				FileID:   fileID,
				Filename: filepath.Base(path),
				MimeType: mimeTypeForPath(path),
				FilePath: path,
			})
			if err != nil {
				return err
			}
			queued++
			logger.Info("Enqueued", "path", path, "jobId", info.ID, "queue", info.Queue)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d file(s) enqueued, %d already processed\n", queued, skipped)
		return nil
	},
}

func init() {
	enqueueCmd.Flags().BoolVar(&enqueueForce, "force", false, "enqueue files even when already processed")
	enqueueCmd.Flags().IntVar(&enqueueMaxRetry, "max-retry", 3, "asynq retries per job")
	rootCmd.AddCommand(enqueueCmd)
}

// collectFiles expands directories into the supported files they contain
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, abs)
			continue
		}
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != abs && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if ocr.SupportedMimeTypes[mimeTypeForPath(path)] {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", arg, err)
		}
	}
	return files, nil
}

// fileIDForPath is stable across runs so the document log can dedupe work
func fileIDForPath(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(path))).String()
}

func mimeTypeForPath(path string) string {
	return ocr.ResolveMimeType(mime.TypeByExtension(strings.ToLower(filepath.Ext(path))), nil)
}
