package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dannyjpn/photostock/internal/aiprov"
	"github.com/dannyjpn/photostock/internal/batch"
	"github.com/dannyjpn/photostock/internal/mediastore"
	"github.com/dannyjpn/photostock/internal/orchestrator"
)

func newBatchCmd() *cobra.Command {
	var (
		csvPath      string
		batchDir     string
		batchSize    int
		collectLimit int
		dailyLimit   int
		providerName string
		model        string
		wait         time.Duration
		pollInterval time.Duration
		cancelID     string
	)

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Generate AI metadata for unprocessed catalogue records",
		Long: `Walks unprocessed catalogue records, asks for a short description of
each, and submits them to the AI provider in batches. Finished jobs are
written back into the catalogue and effect variants are derived from
every confirmed original.`,
		Example: `  # Review and process with the defaults
  photostock batch --csv PhotoMediaList.csv

  # Keep polling for two hours with small batches
  photostock batch --csv PhotoMediaList.csv --batch-size 5 --wait 2h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := mediastore.Load(csvPath)
			if err != nil {
				return err
			}
			if batchDir == "" {
				batchDir = filepath.Join(filepath.Dir(csvPath), "batches")
			}
			registry, err := batch.OpenRegistry(filepath.Join(batchDir, "registry.json"))
			if err != nil {
				return err
			}

			var provider aiprov.Provider
			switch providerName {
			case "openai":
				provider = aiprov.NewOpenAI(model)
			case "gemini":
				provider = aiprov.NewGemini(model)
			default:
				return fmt.Errorf("unknown provider %q (openai or gemini)", providerName)
			}

			o := orchestrator.New(store, registry, provider, newTerminalPrompter(), orchestrator.Config{
				BatchDir:           batchDir,
				CollectLimit:       collectLimit,
				OriginalsBatchSize: batchSize,
				DailyLimit:         dailyLimit,
				PollInterval:       pollInterval,
			}, slog.Default())

			if cancelID != "" {
				return o.CancelBatch(cmd.Context(), cancelID)
			}
			return o.Poll(cmd.Context(), wait)
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "PhotoMediaList.csv", "Catalogue CSV file")
	cmd.Flags().StringVar(&batchDir, "batch-dir", "", "Batch state directory (default: <csv dir>/batches)")
	cmd.Flags().IntVar(&batchSize, "batch-size", orchestrator.DefaultOriginalsBatchSize, "Files per originals batch")
	cmd.Flags().IntVar(&collectLimit, "collect-limit", 0, "Max records to review per cycle (0 = all)")
	cmd.Flags().IntVar(&dailyLimit, "daily-limit", orchestrator.DefaultDailyLimit, "Max batch jobs per UTC day")
	cmd.Flags().StringVar(&providerName, "provider", "openai", "AI provider (openai or gemini)")
	cmd.Flags().StringVar(&model, "model", "gpt-4o", "Model name")
	cmd.Flags().DurationVar(&wait, "wait", 0, "How long to keep polling (0 = until every batch finishes)")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", orchestrator.DefaultPollInterval, "Delay between polling cycles")
	cmd.Flags().StringVar(&cancelID, "cancel", "", "Cancel the given batch id and release its files instead of polling")

	return cmd
}
