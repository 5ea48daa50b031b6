package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dannyjpn/photostock/internal/upload"
)

func newUploadCmd() *cobra.Command {
	var (
		mediaDir  string
		exportDir string
		prefix    string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Deliver prepared media files to the photobanks",
		Long: `Uploads every compatible file from the media directory to each
selected photobank over its native protocol (FTP, FTPS or SFTP). The
matching submission file from a prior export run must exist, otherwise
the bank is skipped with an error.

Credentials come from the environment as <BANK>_FTP_USERNAME and
<BANK>_FTP_PASSWORD.`,
		Example: `  # Upload everything that has an export file
  photostock upload --media-dir prepared --export-dir exports

  # Validate a single bank without touching the network
  photostock upload --media-dir prepared --export-dir exports --pond5 --dry-run`,
	}
	selectedBanks := bankFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		logger := slog.Default()
		uploader := upload.NewUploader(upload.NewManager(logger), logger)
		stats, err := uploader.Run(upload.Options{
			MediaDir:  mediaDir,
			ExportDir: exportDir,
			Prefix:    prefix,
			Banks:     selectedBanks(),
			DryRun:    dryRun,
		})

		failed := 0
		for bank, s := range stats {
			logger.Info("upload summary", "bank", bank, "success", s.Success,
				"failure", s.Failure, "skipped", s.Skipped, "errored", s.Errored,
				"discontinued", s.Discontinued)
			if s.Failed() {
				failed++
			}
		}
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("upload finished with failures for %d banks", failed)
		}
		return nil
	}

	cmd.Flags().StringVar(&mediaDir, "media-dir", ".", "Directory holding the prepared media files")
	cmd.Flags().StringVar(&exportDir, "export-dir", ".", "Directory holding the exported bank files")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Filename prefix of the bank files")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate and log without uploading")

	return cmd
}
