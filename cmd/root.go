package cmd

import (
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dannyjpn/photostock/internal/mediastore"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "photostock",
		Short: "Stock photography cataloguing and submission pipeline",
		Long: `Photostock manages a personal media catalogue: it generates AI metadata
in batches, derives effect variants from confirmed originals, exports
per-photobank submission files and uploads prepared media over FTP,
FTPS and SFTP.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			if verbose {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newBatchCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newSnapshotCmd())

	return cmd
}

// bankFlags registers one boolean flag per photobank and returns a
// resolver for the selected set. No bank flag set means every bank.
func bankFlags(cmd *cobra.Command) func() []string {
	selected := make(map[string]*bool, len(mediastore.Photobanks))
	for _, bank := range mediastore.Photobanks {
		selected[bank] = cmd.Flags().Bool(strings.ToLower(bank), false, "Limit to "+bank)
	}
	return func() []string {
		var banks []string
		for _, bank := range mediastore.Photobanks {
			if *selected[bank] {
				banks = append(banks, bank)
			}
		}
		if len(banks) == 0 {
			return append([]string(nil), mediastore.Photobanks...)
		}
		return banks
	}
}
