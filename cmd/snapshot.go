package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dannyjpn/photostock/internal/mediastore"
)

func newSnapshotCmd() *cobra.Command {
	var (
		csvPath string
		out     string
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Write a Parquet snapshot of the catalogue",
		Long: `Flattens the catalogue into one row per record and bank and writes it
as a Parquet file for offline analysis of status distributions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := mediastore.Load(csvPath)
			if err != nil {
				return err
			}
			rows, err := mediastore.WriteSnapshot(out, store)
			if err != nil {
				return err
			}
			slog.Info("snapshot written", "path", out, "rows", rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&csvPath, "csv", "PhotoMediaList.csv", "Catalogue CSV file")
	cmd.Flags().StringVar(&out, "out", "PhotoMediaList.parquet", "Snapshot output path")

	return cmd
}
