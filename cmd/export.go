package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dannyjpn/photostock/internal/export"
	"github.com/dannyjpn/photostock/internal/mediastore"
	"github.com/dannyjpn/photostock/internal/upload"
)

func newExportCmd() *cobra.Command {
	var (
		csvPath             string
		outputDir           string
		prefix              string
		formatsPath         string
		categoryDir         string
		includeAlternatives bool
		generateFormats     bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write per-photobank submission files from prepared records",
		Long: `Projects every prepared catalogue record through each photobank's
column map and writes one submission file per bank. Format overrides
can be supplied as a YAML file; per-bank category CSVs map free-text
categories and keywords to the identifiers the bank expects.`,
		Example: `  # Export every bank next to the catalogue
  photostock export --csv PhotoMediaList.csv --output-dir exports

  # Only two banks, with derived variants included
  photostock export --csv PhotoMediaList.csv --output-dir exports \
    --shutterstock --adobestock --include-alternatives`,
	}
	selectedBanks := bankFlags(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		store, err := mediastore.Load(csvPath)
		if err != nil {
			return err
		}
		formats, prices, err := export.LoadFormats(formatsPath)
		if err != nil {
			return err
		}
		maps, err := export.LoadCategoryMaps(categoryDir)
		if err != nil {
			return err
		}

		exporter := export.NewExporter(formats, maps, prices, slog.Default())
		exporter.Extensions = func(bank string) []string {
			cfg, err := upload.Config(bank)
			if err != nil {
				return nil
			}
			return cfg.SupportedFormats
		}
		results, err := exporter.Run(store, export.Options{
			OutputDir:           outputDir,
			Prefix:              prefix,
			Banks:               selectedBanks(),
			IncludeAlternatives: includeAlternatives,
			GenerateFormats:     generateFormats,
		})
		if err != nil {
			return err
		}

		for bank, res := range results {
			slog.Info("bank file written",
				"bank", bank, "path", res.Path, "exported", res.Exported, "skipped", res.Skipped)
		}
		return nil
	}

	cmd.Flags().StringVar(&csvPath, "csv", "PhotoMediaList.csv", "Catalogue CSV file")
	cmd.Flags().StringVar(&outputDir, "output-dir", ".", "Directory for the bank files")
	cmd.Flags().StringVar(&prefix, "prefix", export.DefaultPrefix, "Filename prefix of the bank files")
	cmd.Flags().StringVar(&formatsPath, "formats", "", "YAML file with per-bank format overrides")
	cmd.Flags().StringVar(&categoryDir, "category-dir", "", "Directory with per-bank category CSV files (<Bank>_categories.csv)")
	cmd.Flags().BoolVar(&includeAlternatives, "include-alternatives", false, "Also export derived variants and format conversions present on disk")
	cmd.Flags().BoolVar(&generateFormats, "generate-formats", false, "Convert originals into missing bank-supported image formats before exporting")

	return cmd
}
