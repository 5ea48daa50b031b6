package export

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dannyjpn/photostock/internal/alternatives"
	"github.com/dannyjpn/photostock/internal/mediastore"
)

// DefaultPrefix is the filename prefix of generated bank files.
const DefaultPrefix = "PhotoMedia"

// Synthetic sibling formats emitted alongside every JPEG row. The files
// do not have to exist; the bank matches them up at ingest time.
var (
	dreamstimeSiblings = []string{".png", ".raw", ".nef", ".dng"}
	pond5Siblings      = []string{".png", ".tif"}
)

// Options configures one export run.
type Options struct {
	OutputDir string
	Prefix    string
	Banks     []string
	// IncludeAlternatives also exports derived effect variants and
	// format-conversion siblings that exist on disk next to the original.
	IncludeAlternatives bool
	// GenerateFormats converts the original into bank-supported image
	// formats that are still missing on disk before including them.
	GenerateFormats bool
}

// BankResult tallies one bank's output file.
type BankResult struct {
	Path     string
	Exported int
	Skipped  int
}

// ExtensionsFunc resolves the file extensions a bank accepts. Alternative
// expansion only considers conversions the bank can actually ingest.
type ExtensionsFunc func(bank string) []string

// Exporter writes per-bank submission files from prepared catalogue
// records.
type Exporter struct {
	Formats map[string]Format
	Maps    CategoryMaps
	Prices  PriceTable
	Logger  *slog.Logger
	// Extensions supplies each bank's supported-extension set. Nil
	// disables format-sibling expansion.
	Extensions ExtensionsFunc

	convert func(srcPath, ext string) (string, error)
}

// NewExporter builds an exporter over the given formats, category
// vocabularies and prices.
func NewExporter(formats map[string]Format, maps CategoryMaps, prices PriceTable, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		Formats: formats,
		Maps:    maps,
		Prices:  prices,
		Logger:  logger,
		convert: alternatives.ConvertFormat,
	}
}

// Projection is the outcome of projecting one record through a bank's
// column map. MissingSource is set when a required catalogue column was
// absent, which skips the record for that bank only.
type Projection struct {
	Fields        []string
	MissingSource string
}

// Skipped reports whether the projection produced no row.
func (p Projection) Skipped() bool {
	return p.MissingSource != ""
}

// ProjectRow resolves every rule of a bank column map against rec.
// Transform failures degrade to an empty field; a missing source skips
// the whole record.
func (e *Exporter) ProjectRow(rec *ExportRecord, bank string, rules []Rule) Projection {
	fields := make([]string, 0, len(rules))
	for _, rule := range rules {
		if rule.IsFixed {
			fields = append(fields, rule.Fixed)
			continue
		}
		value, ok := rec.SourceValue(rule.Source)
		if !ok {
			return Projection{MissingSource: rule.Source}
		}
		if rule.Transform != nil {
			transformed, err := rule.Transform(value, rec)
			if err != nil {
				e.Logger.Warn("transform failed, writing empty value",
					"bank", bank, "column", rule.Target, "file", rec.Filename, "error", err)
				transformed = ""
			}
			value = transformed
		}
		fields = append(fields, value)
	}
	return Projection{Fields: fields}
}

// quoteField wraps every value in double quotes with embedded quotes
// doubled, so delimiters inside values never break the row.
func quoteField(v string) string {
	return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
}

func formatLine(fields []string, delimiter string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = quoteField(f)
	}
	return strings.Join(quoted, delimiter)
}

// OutputPath returns the bank file path for an export run.
func OutputPath(outputDir, prefix, bank string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return filepath.Join(outputDir, fmt.Sprintf("%s_%s.csv", prefix, bank))
}

// Run exports every record prepared for each requested bank and returns
// the per-bank tallies.
func (e *Exporter) Run(store *mediastore.Store, opts Options) (map[string]BankResult, error) {
	banks := opts.Banks
	if len(banks) == 0 {
		banks = mediastore.Photobanks
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", opts.OutputDir, err)
	}

	results := make(map[string]BankResult, len(banks))
	for _, bank := range banks {
		res, err := e.exportBank(store, bank, opts)
		if err != nil {
			return results, err
		}
		results[bank] = res
	}
	return results, nil
}

func (e *Exporter) exportBank(store *mediastore.Store, bank string, opts Options) (BankResult, error) {
	rules, err := ColumnMap(bank)
	if err != nil {
		return BankResult{}, err
	}
	format, ok := e.Formats[bank]
	if !ok {
		return BankResult{}, fmt.Errorf("no export format configured for %q", bank)
	}

	path := OutputPath(opts.OutputDir, opts.Prefix, bank)
	f, err := os.Create(path)
	if err != nil {
		return BankResult{}, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(format.Header + "\n"); err != nil {
		return BankResult{}, fmt.Errorf("failed to write header for %s: %w", bank, err)
	}

	res := BankResult{Path: path}
	for _, rec := range store.Records() {
		if rec.BankStatus(bank) != mediastore.StatusPrepared {
			continue
		}
		exp := BuildExportRecord(rec, e.Maps, e.Prices)

		rows := e.recordRows(exp, rec, bank, opts)
		for _, row := range rows {
			proj := e.ProjectRow(row, bank, rules)
			if proj.Skipped() {
				e.Logger.Warn("record missing required source, skipped",
					"bank", bank, "file", row.Filename, "source", proj.MissingSource)
				res.Skipped++
				continue
			}
			if _, err := f.WriteString(formatLine(proj.Fields, format.Delimiter) + "\n"); err != nil {
				return res, fmt.Errorf("failed to write row for %s: %w", bank, err)
			}
			res.Exported++
		}
	}

	e.Logger.Info("bank export finished",
		"bank", bank, "file", path, "exported", res.Exported, "skipped", res.Skipped)
	return res, nil
}

// recordRows expands one catalogue record into the rows a bank receives:
// the record itself, synthetic alternative-format siblings for JPEG
// sources, and optionally on-disk effect variants and format
// conversions the bank accepts.
func (e *Exporter) recordRows(exp *ExportRecord, rec mediastore.Record, bank string, opts Options) []*ExportRecord {
	rows := []*ExportRecord{exp}

	if strings.HasSuffix(strings.ToLower(exp.Filename), ".jpg") {
		var siblings []string
		switch bank {
		case "Dreamstime":
			siblings = dreamstimeSiblings
		case "Pond5":
			siblings = pond5Siblings
		}
		stem := strings.TrimSuffix(exp.Filename, filepath.Ext(exp.Filename))
		for _, ext := range siblings {
			rows = append(rows, exp.WithFilename(stem+ext, e.Prices))
		}
	}

	if opts.IncludeAlternatives {
		srcPath := rec[mediastore.ColPath]
		if srcPath != "" {
			for _, effect := range alternatives.AllEffects() {
				variant := alternatives.VariantPath(srcPath, effect)
				if _, err := os.Stat(variant); err != nil {
					continue
				}
				rows = append(rows, exp.WithFilename(filepath.Base(variant), e.Prices))
			}
			rows = append(rows, e.formatSiblings(exp, srcPath, bank, opts)...)
		}
	}
	return rows
}

// imageEncodeExtensions are the formats the conversion encoder can write.
var imageEncodeExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".tif": true, ".tiff": true, ".bmp": true,
}

// formatSiblings expands a record into rows for format conversions the
// bank accepts: existing conversion files are picked up from disk, and
// missing image conversions are generated first when the run asks for it.
func (e *Exporter) formatSiblings(exp *ExportRecord, srcPath, bank string, opts Options) []*ExportRecord {
	if e.Extensions == nil {
		return nil
	}
	srcExt := strings.ToLower(filepath.Ext(srcPath))

	var rows []*ExportRecord
	for _, ext := range e.Extensions(bank) {
		ext = strings.ToLower(ext)
		if ext == srcExt {
			continue
		}
		conv := alternatives.ConversionPath(srcPath, ext)
		if _, err := os.Stat(conv); err != nil {
			if !opts.GenerateFormats || !imageEncodeExtensions[ext] || !imageEncodeExtensions[srcExt] {
				continue
			}
			generated, genErr := e.convert(srcPath, ext)
			if genErr != nil {
				e.Logger.Warn("format conversion failed",
					"file", srcPath, "format", ext, "error", genErr)
				continue
			}
			conv = generated
		}
		rows = append(rows, exp.WithFilename(filepath.Base(conv), e.Prices))
	}
	return rows
}
