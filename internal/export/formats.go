package export

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format describes the output file of one bank: the literal header line
// and the field delimiter.
type Format struct {
	Header    string `yaml:"header"`
	Delimiter string `yaml:"delimiter"`
}

// FormatConfig is the on-disk shape of an export format override file.
type FormatConfig struct {
	Banks  map[string]Format `yaml:"banks"`
	Prices map[string]string `yaml:"prices"`
}

// tabDelimited lists banks whose ingest wants tab-separated files.
var tabDelimited = map[string]bool{
	"CanStockPhoto": true,
}

// DefaultFormats derives the built-in format of every bank from its
// column map: header targets joined by the bank delimiter.
func DefaultFormats() map[string]Format {
	out := make(map[string]Format, len(bankColumnMaps))
	for bank, rules := range bankColumnMaps {
		delim := ","
		if tabDelimited[bank] {
			delim = "\t"
		}
		targets := make([]string, len(rules))
		for i, rule := range rules {
			targets[i] = rule.Target
		}
		out[bank] = Format{Header: strings.Join(targets, delim), Delimiter: delim}
	}
	return out
}

// decodeEscapes turns backslash escape sequences in configured headers
// and delimiters into their literal characters.
func decodeEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	r := strings.NewReplacer(`\t`, "\t", `\n`, "\n", `\r`, "\r", `\\`, `\`)
	return r.Replace(s)
}

// LoadFormats merges a YAML override file over the built-in formats and
// prices. An empty path keeps the defaults.
func LoadFormats(path string) (map[string]Format, PriceTable, error) {
	formats := DefaultFormats()
	prices := DefaultPrices()
	if path == "" {
		return formats, prices, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read format config %s: %w", path, err)
	}
	var cfg FormatConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse format config %s: %w", path, err)
	}

	for bank, f := range cfg.Banks {
		merged := formats[bank]
		if f.Header != "" {
			merged.Header = decodeEscapes(f.Header)
		}
		if f.Delimiter != "" {
			merged.Delimiter = decodeEscapes(f.Delimiter)
		}
		formats[bank] = merged
	}
	for ext, price := range cfg.Prices {
		prices[strings.ToLower(strings.TrimPrefix(ext, "."))] = price
	}
	return formats, prices, nil
}
