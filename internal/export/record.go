// Package export turns catalogue records into per-photobank submission
// rows and streams them to disk in each bank's file format.
package export

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dannyjpn/photostock/internal/mediastore"
)

// Fixed values shared by the bank column maps.
const (
	defaultLocation = "Czech republic"
	defaultUsername = "DannyJPN"
	copyrightAuthor = "Dan K."
	defaultCountry  = "CZ"
)

// Per-bank category caps. Deterministic truncation keeps the first N
// selections in keyword order.
var categoryCaps = map[string]int{
	"AdobeStock": 1,
	"Alamy":      2,
	"Dreamstime": 3,
}

// editorialTitleRe matches the mandatory editorial caption prefix
// "CITY, COUNTRY - DD MM YYYY:".
var editorialTitleRe = regexp.MustCompile(`^[A-Za-z]+, [A-Za-z ]+ - [0-9]{2} [0-9]{2} [0-9]{4}:`)

var (
	videoExtensions        = []string{".mp4", ".mov", ".avi", ".wmv", ".flv", ".mkv"}
	illustrationExtensions = []string{".eps", ".ai", ".svg"}
	vectorFileExtensions   = []string{".tif", ".tiff"}
)

func hasAnyExtension(filename string, exts []string) bool {
	lower := strings.ToLower(filename)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// ExportRecord is the canonical per-file view every bank projection reads
// from. It is resolved once per catalogue record; the per-bank column maps
// never reach back into the raw row.
type ExportRecord struct {
	Filename    string
	Title       string
	Description string
	Keywords    string
	Editorial   bool
	Vector      bool
	Location    string
	CreateDate  string
	Year        string
	Username    string
	Copyright   string
	Country     string
	SuperTags   string
	Price       string

	// Per-bank category selections, already capped.
	Categories map[string][]string

	// present tracks which source fields were backed by an actual
	// catalogue column. Projections skip the whole record for a bank when
	// a required source is absent.
	present map[string]bool
}

// DedupKeywords removes case-sensitive duplicates, drops keywords of
// length <= 2 and caps the list at 50, preserving first-seen order.
func DedupKeywords(keywords string) string {
	if keywords == "" {
		return ""
	}
	seen := make(map[string]struct{})
	var out []string
	for _, kw := range strings.Split(keywords, ",") {
		kw = strings.TrimSpace(kw)
		if len([]rune(kw)) <= 2 {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
		if len(out) == mediastore.MaxKeywordsCount {
			break
		}
	}
	return strings.Join(out, ",")
}

// superTags returns the first 10 raw keywords.
func superTags(keywords string) string {
	if keywords == "" {
		return ""
	}
	parts := strings.Split(keywords, ",")
	if len(parts) > 10 {
		parts = parts[:10]
	}
	return strings.Join(parts, ",")
}

// yearFromDate extracts the year from a DD.MM.YYYY date, falling back to
// the trailing digits for odd formats.
func yearFromDate(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return ""
	}
	if strings.Contains(date, ".") {
		parts := strings.Split(date, ".")
		return parts[len(parts)-1]
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, date)
	if len(digits) >= 4 {
		return digits[len(digits)-4:]
	}
	return ""
}

// bankCategorySelections resolves the per-bank category columns through
// the bank vocabularies and caps each selection.
func bankCategorySelections(rec mediastore.Record, maps CategoryMaps) map[string][]string {
	keywords := rec[mediastore.ColKeywords]
	out := make(map[string][]string, len(mediastore.Photobanks))
	for _, bank := range mediastore.Photobanks {
		raw := strings.TrimSpace(rec.BankCategory(bank))
		cats := selectCategories(maps[bank], raw, keywords, categoryCaps[bank])
		if len(cats) > 0 {
			out[bank] = cats
		}
	}
	return out
}

// PriceTable maps lowercase file extensions (no dot) to Pond5 prices.
type PriceTable map[string]string

// DefaultPrices is the documented fallback used when no price
// configuration is available.
func DefaultPrices() PriceTable {
	return PriceTable{
		"jpg": "5", "jpeg": "5", "png": "5", "gif": "5", "webp": "5",
		"tif": "10", "tiff": "10",
		"ai": "5", "eps": "5", "svg": "5", "pdf": "5",
		"mp4": "30", "mov": "30", "avi": "30", "wmv": "30", "flv": "30", "mkv": "30",
	}
}

// PriceFor resolves the price by extension, defaulting to "5".
func (p PriceTable) PriceFor(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if price, ok := p[ext]; ok {
		return price
	}
	return "5"
}

// BuildExportRecord resolves the canonical export view of one catalogue
// record. maps supplies the per-bank category vocabularies; nil means
// every bank keeps its raw category column values.
func BuildExportRecord(rec mediastore.Record, maps CategoryMaps, prices PriceTable) *ExportRecord {
	filename := rec[mediastore.ColFile]
	title := rec[mediastore.ColTitle]
	keywords := rec[mediastore.ColKeywords]
	createDate := rec[mediastore.ColCreateDate]
	year := yearFromDate(createDate)

	copyright := copyrightAuthor
	if year != "" {
		copyright = copyrightAuthor + " " + year
	}

	r := &ExportRecord{
		Filename:    filename,
		Title:       title,
		Description: rec[mediastore.ColDescription],
		Keywords:    DedupKeywords(keywords),
		Editorial:   editorialTitleRe.MatchString(title),
		Vector:      hasAnyExtension(filename, illustrationExtensions),
		Location:    defaultLocation,
		CreateDate:  createDate,
		Year:        year,
		Username:    defaultUsername,
		Copyright:   copyright,
		Country:     defaultCountry,
		SuperTags:   superTags(keywords),
		Price:       prices.PriceFor(filename),
		Categories:  bankCategorySelections(rec, maps),
		present:     make(map[string]bool),
	}

	for col, source := range map[string]string{
		mediastore.ColFile:        "filename",
		mediastore.ColTitle:       "title",
		mediastore.ColDescription: "description",
		mediastore.ColKeywords:    "keywords",
		mediastore.ColCreateDate:  "created_date",
	} {
		if _, ok := rec[col]; ok {
			r.present[source] = true
		}
	}
	return r
}

// WithFilename returns a copy of r describing a sibling file with a
// different extension, metadata unchanged except the extension-derived
// price. Used for synthetic alternative-format rows and on-disk
// alternative expansion.
func (r *ExportRecord) WithFilename(filename string, prices PriceTable) *ExportRecord {
	clone := *r
	clone.Filename = filename
	clone.Price = prices.PriceFor(filename)
	return &clone
}

// HasSource reports whether the named source field was backed by a real
// catalogue column.
func (r *ExportRecord) HasSource(source string) bool {
	switch source {
	case "filename", "title", "description", "keywords", "created_date":
		return r.present[source]
	default:
		// Derived and constant sources always resolve.
		return true
	}
}
