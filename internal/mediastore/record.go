package mediastore

import (
	"path/filepath"
	"strings"
)

// Column names used by the catalogue CSV. The catalogue is shared with
// older tooling, so the Czech headers are part of the file format.
const (
	ColFile        = "Soubor"
	ColTitle       = "Název"
	ColDescription = "Popis"
	ColKeywords    = "Klíčová slova"
	ColCreateDate  = "Datum vytvoření"
	ColPrepDate    = "Datum přípravy"
	ColPath        = "Cesta"
	ColOriginal    = "Originál"

	StatusSuffix   = " status"
	CategorySuffix = " kategorie"
)

// Per-bank status vocabulary. Closed set shared with the rest of the
// toolchain.
const (
	StatusUnprocessed = "nezpracováno"
	StatusPrepared    = "připraveno"
	StatusRejected    = "zamítnuto"
	StatusError       = "chyba"
	StatusBackup      = "záloha"
)

const (
	OriginalYes = "ano"
	OriginalNo  = "ne"
)

const (
	MaxTitleLength       = 80
	MaxDescriptionLength = 200
	MaxKeywordsCount     = 50
)

// Photobanks lists every bank the catalogue tracks, in header order.
var Photobanks = []string{
	"ShutterStock",
	"AdobeStock",
	"Dreamstime",
	"DepositPhotos",
	"BigStockPhoto",
	"123RF",
	"CanStockPhoto",
	"Pond5",
	"Alamy",
	"GettyImages",
}

// Record is one catalogue row keyed by column name.
type Record map[string]string

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// BankStatus returns the status column value for bank.
func (r Record) BankStatus(bank string) string {
	return r[bank+StatusSuffix]
}

// SetBankStatus sets the status column value for bank.
func (r Record) SetBankStatus(bank, status string) {
	r[bank+StatusSuffix] = status
}

// BankCategory returns the category column value for bank.
func (r Record) BankCategory(bank string) string {
	return r[bank+CategorySuffix]
}

// IsOriginal reports whether the record describes an original file rather
// than a derived variant.
func (r Record) IsOriginal() bool {
	return r[ColOriginal] == OriginalYes
}

// Metadata is the parsed AI result written back into the catalogue.
type Metadata struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Keywords    []string            `json:"keywords"`
	Categories  map[string][]string `json:"categories"`
}

// NormalizePath canonicalizes a file path for identity comparisons across
// the catalogue and the batch registry. Windows-style separators and case
// differences collapse to one key.
func NormalizePath(p string) string {
	return strings.ToLower(filepath.ToSlash(strings.TrimSpace(p)))
}

// TruncateRunes limits s to max runes. Multibyte text must never be cut
// mid-rune.
func TruncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
