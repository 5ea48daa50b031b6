package mediastore

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dannyjpn/photostock/internal/fsio"
)

// Store is the catalogue CSV loaded into memory. Single writer by
// convention; every Save goes through backup-then-replace so a crash
// mid-write never loses the previous valid version.
type Store struct {
	path   string
	header []string
	rows   []Record
}

// Load reads the catalogue CSV at path.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalogue %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	lines, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalogue %s: %w", path, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("catalogue %s has no header row", path)
	}

	header := lines[0]
	rows := make([]Record, 0, len(lines)-1)
	for _, line := range lines[1:] {
		rec := make(Record, len(header))
		for i, col := range header {
			if i < len(line) {
				rec[col] = line[i]
			} else {
				rec[col] = ""
			}
		}
		rows = append(rows, rec)
	}

	slog.Debug("catalogue loaded", "path", path, "records", len(rows))
	return &Store{path: path, header: header, rows: rows}, nil
}

// Path returns the backing CSV path.
func (s *Store) Path() string {
	return s.path
}

// Header returns the catalogue column order.
func (s *Store) Header() []string {
	return s.header
}

// Records returns the live row slice. Mutating a returned Record mutates
// the store; callers persist with Save.
func (s *Store) Records() []Record {
	return s.rows
}

// Save writes the catalogue back to disk. The existing file is copied to a
// .bak sibling first, then the new content is written atomically.
func (s *Store) Save() error {
	if _, err := os.Stat(s.path); err == nil {
		if err := fsio.CopyFile(s.path, s.path+".bak"); err != nil {
			return fmt.Errorf("failed to back up catalogue: %w", err)
		}
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(s.header); err != nil {
		return fmt.Errorf("failed to write catalogue header: %w", err)
	}
	line := make([]string, len(s.header))
	for _, rec := range s.rows {
		for i, col := range s.header {
			line[i] = rec[col]
		}
		if err := w.Write(line); err != nil {
			return fmt.Errorf("failed to write catalogue row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush catalogue: %w", err)
	}

	if err := fsio.WriteBytes(s.path, []byte(sb.String())); err != nil {
		return fmt.Errorf("failed to save catalogue: %w", err)
	}
	slog.Debug("catalogue saved", "path", s.path, "records", len(s.rows))
	return nil
}

// FindByPath returns the record whose Cesta column matches path after
// normalization.
func (s *Store) FindByPath(path string) (Record, bool) {
	want := NormalizePath(path)
	for _, rec := range s.rows {
		if NormalizePath(rec[ColPath]) == want {
			return rec, true
		}
	}
	return nil, false
}

// Unprocessed returns original records that still have at least one bank
// status of nezpracováno.
func (s *Store) Unprocessed() []Record {
	var out []Record
	for _, rec := range s.rows {
		if !rec.IsOriginal() {
			continue
		}
		for _, bank := range Photobanks {
			if rec.BankStatus(bank) == StatusUnprocessed {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

// Append adds a new row. Columns unknown to the header are dropped.
func (s *Store) Append(rec Record) {
	s.rows = append(s.rows, rec)
}

// ApplyMetadata writes an AI result into rec. Title and description are
// truncated to the catalogue limits, keywords are comma-joined, the
// preparation date is stamped, and only bank statuses still at
// nezpracováno flip to připraveno. Terminal statuses set by review or
// earlier runs stay untouched.
func (s *Store) ApplyMetadata(rec Record, meta Metadata, now time.Time) {
	rec[ColTitle] = TruncateRunes(strings.TrimSpace(meta.Title), MaxTitleLength)
	rec[ColDescription] = TruncateRunes(strings.TrimSpace(meta.Description), MaxDescriptionLength)
	rec[ColKeywords] = strings.Join(meta.Keywords, ", ")
	rec[ColPrepDate] = now.Format("02.01.2006")

	for _, bank := range Photobanks {
		if rec.BankStatus(bank) == StatusUnprocessed {
			rec.SetBankStatus(bank, StatusPrepared)
		}
		if cats, ok := bankCategories(meta.Categories, bank); ok {
			rec[bank+CategorySuffix] = strings.Join(cats, ", ")
		}
	}
}

// Reject marks every bank status of rec as zamítnuto.
func (s *Store) Reject(rec Record) {
	for _, bank := range Photobanks {
		rec.SetBankStatus(bank, StatusRejected)
	}
}

// bankCategories matches AI category map keys case-insensitively, since
// the provider is instructed to use lowercase bank names.
func bankCategories(categories map[string][]string, bank string) ([]string, bool) {
	if categories == nil {
		return nil, false
	}
	if cats, ok := categories[bank]; ok {
		return cats, true
	}
	lower := strings.ToLower(bank)
	for k, v := range categories {
		if strings.ToLower(k) == lower {
			return v, true
		}
	}
	return nil, false
}
