package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dannyjpn/photostock/internal/mediastore"
)

// Vocabulary is one bank's category table: free-text category names (or
// category paths) mapped to the value the bank wants in its export
// column, e.g. AdobeStock names to numeric ids. Entries keep their load
// order so keyword matching is deterministic.
type Vocabulary struct {
	keys   []string
	values map[string]string
}

// Add appends one mapping. Keys compare case-insensitively; a later
// duplicate of an existing key is ignored.
func (v *Vocabulary) Add(key, value string) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if v.values == nil {
		v.values = make(map[string]string)
	}
	lower := strings.ToLower(key)
	if _, ok := v.values[lower]; ok {
		return
	}
	v.keys = append(v.keys, key)
	v.values[lower] = strings.TrimSpace(value)
}

// Len returns the number of entries. A nil vocabulary is empty.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.keys)
}

// Lookup resolves an exact category name, case-insensitively.
func (v *Vocabulary) Lookup(name string) (string, bool) {
	if v == nil {
		return "", false
	}
	value, ok := v.values[strings.ToLower(strings.TrimSpace(name))]
	return value, ok
}

// MatchKeyword returns the value of the first entry whose key contains
// the keyword, case-insensitively.
func (v *Vocabulary) MatchKeyword(keyword string) (string, bool) {
	if v == nil {
		return "", false
	}
	kw := strings.ToLower(strings.TrimSpace(keyword))
	if kw == "" {
		return "", false
	}
	for _, key := range v.keys {
		if strings.Contains(strings.ToLower(key), kw) {
			return v.values[strings.ToLower(key)], true
		}
	}
	return "", false
}

// CategoryMaps holds the per-bank vocabularies, keyed by bank name.
// Banks without an entry export their raw category column values.
type CategoryMaps map[string]*Vocabulary

// LoadVocabulary reads one category CSV. The file needs KEY and VALUE
// columns; other columns are ignored.
func LoadVocabulary(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open category file %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read category file %s: %w", path, err)
	}
	if len(rows) == 0 {
		return &Vocabulary{}, nil
	}

	keyIdx, valueIdx := -1, -1
	for i, col := range rows[0] {
		switch strings.TrimSpace(col) {
		case "KEY":
			keyIdx = i
		case "VALUE":
			valueIdx = i
		}
	}
	if keyIdx < 0 || valueIdx < 0 {
		return nil, fmt.Errorf("category file %s is missing KEY/VALUE columns", path)
	}

	v := &Vocabulary{}
	for _, row := range rows[1:] {
		if keyIdx >= len(row) || valueIdx >= len(row) {
			continue
		}
		v.Add(row[keyIdx], row[valueIdx])
	}
	return v, nil
}

// LoadCategoryMaps loads <bank>_categories.csv for every bank found in
// dir. A bank without a file simply has no vocabulary.
func LoadCategoryMaps(dir string) (CategoryMaps, error) {
	maps := make(CategoryMaps)
	if dir == "" {
		return maps, nil
	}
	for _, bank := range mediastore.Photobanks {
		path := filepath.Join(dir, bank+"_categories.csv")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v, err := LoadVocabulary(path)
		if err != nil {
			return nil, err
		}
		maps[bank] = v
	}
	return maps, nil
}

// selectCategories resolves one bank's category selection. With a
// vocabulary, column values map to the bank's own identifiers and an
// empty column falls back to keyword-substring matching; without one the
// raw column values pass through. Zero matches yield an empty selection,
// never an error. limit 0 means uncapped.
func selectCategories(vocab *Vocabulary, raw, keywords string, limit int) []string {
	var cats []string
	if raw != "" {
		for _, cat := range strings.Split(raw, ",") {
			cat = strings.TrimSpace(cat)
			if cat == "" {
				continue
			}
			if vocab.Len() == 0 {
				cats = append(cats, cat)
				continue
			}
			if mapped, ok := vocab.Lookup(cat); ok && mapped != "" {
				cats = append(cats, mapped)
			}
		}
	} else if vocab.Len() > 0 {
		for _, kw := range strings.Split(keywords, ",") {
			if mapped, ok := vocab.MatchKeyword(kw); ok && mapped != "" {
				cats = append(cats, mapped)
			}
			if limit > 0 && len(cats) >= limit {
				break
			}
		}
	}

	cats = dedupPreservingOrder(cats)
	if limit > 0 && len(cats) > limit {
		cats = cats[:limit]
	}
	return cats
}

func dedupPreservingOrder(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
