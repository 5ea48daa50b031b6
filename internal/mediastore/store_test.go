package mediastore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader() []string {
	header := []string{ColFile, ColTitle, ColDescription, ColKeywords, ColCreateDate, ColPrepDate, ColPath, ColOriginal}
	for _, bank := range Photobanks {
		header = append(header, bank+StatusSuffix, bank+CategorySuffix)
	}
	return header
}

func writeTestCSV(t *testing.T, rows []Record) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "PhotoMedia.csv")

	header := testHeader()
	var sb strings.Builder
	sb.WriteString(strings.Join(header, ",") + "\n")
	for _, rec := range rows {
		fields := make([]string, len(header))
		for i, col := range header {
			fields[i] = rec[col]
		}
		sb.WriteString(strings.Join(fields, ",") + "\n")
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func newTestRecord(file, path string) Record {
	rec := Record{
		ColFile:       file,
		ColPath:       path,
		ColOriginal:   OriginalYes,
		ColCreateDate: "04.08.2016",
	}
	for _, bank := range Photobanks {
		rec.SetBankStatus(bank, StatusUnprocessed)
	}
	return rec
}

func TestLoadAndSaveRoundTrip(t *testing.T) {
	path := writeTestCSV(t, []Record{newTestRecord("a.jpg", "C:/foto/a.jpg")})

	store, err := Load(path)
	require.NoError(t, err)
	require.Len(t, store.Records(), 1)
	assert.Equal(t, "a.jpg", store.Records()[0][ColFile])

	store.Records()[0][ColTitle] = `A "quoted" title, with comma`
	require.NoError(t, err)
	require.NoError(t, store.Save())

	// Save keeps a backup of the previous version.
	_, err = os.Stat(path + ".bak")
	assert.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, `A "quoted" title, with comma`, reloaded.Records()[0][ColTitle])
}

func TestFindByPathNormalizesSeparatorsAndCase(t *testing.T) {
	path := writeTestCSV(t, []Record{newTestRecord("a.jpg", `C:\Foto\A.jpg`)})
	store, err := Load(path)
	require.NoError(t, err)

	rec, ok := store.FindByPath("c:/foto/a.jpg")
	require.True(t, ok)
	assert.Equal(t, "a.jpg", rec[ColFile])

	_, ok = store.FindByPath("c:/foto/other.jpg")
	assert.False(t, ok)
}

func TestUnprocessedSkipsDerivedAndFinishedRecords(t *testing.T) {
	pending := newTestRecord("a.jpg", "C:/foto/a.jpg")

	done := newTestRecord("b.jpg", "C:/foto/b.jpg")
	for _, bank := range Photobanks {
		done.SetBankStatus(bank, StatusPrepared)
	}

	derived := newTestRecord("c_bw.jpg", "C:/foto/c_bw.jpg")
	derived[ColOriginal] = OriginalNo

	path := writeTestCSV(t, []Record{pending, done, derived})
	store, err := Load(path)
	require.NoError(t, err)

	got := store.Unprocessed()
	require.Len(t, got, 1)
	assert.Equal(t, "a.jpg", got[0][ColFile])
}

func TestApplyMetadataTruncatesAndFlipsOnlyUnprocessed(t *testing.T) {
	rec := newTestRecord("a.jpg", "C:/foto/a.jpg")
	rec.SetBankStatus("Alamy", StatusRejected)

	path := writeTestCSV(t, []Record{rec})
	store, err := Load(path)
	require.NoError(t, err)
	loaded := store.Records()[0]

	meta := Metadata{
		Title:       strings.Repeat("t", 100),
		Description: strings.Repeat("d", 300),
		Keywords:    []string{"mountain", "sunset"},
		Categories:  map[string][]string{"shutterstock": {"Nature", "Landscapes"}},
	}
	store.ApplyMetadata(loaded, meta, time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC))

	assert.Len(t, []rune(loaded[ColTitle]), MaxTitleLength)
	assert.Len(t, []rune(loaded[ColDescription]), MaxDescriptionLength)
	assert.Equal(t, "mountain, sunset", loaded[ColKeywords])
	assert.Equal(t, "09.03.2024", loaded[ColPrepDate])
	assert.Equal(t, StatusPrepared, loaded.BankStatus("ShutterStock"))
	assert.Equal(t, "Nature, Landscapes", loaded.BankCategory("ShutterStock"))
	// Review decisions are never overwritten by a metadata sweep.
	assert.Equal(t, StatusRejected, loaded.BankStatus("Alamy"))
}

func TestRejectMarksAllBanks(t *testing.T) {
	path := writeTestCSV(t, []Record{newTestRecord("a.jpg", "C:/foto/a.jpg")})
	store, err := Load(path)
	require.NoError(t, err)

	store.Reject(store.Records()[0])
	for _, bank := range Photobanks {
		assert.Equal(t, StatusRejected, store.Records()[0].BankStatus(bank))
	}
}

func TestTruncateRunesHandlesMultibyte(t *testing.T) {
	s := "Příliš žluťoučký kůň úpěl ďábelské ódy"
	out := TruncateRunes(s, 10)
	assert.Equal(t, "Příliš žlu", out)
	assert.Equal(t, s, TruncateRunes(s, 100))
}

func TestSnapshotRoundTrip(t *testing.T) {
	rec := newTestRecord("a.jpg", "C:/foto/a.jpg")
	rec[ColTitle] = "Mountain sunset"
	path := writeTestCSV(t, []Record{rec})
	store, err := Load(path)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "catalogue.parquet")
	n, err := WriteSnapshot(out, store)
	require.NoError(t, err)
	assert.Equal(t, len(Photobanks), n)

	rows, err := ReadSnapshot(out)
	require.NoError(t, err)
	require.Len(t, rows, len(Photobanks))
	assert.Equal(t, "Mountain sunset", rows[0].Title)
	assert.Equal(t, StatusUnprocessed, rows[0].Status)
}
