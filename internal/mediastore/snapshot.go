package mediastore

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/parquet-go/parquet-go"
)

// SnapshotRow is the flattened per-bank view written to Parquet snapshots.
// One catalogue record becomes one row per tracked bank.
type SnapshotRow struct {
	File        string `parquet:"file"`
	Path        string `parquet:"path"`
	Title       string `parquet:"title"`
	Description string `parquet:"description"`
	Keywords    string `parquet:"keywords"`
	CreateDate  string `parquet:"create_date"`
	PrepDate    string `parquet:"prep_date"`
	Original    string `parquet:"original"`
	Bank        string `parquet:"bank"`
	Status      string `parquet:"status"`
	Category    string `parquet:"category"`
}

// WriteSnapshot writes the whole catalogue to a Parquet file for offline
// analysis of per-bank status distributions.
func WriteSnapshot(path string, s *Store) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer f.Close()

	writer := parquet.NewGenericWriter[SnapshotRow](f)

	total := 0
	for _, rec := range s.Records() {
		rows := make([]SnapshotRow, 0, len(Photobanks))
		for _, bank := range Photobanks {
			rows = append(rows, SnapshotRow{
				File:        rec[ColFile],
				Path:        rec[ColPath],
				Title:       rec[ColTitle],
				Description: rec[ColDescription],
				Keywords:    rec[ColKeywords],
				CreateDate:  rec[ColCreateDate],
				PrepDate:    rec[ColPrepDate],
				Original:    rec[ColOriginal],
				Bank:        bank,
				Status:      rec.BankStatus(bank),
				Category:    rec.BankCategory(bank),
			})
		}
		n, err := writer.Write(rows)
		if err != nil {
			return total, fmt.Errorf("failed to write snapshot rows: %w", err)
		}
		total += n
	}

	if err := writer.Close(); err != nil {
		return total, fmt.Errorf("failed to close snapshot writer: %w", err)
	}
	slog.Debug("snapshot written", "path", path, "rows", total)
	return total, nil
}

// ReadSnapshot loads a Parquet snapshot back into memory.
func ReadSnapshot(path string) ([]SnapshotRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot file: %w", err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[SnapshotRow](pf)
	defer reader.Close()

	var records []SnapshotRow
	rows := make([]SnapshotRow, 128)
	for {
		n, err := reader.Read(rows)
		if n > 0 {
			records = append(records, rows[:n]...)
		}
		if err != nil {
			break
		}
	}

	slog.Debug("snapshot read", "path", path, "rows", len(records))
	return records, nil
}
