// Package batch holds the durable state of AI metadata batches: one JSON
// state document per batch plus a process-wide registry indexing them.
package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dannyjpn/photostock/internal/fsio"
	"github.com/dannyjpn/photostock/internal/mediastore"
)

// EntryStatus is the per-file processing status inside a batch.
type EntryStatus string

const (
	EntryQueued           EntryStatus = "queued"
	EntryDescriptionSaved EntryStatus = "description_saved"
	EntryBatchSent        EntryStatus = "batch_sent"
	EntrySavedToCSV       EntryStatus = "saved_to_csv"
	EntryBatchFailed      EntryStatus = "batch_failed"
	EntrySkippedLarge     EntryStatus = "skipped_large"
	EntryError            EntryStatus = "error"
)

// allowedEntryTransitions encodes the legal file-entry state machine.
// Re-applying the current status is always a no-op.
var allowedEntryTransitions = map[EntryStatus][]EntryStatus{
	EntryQueued:           {EntryDescriptionSaved, EntryError},
	EntryDescriptionSaved: {EntryBatchSent, EntrySkippedLarge, EntryError},
	EntryBatchSent:        {EntrySavedToCSV, EntryBatchFailed, EntrySkippedLarge, EntryError},
	EntryBatchFailed:      {EntrySavedToCSV, EntrySkippedLarge, EntryError},
	EntrySavedToCSV:       {},
	EntrySkippedLarge:     {},
	EntryError:            {},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to EntryStatus) bool {
	if from == to {
		return true
	}
	for _, next := range allowedEntryTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EntryType distinguishes original files from derived effect variants.
type EntryType string

const (
	EntryOriginal    EntryType = "original"
	EntryAlternative EntryType = "alternative"
)

// EditorialData is the location/date caption context for editorial content.
type EditorialData struct {
	City    string `json:"city"`
	Country string `json:"country"`
	Date    string `json:"date"`
}

// FileEntry is one file tracked by a batch.
type FileEntry struct {
	FilePath        string          `json:"file_path"`
	CustomID        string          `json:"custom_id"`
	EntryType       EntryType       `json:"entry_type"`
	Status          EntryStatus     `json:"status"`
	UserDescription string          `json:"user_description,omitempty"`
	Editorial       bool            `json:"editorial"`
	EditorialData   *EditorialData  `json:"editorial_data,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           string          `json:"error,omitempty"`
	RetryCount      int             `json:"retry_count"`

	// Alternative-entry context carried from the original record.
	EditTag             string `json:"edit_tag,omitempty"`
	OriginalFilePath    string `json:"original_file_path,omitempty"`
	OriginalTitle       string `json:"original_title,omitempty"`
	OriginalDescription string `json:"original_description,omitempty"`
	OriginalKeywords    string `json:"original_keywords,omitempty"`
}

// State is the durable per-batch document. Every mutation persists before
// returning so a crash between two calls leaves a resumable file.
type State struct {
	dir string

	ID    string      `json:"batch_id"`
	Files []FileEntry `json:"files"`
}

// NewState creates an empty state document for batch id and persists it.
func NewState(dir, id string) (*State, error) {
	s := &State{dir: dir, ID: id}
	if err := s.save(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadState reads the state document for batch id.
func LoadState(dir, id string) (*State, error) {
	s := &State{dir: dir}
	if err := fsio.ReadJSON(statePath(dir, id), s); err != nil {
		return nil, fmt.Errorf("failed to load state for batch %s: %w", id, err)
	}
	s.dir = dir
	return s, nil
}

// StateExists reports whether a state document exists for batch id.
func StateExists(dir, id string) bool {
	_, err := os.Stat(statePath(dir, id))
	return err == nil
}

func statePath(dir, id string) string {
	return filepath.Join(dir, id, "state.json")
}

// AddFile appends entry with initial status queued. A duplicate custom id
// within the batch is a programming error and fails loudly.
func (s *State) AddFile(entry FileEntry) error {
	for _, f := range s.Files {
		if f.CustomID == entry.CustomID {
			return fmt.Errorf("duplicate custom id %q in batch %s", entry.CustomID, s.ID)
		}
	}
	if entry.Status == "" {
		entry.Status = EntryQueued
	}
	s.Files = append(s.Files, entry)
	return s.save()
}

// UpdateFile applies mutate to the entry with the given custom id and
// persists. Unknown custom ids are an error.
func (s *State) UpdateFile(customID string, mutate func(*FileEntry)) error {
	for i := range s.Files {
		if s.Files[i].CustomID == customID {
			mutate(&s.Files[i])
			return s.save()
		}
	}
	return fmt.Errorf("no entry with custom id %q in batch %s", customID, s.ID)
}

// SetStatus transitions the entry with custom id to status. Setting the
// current status again is a persisted no-op; an illegal transition is an
// error.
func (s *State) SetStatus(customID string, status EntryStatus, reason string) error {
	for i := range s.Files {
		if s.Files[i].CustomID == customID {
			if !CanTransition(s.Files[i].Status, status) {
				return fmt.Errorf("entry %s: illegal transition %s -> %s", customID, s.Files[i].Status, status)
			}
			s.Files[i].Status = status
			if reason != "" {
				s.Files[i].Error = reason
			}
			return s.save()
		}
	}
	return fmt.Errorf("no entry with custom id %q in batch %s", customID, s.ID)
}

// FindByCustomID returns a pointer into the live entry list.
func (s *State) FindByCustomID(customID string) (*FileEntry, bool) {
	for i := range s.Files {
		if s.Files[i].CustomID == customID {
			return &s.Files[i], true
		}
	}
	return nil, false
}

// FindByPath returns the entry whose path matches after normalization.
func (s *State) FindByPath(path string) (*FileEntry, bool) {
	want := mediastore.NormalizePath(path)
	for i := range s.Files {
		if mediastore.NormalizePath(s.Files[i].FilePath) == want {
			return &s.Files[i], true
		}
	}
	return nil, false
}

// ListByStatus returns copies of entries in the given status.
func (s *State) ListByStatus(status EntryStatus) []FileEntry {
	var out []FileEntry
	for _, f := range s.Files {
		if f.Status == status {
			out = append(out, f)
		}
	}
	return out
}

// Save persists the state document explicitly. Mutating methods already
// persist; this exists for callers that edited entries in place through
// FindByCustomID.
func (s *State) Save() error {
	return s.save()
}

func (s *State) save() error {
	if err := fsio.WriteJSON(statePath(s.dir, s.ID), s); err != nil {
		return fmt.Errorf("failed to persist state for batch %s: %w", s.ID, err)
	}
	return nil
}
