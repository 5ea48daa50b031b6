package batch

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dannyjpn/photostock/internal/fsio"
	"github.com/dannyjpn/photostock/internal/mediastore"
)

// BatchType identifies what a batch contains.
type BatchType string

// TypeOriginals is the batch type for first-pass metadata of original
// files. Alternative batches use AlternativeType with the effect tag.
const TypeOriginals BatchType = "originals"

// AlternativeType returns the batch type for one effect tag, e.g. "_bw"
// becomes "alternatives_bw".
func AlternativeType(editTag string) BatchType {
	return BatchType("alternatives" + editTag)
}

// IsAlternative reports whether t is an alternative-effect batch type.
func (t BatchType) IsAlternative() bool {
	return strings.HasPrefix(string(t), "alternatives")
}

// BatchStatus is the batch-level lifecycle status.
type BatchStatus string

const (
	StatusCollecting BatchStatus = "collecting"
	StatusReady      BatchStatus = "ready"
	StatusSent       BatchStatus = "sent"
	StatusCompleted  BatchStatus = "completed"
	StatusError      BatchStatus = "error"
)

// ErrReasonSizeLimitSplit marks a batch that was replaced by smaller
// splits after the provider rejected its payload size.
const ErrReasonSizeLimitSplit = "size_limit_split"

// BatchInfo is the registry's metadata about one batch.
type BatchInfo struct {
	Type          BatchType   `json:"batch_type"`
	Status        BatchStatus `json:"status"`
	SizeLimit     int         `json:"batch_size_limit"`
	FileCount     int         `json:"file_count"`
	CreatedAt     time.Time   `json:"created_at"`
	SentAt        *time.Time  `json:"sent_at,omitempty"`
	ProviderJobID string      `json:"provider_job_id,omitempty"`
	ErrorReason   string      `json:"error_reason,omitempty"`
}

// ActiveBatch pairs a batch id with its registry metadata.
type ActiveBatch struct {
	ID   string
	Info BatchInfo
}

// CompletedBatch is the retained summary of a finished batch.
type CompletedBatch struct {
	ID          string    `json:"batch_id"`
	Info        BatchInfo `json:"info"`
	CompletedAt time.Time `json:"completed_at"`
}

type registryData struct {
	ActiveBatches         map[string]*BatchInfo `json:"active_batches"`
	CompletedBatches      []CompletedBatch      `json:"completed_batches"`
	FileIndex             map[string]string     `json:"file_index"`
	DailyCounts           map[string]int        `json:"daily_counts"`
	AlternativesGenerated map[string]time.Time  `json:"alternatives_generated"`
}

// Registry is the process-wide index over all batches, backed by one JSON
// document. Construct it once and pass it to every component that needs
// it; every mutating method persists before returning.
type Registry struct {
	mu   sync.RWMutex
	path string
	data registryData
}

// OpenRegistry loads the registry document at path, creating an empty one
// if it does not exist yet.
func OpenRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}
	err := fsio.ReadJSON(path, &r.data)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load batch registry: %w", err)
	}
	if r.data.ActiveBatches == nil {
		r.data.ActiveBatches = make(map[string]*BatchInfo)
	}
	if r.data.FileIndex == nil {
		r.data.FileIndex = make(map[string]string)
	}
	if r.data.DailyCounts == nil {
		r.data.DailyCounts = make(map[string]int)
	}
	if r.data.AlternativesGenerated == nil {
		r.data.AlternativesGenerated = make(map[string]time.Time)
	}
	return r, nil
}

// NewBatchID allocates a short unique batch id.
func NewBatchID() string {
	return "batch_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// CreateBatch registers a new collecting batch and returns its id.
func (r *Registry) CreateBatch(t BatchType, sizeLimit int, now time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := NewBatchID()
	r.data.ActiveBatches[id] = &BatchInfo{
		Type:      t,
		Status:    StatusCollecting,
		SizeLimit: sizeLimit,
		CreatedAt: now.UTC(),
	}
	if err := r.save(); err != nil {
		return "", err
	}
	return id, nil
}

// Batch returns the metadata for an active batch id.
func (r *Registry) Batch(id string) (BatchInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.data.ActiveBatches[id]
	if !ok {
		return BatchInfo{}, false
	}
	return *info, true
}

// ActiveBatches returns active batches filtered by status ("" for all),
// ordered oldest first for stable send priority.
func (r *Registry) ActiveBatches(status BatchStatus) []ActiveBatch {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ActiveBatch
	for id, info := range r.data.ActiveBatches {
		if status != "" && info.Status != status {
			continue
		}
		out = append(out, ActiveBatch{ID: id, Info: *info})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Info.CreatedAt.Equal(out[j].Info.CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].Info.CreatedAt.Before(out[j].Info.CreatedAt)
	})
	return out
}

// RegisterFile records that path belongs to batch id. A file may be in at
// most one non-completed batch at a time.
func (r *Registry) RegisterFile(path, batchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := mediastore.NormalizePath(path)
	if owner, ok := r.data.FileIndex[key]; ok && owner != batchID {
		return fmt.Errorf("file %s already registered to batch %s", path, owner)
	}
	r.data.FileIndex[key] = batchID
	return r.save()
}

// ReassignFile moves path's reverse-index entry to a new owning batch.
// Used when a batch is split and its files migrate to the replacements.
func (r *Registry) ReassignFile(path, batchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.FileIndex[mediastore.NormalizePath(path)] = batchID
	return r.save()
}

// UnregisterFile removes path from the reverse index.
func (r *Registry) UnregisterFile(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data.FileIndex, mediastore.NormalizePath(path))
	return r.save()
}

// BatchForFile returns the batch owning path, if any.
func (r *Registry) BatchForFile(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.data.FileIndex[mediastore.NormalizePath(path)]
	return id, ok
}

// IncrementFileCount bumps the registered file count of batch id.
func (r *Registry) IncrementFileCount(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.data.ActiveBatches[id]
	if !ok {
		return fmt.Errorf("unknown batch %s", id)
	}
	info.FileCount++
	return r.save()
}

// SetStatus moves batch id to status.
func (r *Registry) SetStatus(id string, status BatchStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.data.ActiveBatches[id]
	if !ok {
		return fmt.Errorf("unknown batch %s", id)
	}
	info.Status = status
	return r.save()
}

// MarkSent records the provider job id and moves batch id to sent.
func (r *Registry) MarkSent(id, jobID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.data.ActiveBatches[id]
	if !ok {
		return fmt.Errorf("unknown batch %s", id)
	}
	sent := now.UTC()
	info.Status = StatusSent
	info.SentAt = &sent
	info.ProviderJobID = jobID
	return r.save()
}

// MarkError moves batch id to error with a reason.
func (r *Registry) MarkError(id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.data.ActiveBatches[id]
	if !ok {
		return fmt.Errorf("unknown batch %s", id)
	}
	info.Status = StatusError
	info.ErrorReason = reason
	return r.save()
}

// CompleteBatch moves batch id from the active set into the completed
// history and clears its reverse-index entries.
func (r *Registry) CompleteBatch(id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.data.ActiveBatches[id]
	if !ok {
		return fmt.Errorf("unknown batch %s", id)
	}
	info.Status = StatusCompleted
	r.data.CompletedBatches = append(r.data.CompletedBatches, CompletedBatch{
		ID:          id,
		Info:        *info,
		CompletedAt: now.UTC(),
	})
	delete(r.data.ActiveBatches, id)

	for path, owner := range r.data.FileIndex {
		if owner == id {
			delete(r.data.FileIndex, path)
		}
	}
	return r.save()
}

// DropBatch removes batch id from the active set without recording it as
// completed. Used for batches superseded by size-limit splits.
func (r *Registry) DropBatch(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data.ActiveBatches[id]; !ok {
		return fmt.Errorf("unknown batch %s", id)
	}
	delete(r.data.ActiveBatches, id)
	return r.save()
}

// DayKey formats a timestamp as the UTC day key used by the daily counter.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// DailyCount returns the locally tracked submission count for a UTC day.
func (r *Registry) DailyCount(day string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.DailyCounts[day]
}

// IncrementDailyCount bumps the local submission counter for a UTC day.
func (r *Registry) IncrementDailyCount(day string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.DailyCounts[day]++
	return r.save()
}

// MarkAlternativesGenerated records that variants were derived for path.
func (r *Registry) MarkAlternativesGenerated(path string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data.AlternativesGenerated[mediastore.NormalizePath(path)] = now.UTC()
	return r.save()
}

// AlternativesGenerated reports whether variants were already derived for
// path. Guards the derive step against re-runs.
func (r *Registry) AlternativesGenerated(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.data.AlternativesGenerated[mediastore.NormalizePath(path)]
	return ok
}

// CleanupCompleted prunes completed-batch history older than retention and
// returns how many summaries were removed.
func (r *Registry) CleanupCompleted(retention time.Duration, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.UTC().Add(-retention)
	kept := r.data.CompletedBatches[:0]
	removed := 0
	for _, cb := range r.data.CompletedBatches {
		if cb.CompletedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, cb)
	}
	r.data.CompletedBatches = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, r.save()
}

// save persists the registry document. Callers hold the write lock.
func (r *Registry) save() error {
	if err := fsio.WriteJSON(r.path, &r.data); err != nil {
		return fmt.Errorf("failed to persist batch registry: %w", err)
	}
	return nil
}
