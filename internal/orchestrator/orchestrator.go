// Package orchestrator drives the metadata pipeline end to end: it
// collects catalogue records into batches, submits them to the AI
// provider, retrieves finished jobs, writes results back into the
// catalogue and derives effect variants from confirmed originals.
package orchestrator

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dannyjpn/photostock/internal/aiprov"
	"github.com/dannyjpn/photostock/internal/alternatives"
	"github.com/dannyjpn/photostock/internal/batch"
	"github.com/dannyjpn/photostock/internal/mediastore"
	"github.com/dannyjpn/photostock/internal/prompts"
)

// Defaults for the orchestration knobs.
const (
	DefaultOriginalsBatchSize   = 10
	DefaultAlternativeBatchSize = 50
	DefaultDailyLimit           = 95
	DefaultPollInterval         = time.Minute
	DefaultSyncRetryLimit       = 3
)

// PromptAction is the reviewer's verdict on one unprocessed record.
type PromptAction string

const (
	ActionSave   PromptAction = "save"
	ActionReject PromptAction = "reject"
	ActionSkip   PromptAction = "skip"
)

// PromptDecision carries the verdict plus the context the provider needs
// to describe the file.
type PromptDecision struct {
	Action        PromptAction
	Description   string
	Editorial     bool
	EditorialData *batch.EditorialData
}

// DescriptionPrompter supplies the per-record decision during collection.
// The CLI implementation asks on the terminal; tests script it.
type DescriptionPrompter interface {
	Decide(rec mediastore.Record) (PromptDecision, error)
}

// Config tunes one orchestrator instance. Zero fields fall back to the
// package defaults.
type Config struct {
	// BatchDir is the root directory for per-batch state documents.
	BatchDir string
	// CollectLimit caps how many records one cycle offers the prompter.
	// Zero means no cap.
	CollectLimit         int
	OriginalsBatchSize   int
	AlternativeBatchSize int
	// DailyLimit caps batch jobs submitted per UTC day.
	DailyLimit     int
	PollInterval   time.Duration
	SyncRetryLimit int
	// Effects selects which variants are derived from confirmed
	// originals.
	Effects []alternatives.Effect
}

func (c Config) withDefaults() Config {
	if c.OriginalsBatchSize <= 0 {
		c.OriginalsBatchSize = DefaultOriginalsBatchSize
	}
	if c.AlternativeBatchSize <= 0 {
		c.AlternativeBatchSize = DefaultAlternativeBatchSize
	}
	if c.DailyLimit <= 0 {
		c.DailyLimit = DefaultDailyLimit
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.SyncRetryLimit <= 0 {
		c.SyncRetryLimit = DefaultSyncRetryLimit
	}
	if c.Effects == nil {
		c.Effects = alternatives.AllEffects()
	}
	return c
}

// Orchestrator owns one pipeline run over a catalogue, a batch registry
// and a provider. It is not safe for concurrent use; run one instance
// per catalogue.
type Orchestrator struct {
	store    *mediastore.Store
	registry *batch.Registry
	provider aiprov.Provider
	prompter DescriptionPrompter
	logger   *slog.Logger
	cfg      Config

	// quotaExhausted is set by send when ready batches were held back
	// only because the daily submission limit was reached.
	quotaExhausted bool

	// Seams for tests and for swapping the derivation backend.
	now           func() time.Time
	sleep         func(ctx context.Context, d time.Duration)
	deriveVariant func(srcPath string, e alternatives.Effect) (string, error)
	encodeImage   func(path string) (string, error)
}

// New builds an orchestrator over the given collaborators.
func New(store *mediastore.Store, registry *batch.Registry, provider aiprov.Provider, prompter DescriptionPrompter, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:    store,
		registry: registry,
		provider: provider,
		prompter: prompter,
		logger:   logger,
		cfg:      cfg.withDefaults(),

		now:           time.Now,
		sleep:         sleepCtx,
		deriveVariant: alternatives.GenerateVariant,
		encodeImage:   aiprov.EncodeImageBase64,
	}
}

// RunCycle runs one retrieve, send, collect pass. Phase failures are
// collected so a broken provider call cannot starve collection.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	var result *multierror.Error
	if err := o.retrieve(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("retrieve: %w", err))
	}
	if ctx.Err() != nil {
		return result.ErrorOrNil()
	}
	if err := o.send(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("send: %w", err))
	}
	if ctx.Err() != nil {
		return result.ErrorOrNil()
	}
	if err := o.collect(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("collect: %w", err))
	}
	return result.ErrorOrNil()
}

// Poll repeats RunCycle on the configured interval. With wait zero it
// runs until no batch is in flight or ready; with a positive wait it
// runs for that duration. Cancellation through ctx stops either mode.
func (o *Orchestrator) Poll(ctx context.Context, wait time.Duration) error {
	var deadline time.Time
	if wait > 0 {
		deadline = o.now().Add(wait)
	}

	for {
		if err := o.RunCycle(ctx); err != nil {
			o.logger.Error("cycle finished with errors", "error", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if wait > 0 {
			if !o.now().Before(deadline) {
				return nil
			}
		} else if o.idle() {
			return nil
		}
		o.sleep(ctx, o.cfg.PollInterval)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// idle reports whether the poll loop has nothing left to wait for:
// no batch is at the provider and no ready batch can still go out.
// Ready batches held back by the daily quota count as idle, since they
// cannot move before the UTC day rolls over.
func (o *Orchestrator) idle() bool {
	if len(o.registry.ActiveBatches(batch.StatusSent)) > 0 {
		return false
	}
	if len(o.registry.ActiveBatches(batch.StatusReady)) == 0 {
		return true
	}
	return o.quotaExhausted
}

// CancelBatch aborts one active batch: a submitted provider job is
// cancelled first, then every file the batch still owns is released for
// collection and the batch leaves the registry without entering the
// completed history.
func (o *Orchestrator) CancelBatch(ctx context.Context, id string) error {
	info, ok := o.registry.Batch(id)
	if !ok {
		return fmt.Errorf("unknown batch %s", id)
	}
	if info.Status == batch.StatusSent && info.ProviderJobID != "" {
		err := o.provider.CancelBatchJob(ctx, info.ProviderJobID)
		if err != nil && !errors.Is(err, aiprov.ErrUnsupported) {
			return fmt.Errorf("failed to cancel provider job %s: %w", info.ProviderJobID, err)
		}
	}

	st, err := o.loadState(id)
	switch {
	case err == nil:
		for _, entry := range st.Files {
			// Files already reassigned to a split batch stay registered.
			owner, owned := o.registry.BatchForFile(entry.FilePath)
			if !owned || owner != id {
				continue
			}
			if err := o.registry.UnregisterFile(entry.FilePath); err != nil {
				return err
			}
		}
	case errors.Is(err, os.ErrNotExist):
		// A batch without a state document has nothing to release.
	default:
		return err
	}

	if err := o.registry.DropBatch(id); err != nil {
		return err
	}
	o.logger.Info("batch cancelled", "batch", id, "status", info.Status, "files", info.FileCount)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// customID correlates a file with its provider result. A short digest of
// the normalized path keeps files with the same basename in different
// directories apart, and the batch id suffix keeps the id unique when a
// file migrates between batches.
func customID(path, batchID string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	sum := sha1.Sum([]byte(mediastore.NormalizePath(path)))
	return fmt.Sprintf("%s_%x_%s", stem, sum[:4], batchID)
}

// splitKeywords undoes the comma-joined keyword storage format.
func splitKeywords(s string) []string {
	var out []string
	for _, kw := range strings.Split(s, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

// entryEditorial converts an entry's editorial context for the prompt
// builder. Nil means commercial content.
func entryEditorial(entry batch.FileEntry) *prompts.EditorialData {
	if !entry.Editorial || entry.EditorialData == nil {
		return nil
	}
	return &prompts.EditorialData{
		City:    entry.EditorialData.City,
		Country: entry.EditorialData.Country,
		Date:    entry.EditorialData.Date,
	}
}

// parseMetadata extracts the JSON object from a provider response that
// may be wrapped in markdown fences or prose.
func parseMetadata(content string) (mediastore.Metadata, json.RawMessage, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return mediastore.Metadata{}, nil, fmt.Errorf("no JSON object in provider response")
	}
	raw := json.RawMessage(content[start : end+1])
	var meta mediastore.Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return mediastore.Metadata{}, nil, fmt.Errorf("failed to parse provider response: %w", err)
	}
	return meta, raw, nil
}

func (o *Orchestrator) loadState(id string) (*batch.State, error) {
	return batch.LoadState(o.cfg.BatchDir, id)
}

// collectingBatch returns a collecting batch of type t with spare
// capacity, creating one when none exists.
func (o *Orchestrator) collectingBatch(t batch.BatchType, sizeLimit int) (string, *batch.State, error) {
	for _, ab := range o.registry.ActiveBatches(batch.StatusCollecting) {
		if ab.Info.Type != t || ab.Info.FileCount >= ab.Info.SizeLimit {
			continue
		}
		st, err := o.loadState(ab.ID)
		if err != nil {
			return "", nil, err
		}
		return ab.ID, st, nil
	}

	id, err := o.registry.CreateBatch(t, sizeLimit, o.now())
	if err != nil {
		return "", nil, err
	}
	st, err := batch.NewState(o.cfg.BatchDir, id)
	if err != nil {
		return "", nil, err
	}
	o.logger.Info("batch opened", "batch", id, "type", t, "size_limit", sizeLimit)
	return id, st, nil
}
