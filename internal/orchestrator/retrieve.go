package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/dannyjpn/photostock/internal/aiprov"
	"github.com/dannyjpn/photostock/internal/alternatives"
	"github.com/dannyjpn/photostock/internal/batch"
	"github.com/dannyjpn/photostock/internal/mediastore"
	"github.com/dannyjpn/photostock/internal/prompts"
)

const pollWorkers = 4

// retrieve polls every sent batch, applies completed results to the
// catalogue and derives effect variants from confirmed originals.
// Originals are processed before alternatives so the variant batches
// they feed can fill up within the same cycle.
func (o *Orchestrator) retrieve(ctx context.Context) error {
	sent := o.registry.ActiveBatches(batch.StatusSent)
	if len(sent) == 0 {
		return nil
	}
	sort.SliceStable(sent, func(i, j int) bool {
		return !sent[i].Info.Type.IsAlternative() && sent[j].Info.Type.IsAlternative()
	})

	jobs, err := o.pollJobs(ctx, sent)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, ab := range sent {
		if ctx.Err() != nil {
			break
		}
		job, ok := jobs[ab.ID]
		if !ok {
			continue
		}
		switch job.Status {
		case aiprov.JobPending:
			o.logger.Debug("job still pending", "batch", ab.ID, "job", job.ID)
		case aiprov.JobCompleted:
			if err := o.handleCompleted(ctx, ab, job); err != nil {
				result = multierror.Append(result, err)
			}
		case aiprov.JobFailed, aiprov.JobExpired, aiprov.JobCancelled:
			if err := o.handleFailed(ctx, ab, job); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}

	if err := o.finalizeAlternativeBatches(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// pollJobs fetches job snapshots with bounded concurrency. A failed poll
// is logged and dropped; the batch stays sent for the next cycle.
func (o *Orchestrator) pollJobs(ctx context.Context, sent []batch.ActiveBatch) (map[string]*aiprov.Job, error) {
	jobs := make([]*aiprov.Job, len(sent))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(pollWorkers)
	for i, ab := range sent {
		g.Go(func() error {
			job, err := o.provider.GetBatchJob(ctx, ab.Info.ProviderJobID)
			if err != nil {
				o.logger.Warn("failed to poll job",
					"batch", ab.ID, "job", ab.Info.ProviderJobID, "error", err)
				return nil
			}
			jobs[i] = job
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*aiprov.Job, len(sent))
	for i, ab := range sent {
		if jobs[i] != nil {
			out[ab.ID] = jobs[i]
		}
	}
	return out, nil
}

// handleCompleted writes a finished job's results into the catalogue,
// retries the failures synchronously, derives variants and retires the
// batch.
func (o *Orchestrator) handleCompleted(ctx context.Context, ab batch.ActiveBatch, job *aiprov.Job) error {
	st, err := o.loadState(ab.ID)
	if err != nil {
		return err
	}

	results := make(map[string]aiprov.Result, len(job.Results))
	for _, r := range job.Results {
		results[r.CustomID] = r
	}

	saved := 0
	for _, entry := range st.ListByStatus(batch.EntryBatchSent) {
		res, ok := results[entry.CustomID]
		if !ok {
			o.logger.Warn("result missing from job output", "batch", ab.ID, "file", entry.FilePath)
			if err := st.SetStatus(entry.CustomID, batch.EntryBatchFailed, "missing_result"); err != nil {
				return err
			}
			continue
		}
		if err := o.applyResult(st, entry, res.Content); err != nil {
			o.logger.Warn("failed to apply result",
				"batch", ab.ID, "file", entry.FilePath, "error", err)
			continue
		}
		saved++
	}
	if err := o.store.Save(); err != nil {
		return err
	}

	if err := o.syncRetry(ctx, st); err != nil {
		return err
	}
	if !ab.Info.Type.IsAlternative() {
		if err := o.deriveAlternatives(st); err != nil {
			return err
		}
	}

	o.logger.Info("batch completed", "batch", ab.ID, "job", job.ID,
		"saved", saved, "total_tokens", job.Usage.TotalTokens)
	return o.registry.CompleteBatch(ab.ID, o.now())
}

// handleFailed marks the batch errored and gives its entries one last
// chance through the synchronous endpoint.
func (o *Orchestrator) handleFailed(ctx context.Context, ab batch.ActiveBatch, job *aiprov.Job) error {
	o.logger.Error("batch job did not complete",
		"batch", ab.ID, "job", job.ID, "status", job.Status)

	st, err := o.loadState(ab.ID)
	if err != nil {
		return err
	}
	for _, entry := range st.ListByStatus(batch.EntryBatchSent) {
		if err := st.SetStatus(entry.CustomID, batch.EntryBatchFailed, string(job.Status)); err != nil {
			return err
		}
	}
	if err := o.syncRetry(ctx, st); err != nil {
		return err
	}
	return o.registry.MarkError(ab.ID, string(job.Status))
}

// applyResult parses one provider response and writes it into the
// catalogue. Parse and lookup failures move the entry to batch_failed so
// the synchronous retry can pick it up.
func (o *Orchestrator) applyResult(st *batch.State, entry batch.FileEntry, content string) error {
	meta, raw, err := parseMetadata(content)
	if err != nil {
		if setErr := st.SetStatus(entry.CustomID, batch.EntryBatchFailed, "invalid_result"); setErr != nil {
			return setErr
		}
		return err
	}
	rec, ok := o.store.FindByPath(entry.FilePath)
	if !ok {
		if setErr := st.SetStatus(entry.CustomID, batch.EntryBatchFailed, "file_not_found"); setErr != nil {
			return setErr
		}
		return fmt.Errorf("no catalogue record for %s", entry.FilePath)
	}

	o.store.ApplyMetadata(rec, meta, o.now())
	if err := st.UpdateFile(entry.CustomID, func(f *batch.FileEntry) { f.Result = raw }); err != nil {
		return err
	}
	return st.SetStatus(entry.CustomID, batch.EntrySavedToCSV, "")
}

// syncRetry re-runs failed entries through the synchronous endpoint
// until they succeed or exhaust the retry budget.
func (o *Orchestrator) syncRetry(ctx context.Context, st *batch.State) error {
	dirty := false
	for _, failed := range st.ListByStatus(batch.EntryBatchFailed) {
		for {
			if ctx.Err() != nil {
				break
			}
			entry, ok := st.FindByCustomID(failed.CustomID)
			if !ok || entry.Status != batch.EntryBatchFailed {
				break
			}
			if entry.RetryCount >= o.cfg.SyncRetryLimit {
				o.logger.Error("sync retries exhausted", "file", entry.FilePath)
				if err := st.SetStatus(entry.CustomID, batch.EntryError, "sync_retry_exhausted"); err != nil {
					return err
				}
				break
			}
			if err := st.UpdateFile(entry.CustomID, func(f *batch.FileEntry) { f.RetryCount++ }); err != nil {
				return err
			}

			req, skip, err := o.buildSyncRequest(st, *entry)
			if err != nil {
				return err
			}
			if skip {
				break
			}

			res, err := o.provider.GenerateText(ctx, req)
			if err != nil {
				o.logger.Warn("sync retry failed",
					"file", entry.FilePath, "attempt", entry.RetryCount+1, "error", err)
				continue
			}
			if err := o.applyResult(st, *entry, res.Content); err != nil {
				o.logger.Warn("sync retry produced unusable result",
					"file", entry.FilePath, "error", err)
				continue
			}
			dirty = true
			break
		}
	}
	if dirty {
		return o.store.Save()
	}
	return nil
}

// buildSyncRequest rebuilds the provider request for one entry. skip is
// true when the entry was moved to a terminal status instead.
func (o *Orchestrator) buildSyncRequest(st *batch.State, entry batch.FileEntry) (aiprov.Request, bool, error) {
	if entry.EntryType == batch.EntryAlternative {
		prompt := prompts.BuildAlternativePrompt(entry.EditTag,
			entry.OriginalTitle, entry.OriginalDescription,
			splitKeywords(entry.OriginalKeywords), entry.Editorial)
		return aiprov.Request{CustomID: entry.CustomID, Prompt: prompt}, false, nil
	}

	if _, err := os.Stat(entry.FilePath); err != nil {
		if err := st.SetStatus(entry.CustomID, batch.EntryError, "file_not_found"); err != nil {
			return aiprov.Request{}, false, err
		}
		return aiprov.Request{}, true, nil
	}
	if _, err := o.encodeImage(entry.FilePath); err != nil {
		if errors.Is(err, aiprov.ErrImageTooLarge) {
			if err := st.SetStatus(entry.CustomID, batch.EntrySkippedLarge, "image_too_large"); err != nil {
				return aiprov.Request{}, false, err
			}
			if err := o.registry.UnregisterFile(entry.FilePath); err != nil {
				return aiprov.Request{}, false, err
			}
			return aiprov.Request{}, true, nil
		}
		if err := st.SetStatus(entry.CustomID, batch.EntryError, err.Error()); err != nil {
			return aiprov.Request{}, false, err
		}
		return aiprov.Request{}, true, nil
	}

	prompt := prompts.BuildBatchPrompt(entry.UserDescription, entryEditorial(entry))
	return aiprov.Request{
		CustomID:  entry.CustomID,
		Prompt:    prompt,
		ImagePath: entry.FilePath,
	}, false, nil
}

// deriveAlternatives generates effect variants for every confirmed
// original in st, appends their catalogue rows and queues the ones that
// need fresh metadata. A per-file registry flag keeps re-runs from
// duplicating variants.
func (o *Orchestrator) deriveAlternatives(st *batch.State) error {
	dirty := false
	for _, entry := range st.ListByStatus(batch.EntrySavedToCSV) {
		if entry.EntryType != batch.EntryOriginal {
			continue
		}
		if o.registry.AlternativesGenerated(entry.FilePath) {
			continue
		}
		rec, ok := o.store.FindByPath(entry.FilePath)
		if !ok {
			o.logger.Warn("no catalogue record for confirmed file", "file", entry.FilePath)
			continue
		}

		for _, effect := range o.cfg.Effects {
			variantPath, err := o.deriveVariant(entry.FilePath, effect)
			if err != nil {
				o.logger.Warn("failed to derive variant",
					"file", entry.FilePath, "effect", effect.Tag(), "error", err)
				continue
			}

			variant := rec.Clone()
			variant[mediastore.ColFile] = filepath.Base(variantPath)
			variant[mediastore.ColPath] = variantPath
			variant[mediastore.ColOriginal] = mediastore.OriginalNo

			if effect == alternatives.EffectSharpen {
				// Sharpened copies keep the original metadata and go
				// straight to backup status, never through the provider.
				variant[mediastore.ColPrepDate] = o.now().Format("02.01.2006")
				for _, bank := range mediastore.Photobanks {
					variant.SetBankStatus(bank, mediastore.StatusBackup)
				}
				o.store.Append(variant)
				dirty = true
				continue
			}

			variant[mediastore.ColTitle] = ""
			variant[mediastore.ColDescription] = ""
			variant[mediastore.ColKeywords] = ""
			variant[mediastore.ColPrepDate] = ""
			for _, bank := range mediastore.Photobanks {
				variant.SetBankStatus(bank, mediastore.StatusUnprocessed)
			}
			o.store.Append(variant)
			dirty = true

			if err := o.queueAlternative(entry, rec, effect, variantPath); err != nil {
				return err
			}
		}

		if err := o.registry.MarkAlternativesGenerated(entry.FilePath, o.now()); err != nil {
			return err
		}
	}
	if dirty {
		return o.store.Save()
	}
	return nil
}

// queueAlternative adds one derived variant to the collecting batch for
// its effect, carrying the original's confirmed metadata as prompt
// context.
func (o *Orchestrator) queueAlternative(orig batch.FileEntry, rec mediastore.Record, effect alternatives.Effect, variantPath string) error {
	altID, altState, err := o.collectingBatch(batch.AlternativeType(effect.Tag()), o.cfg.AlternativeBatchSize)
	if err != nil {
		return err
	}

	entry := batch.FileEntry{
		FilePath:      variantPath,
		CustomID:      customID(variantPath, altID),
		EntryType:     batch.EntryAlternative,
		Status:        batch.EntryDescriptionSaved,
		Editorial:     orig.Editorial,
		EditorialData: orig.EditorialData,

		EditTag:             effect.Tag(),
		OriginalFilePath:    orig.FilePath,
		OriginalTitle:       rec[mediastore.ColTitle],
		OriginalDescription: rec[mediastore.ColDescription],
		OriginalKeywords:    rec[mediastore.ColKeywords],
	}
	if err := altState.AddFile(entry); err != nil {
		return err
	}
	if err := o.registry.RegisterFile(variantPath, altID); err != nil {
		return err
	}
	if err := o.registry.IncrementFileCount(altID); err != nil {
		return err
	}

	info, ok := o.registry.Batch(altID)
	if ok && info.FileCount >= info.SizeLimit {
		return o.registry.SetStatus(altID, batch.StatusReady)
	}
	return nil
}

// finalizeAlternativeBatches promotes fed variant batches so they are
// submitted without waiting to fill up completely.
func (o *Orchestrator) finalizeAlternativeBatches() error {
	for _, ab := range o.registry.ActiveBatches(batch.StatusCollecting) {
		if !ab.Info.Type.IsAlternative() || ab.Info.FileCount == 0 {
			continue
		}
		if err := o.registry.SetStatus(ab.ID, batch.StatusReady); err != nil {
			return err
		}
		o.logger.Info("variant batch ready",
			"batch", ab.ID, "type", ab.Info.Type, "files", ab.Info.FileCount)
	}
	return nil
}
