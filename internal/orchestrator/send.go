package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dannyjpn/photostock/internal/aiprov"
	"github.com/dannyjpn/photostock/internal/batch"
	"github.com/dannyjpn/photostock/internal/prompts"
)

const sendAttempts = 3

// send submits ready batches within the daily quota, oldest first with
// originals prioritized over variant batches.
func (o *Orchestrator) send(ctx context.Context) error {
	o.quotaExhausted = false
	if err := o.chunkOversized(); err != nil {
		return err
	}

	ready := o.registry.ActiveBatches(batch.StatusReady)
	if len(ready) == 0 {
		return nil
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return !ready[i].Info.Type.IsAlternative() && ready[j].Info.Type.IsAlternative()
	})

	now := o.now()
	count := o.dailyCount(ctx, now)

	for i, ab := range ready {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if count >= o.cfg.DailyLimit {
			o.quotaExhausted = true
			o.logger.Info("daily submission limit reached",
				"limit", o.cfg.DailyLimit, "deferred", len(ready)-i)
			return nil
		}

		submitted, deferRest, err := o.sendBatch(ctx, ab)
		if err != nil {
			return err
		}
		if submitted {
			count++
			if err := o.registry.IncrementDailyCount(batch.DayKey(now)); err != nil {
				return err
			}
		}
		if deferRest {
			return nil
		}
	}
	return nil
}

// dailyCount prefers the provider's own job listing over the local
// counter so a restarted process cannot under-count.
func (o *Orchestrator) dailyCount(ctx context.Context, now time.Time) int {
	n, err := o.provider.JobsCreatedOn(ctx, now)
	if err == nil {
		return n
	}
	if !errors.Is(err, aiprov.ErrUnsupported) {
		o.logger.Warn("failed to list provider jobs, using local counter", "error", err)
	}
	return o.registry.DailyCount(batch.DayKey(now))
}

// sendBatch submits one ready batch. It reports whether a job was
// created and whether the remaining batches should wait for the next
// cycle; a returned error aborts the whole send phase.
func (o *Orchestrator) sendBatch(ctx context.Context, ab batch.ActiveBatch) (bool, bool, error) {
	st, err := o.loadState(ab.ID)
	if err != nil {
		return false, false, err
	}

	requests, err := o.buildRequests(st)
	if err != nil {
		return false, false, err
	}
	if len(requests) == 0 {
		o.logger.Warn("batch has no sendable entries", "batch", ab.ID)
		return false, false, o.registry.MarkError(ab.ID, "empty_batch")
	}

	chars := 0
	for _, r := range requests {
		chars += len(r.Prompt)
	}
	o.logger.Info("submitting batch", "batch", ab.ID, "type", ab.Info.Type,
		"requests", len(requests), "estimated_prompt_tokens", chars/4)

	for attempt := 1; ; attempt++ {
		jobID, err := o.provider.CreateBatchJob(ctx, requests)
		if err == nil {
			if err := o.registry.MarkSent(ab.ID, jobID, o.now()); err != nil {
				return false, false, err
			}
			for _, r := range requests {
				if err := st.SetStatus(r.CustomID, batch.EntryBatchSent, ""); err != nil {
					return false, false, err
				}
			}
			o.logger.Info("batch submitted", "batch", ab.ID, "job", jobID)
			return true, false, nil
		}

		kind := aiprov.Classify(err)
		o.logger.Warn("batch submission failed",
			"batch", ab.ID, "kind", kind.String(), "attempt", attempt, "error", err)

		switch kind {
		case aiprov.FailureNetwork:
			if attempt < sendAttempts {
				delay := time.Duration(1<<uint(attempt-1)) * time.Second
				if delay > 10*time.Second {
					delay = 10 * time.Second
				}
				o.sleep(ctx, delay)
				if ctx.Err() != nil {
					return false, false, ctx.Err()
				}
				continue
			}
			return false, false, o.registry.MarkError(ab.ID, "network_error")
		case aiprov.FailureRateLimit:
			// The provider is throttling; everything not yet submitted
			// waits for the next cycle.
			return false, true, nil
		case aiprov.FailureAuth:
			if markErr := o.registry.MarkError(ab.ID, "authentication_failed"); markErr != nil {
				return false, false, markErr
			}
			return false, false, fmt.Errorf("provider authentication failed: %w", err)
		case aiprov.FailurePayloadTooLarge:
			if len(requests) > 1 {
				return false, false, o.splitBatch(ab.ID, st, (len(requests)+1)/2)
			}
			return false, false, o.registry.MarkError(ab.ID, "payload_too_large")
		default:
			return false, false, o.registry.MarkError(ab.ID, err.Error())
		}
	}
}

// buildRequests turns the pending entries of st into provider requests.
// Entries whose file vanished or exceeds the payload ceiling are moved
// to a terminal status instead of poisoning the job.
func (o *Orchestrator) buildRequests(st *batch.State) ([]aiprov.Request, error) {
	var requests []aiprov.Request
	for _, entry := range st.ListByStatus(batch.EntryDescriptionSaved) {
		if entry.EntryType == batch.EntryAlternative {
			prompt := prompts.BuildAlternativePrompt(entry.EditTag,
				entry.OriginalTitle, entry.OriginalDescription,
				splitKeywords(entry.OriginalKeywords), entry.Editorial)
			requests = append(requests, aiprov.Request{CustomID: entry.CustomID, Prompt: prompt})
			continue
		}

		if _, err := os.Stat(entry.FilePath); err != nil {
			o.logger.Warn("file missing, dropping entry", "file", entry.FilePath)
			if err := st.SetStatus(entry.CustomID, batch.EntryError, "file_not_found"); err != nil {
				return nil, err
			}
			continue
		}
		// Encode up front so one oversized image cannot fail the whole
		// job at submission time.
		if _, err := o.encodeImage(entry.FilePath); err != nil {
			if errors.Is(err, aiprov.ErrImageTooLarge) {
				o.logger.Warn("image too large, skipping entry", "file", entry.FilePath)
				if err := st.SetStatus(entry.CustomID, batch.EntrySkippedLarge, "image_too_large"); err != nil {
					return nil, err
				}
				if err := o.registry.UnregisterFile(entry.FilePath); err != nil {
					return nil, err
				}
				continue
			}
			if err := st.SetStatus(entry.CustomID, batch.EntryError, err.Error()); err != nil {
				return nil, err
			}
			continue
		}

		prompt := prompts.BuildBatchPrompt(entry.UserDescription, entryEditorial(entry))
		requests = append(requests, aiprov.Request{
			CustomID:  entry.CustomID,
			Prompt:    prompt,
			ImagePath: entry.FilePath,
		})
	}
	return requests, nil
}

// chunkOversized replaces any ready batch holding more files than its
// size limit with limit-sized splits.
func (o *Orchestrator) chunkOversized() error {
	for _, ab := range o.registry.ActiveBatches(batch.StatusReady) {
		if ab.Info.SizeLimit <= 0 || ab.Info.FileCount <= ab.Info.SizeLimit {
			continue
		}
		st, err := o.loadState(ab.ID)
		if err != nil {
			return err
		}
		if err := o.splitBatch(ab.ID, st, ab.Info.SizeLimit); err != nil {
			return err
		}
	}
	return nil
}

// splitBatch moves the pending entries of batch id into new ready
// batches of at most chunkSize files and retires the original.
func (o *Orchestrator) splitBatch(id string, st *batch.State, chunkSize int) error {
	info, ok := o.registry.Batch(id)
	if !ok {
		return fmt.Errorf("unknown batch %s", id)
	}
	entries := st.ListByStatus(batch.EntryDescriptionSaved)

	for start := 0; start < len(entries); start += chunkSize {
		chunk := entries[start:min(start+chunkSize, len(entries))]

		newID, err := o.registry.CreateBatch(info.Type, chunkSize, o.now())
		if err != nil {
			return err
		}
		newState, err := batch.NewState(o.cfg.BatchDir, newID)
		if err != nil {
			return err
		}
		for _, entry := range chunk {
			entry.CustomID = customID(entry.FilePath, newID)
			if err := newState.AddFile(entry); err != nil {
				return err
			}
			if err := o.registry.ReassignFile(entry.FilePath, newID); err != nil {
				return err
			}
			if err := o.registry.IncrementFileCount(newID); err != nil {
				return err
			}
		}
		if err := o.registry.SetStatus(newID, batch.StatusReady); err != nil {
			return err
		}
		o.logger.Info("batch split", "from", id, "to", newID, "files", len(chunk))
	}

	return o.registry.MarkError(id, batch.ErrReasonSizeLimitSplit)
}
