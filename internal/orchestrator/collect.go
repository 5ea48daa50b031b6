package orchestrator

import (
	"context"
	"fmt"

	"github.com/dannyjpn/photostock/internal/batch"
	"github.com/dannyjpn/photostock/internal/mediastore"
)

// collect walks unprocessed catalogue records and queues the confirmed
// ones into collecting originals batches. A batch is promoted to ready
// the moment it reaches its size limit.
func (o *Orchestrator) collect(ctx context.Context) error {
	var pending []mediastore.Record
	for _, rec := range o.store.Unprocessed() {
		if _, owned := o.registry.BatchForFile(rec[mediastore.ColPath]); owned {
			continue
		}
		pending = append(pending, rec)
	}
	if len(pending) == 0 {
		o.logger.Debug("nothing to collect")
		return nil
	}
	if o.cfg.CollectLimit > 0 && len(pending) > o.cfg.CollectLimit {
		pending = pending[:o.cfg.CollectLimit]
	}
	o.logger.Info("collecting records", "candidates", len(pending))

	var (
		batchID string
		st      *batch.State
		dirty   bool
	)
	saveIfDirty := func() error {
		if !dirty {
			return nil
		}
		return o.store.Save()
	}

	for _, rec := range pending {
		if ctx.Err() != nil {
			break
		}
		decision, err := o.prompter.Decide(rec)
		if err != nil {
			if saveErr := saveIfDirty(); saveErr != nil {
				return saveErr
			}
			return fmt.Errorf("prompter failed for %s: %w", rec[mediastore.ColFile], err)
		}

		switch decision.Action {
		case ActionSkip:
			continue
		case ActionReject:
			o.store.Reject(rec)
			dirty = true
			o.logger.Info("record rejected", "file", rec[mediastore.ColFile])
			continue
		}

		if st == nil {
			batchID, st, err = o.collectingBatch(batch.TypeOriginals, o.cfg.OriginalsBatchSize)
			if err != nil {
				if saveErr := saveIfDirty(); saveErr != nil {
					return saveErr
				}
				return err
			}
		}

		entry := batch.FileEntry{
			FilePath:        rec[mediastore.ColPath],
			CustomID:        customID(rec[mediastore.ColPath], batchID),
			EntryType:       batch.EntryOriginal,
			Status:          batch.EntryDescriptionSaved,
			UserDescription: decision.Description,
			Editorial:       decision.Editorial,
			EditorialData:   decision.EditorialData,
		}
		if err := st.AddFile(entry); err != nil {
			return err
		}
		if err := o.registry.RegisterFile(entry.FilePath, batchID); err != nil {
			return err
		}
		if err := o.registry.IncrementFileCount(batchID); err != nil {
			return err
		}

		info, ok := o.registry.Batch(batchID)
		if ok && info.FileCount >= info.SizeLimit {
			if err := o.registry.SetStatus(batchID, batch.StatusReady); err != nil {
				return err
			}
			o.logger.Info("batch ready", "batch", batchID, "files", info.FileCount)
			st = nil
		}
	}

	return saveIfDirty()
}
