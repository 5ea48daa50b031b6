package orchestrator

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dannyjpn/photostock/internal/aiprov"
	"github.com/dannyjpn/photostock/internal/alternatives"
	"github.com/dannyjpn/photostock/internal/batch"
	"github.com/dannyjpn/photostock/internal/mediastore"
)

type fakeProvider struct {
	createErrs []error
	created    [][]aiprov.Request
	jobs       map[string]*aiprov.Job
	genText    func(aiprov.Request) (*aiprov.Result, error)
	jobsOn     int
	jobsOnErr  error
	nextJob    int
	cancelled  []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		jobs:      map[string]*aiprov.Job{},
		jobsOnErr: aiprov.ErrUnsupported,
	}
}

func (p *fakeProvider) Name() string         { return "fake" }
func (p *fakeProvider) SupportsBatch() bool  { return true }
func (p *fakeProvider) SupportsImages() bool { return true }

func (p *fakeProvider) CreateBatchJob(_ context.Context, requests []aiprov.Request) (string, error) {
	if len(p.createErrs) > 0 {
		err := p.createErrs[0]
		p.createErrs = p.createErrs[1:]
		return "", err
	}
	p.nextJob++
	id := fmt.Sprintf("job-%d", p.nextJob)
	p.created = append(p.created, requests)
	p.jobs[id] = &aiprov.Job{ID: id, Status: aiprov.JobPending}
	return id, nil
}

func (p *fakeProvider) GetBatchJob(_ context.Context, jobID string) (*aiprov.Job, error) {
	job, ok := p.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("unknown job %s", jobID)
	}
	return job, nil
}

func (p *fakeProvider) CancelBatchJob(_ context.Context, jobID string) error {
	p.cancelled = append(p.cancelled, jobID)
	return nil
}

func (p *fakeProvider) GenerateText(_ context.Context, req aiprov.Request) (*aiprov.Result, error) {
	if p.genText != nil {
		return p.genText(req)
	}
	return nil, errors.New("generate unavailable")
}

func (p *fakeProvider) JobsCreatedOn(context.Context, time.Time) (int, error) {
	return p.jobsOn, p.jobsOnErr
}

type scriptedPrompter struct {
	decisions []PromptDecision
	err       error
	asked     int
}

func (p *scriptedPrompter) Decide(mediastore.Record) (PromptDecision, error) {
	p.asked++
	if p.err != nil {
		return PromptDecision{}, p.err
	}
	if len(p.decisions) == 0 {
		return PromptDecision{Action: ActionSave, Description: "test scene"}, nil
	}
	d := p.decisions[0]
	p.decisions = p.decisions[1:]
	return d, nil
}

func catalogueHeader() []string {
	header := []string{
		mediastore.ColFile, mediastore.ColTitle, mediastore.ColDescription,
		mediastore.ColKeywords, mediastore.ColCreateDate, mediastore.ColPrepDate,
		mediastore.ColPath, mediastore.ColOriginal,
	}
	for _, bank := range mediastore.Photobanks {
		header = append(header, bank+mediastore.StatusSuffix, bank+mediastore.CategorySuffix)
	}
	return header
}

func newCatalogueRow(name, path string) map[string]string {
	row := map[string]string{
		mediastore.ColFile:       name,
		mediastore.ColCreateDate: "04.08.2016",
		mediastore.ColPath:       path,
		mediastore.ColOriginal:   mediastore.OriginalYes,
	}
	for _, bank := range mediastore.Photobanks {
		row[bank+mediastore.StatusSuffix] = mediastore.StatusUnprocessed
	}
	return row
}

func writeCatalogue(t *testing.T, rows []map[string]string) *mediastore.Store {
	t.Helper()
	header := catalogueHeader()
	path := filepath.Join(t.TempDir(), "media.csv")

	f, err := os.Create(path)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.Write(header))
	for _, row := range rows {
		line := make([]string, len(header))
		for i, col := range header {
			line[i] = row[col]
		}
		require.NoError(t, w.Write(line))
	}
	w.Flush()
	require.NoError(t, w.Error())
	require.NoError(t, f.Close())

	store, err := mediastore.Load(path)
	require.NoError(t, err)
	return store
}

type testEnv struct {
	o        *Orchestrator
	store    *mediastore.Store
	registry *batch.Registry
	provider *fakeProvider
	prompter *scriptedPrompter
	batchDir string
	mediaDir string
	paths    []string
}

func newTestEnv(t *testing.T, files int, cfg Config) *testEnv {
	t.Helper()
	mediaDir := t.TempDir()

	var rows []map[string]string
	var paths []string
	for i := 0; i < files; i++ {
		name := fmt.Sprintf("photo%02d.jpg", i)
		p := filepath.Join(mediaDir, name)
		require.NoError(t, os.WriteFile(p, []byte("img"), 0o644))
		rows = append(rows, newCatalogueRow(name, p))
		paths = append(paths, p)
	}
	store := writeCatalogue(t, rows)

	batchDir := t.TempDir()
	registry, err := batch.OpenRegistry(filepath.Join(batchDir, "registry.json"))
	require.NoError(t, err)

	provider := newFakeProvider()
	prompter := &scriptedPrompter{}
	cfg.BatchDir = batchDir

	o := New(store, registry, provider, prompter, cfg, slog.Default())
	o.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	o.sleep = func(context.Context, time.Duration) {}
	o.encodeImage = func(string) (string, error) { return "payload", nil }
	o.deriveVariant = func(src string, e alternatives.Effect) (string, error) {
		dst := strings.TrimSuffix(src, filepath.Ext(src)) + e.Tag() + filepath.Ext(src)
		if err := os.WriteFile(dst, []byte("variant"), 0o644); err != nil {
			return "", err
		}
		return dst, nil
	}

	return &testEnv{
		o: o, store: store, registry: registry, provider: provider,
		prompter: prompter, batchDir: batchDir, mediaDir: mediaDir, paths: paths,
	}
}

func TestCollectRollsBatchesAtSizeLimit(t *testing.T) {
	env := newTestEnv(t, 12, Config{OriginalsBatchSize: 10})

	require.NoError(t, env.o.collect(context.Background()))

	ready := env.registry.ActiveBatches(batch.StatusReady)
	require.Len(t, ready, 1)
	assert.Equal(t, 10, ready[0].Info.FileCount)
	assert.Equal(t, batch.TypeOriginals, ready[0].Info.Type)

	collecting := env.registry.ActiveBatches(batch.StatusCollecting)
	require.Len(t, collecting, 1)
	assert.Equal(t, 2, collecting[0].Info.FileCount)

	for _, p := range env.paths {
		_, owned := env.registry.BatchForFile(p)
		assert.True(t, owned, p)
	}

	st, err := batch.LoadState(env.batchDir, ready[0].ID)
	require.NoError(t, err)
	require.Len(t, st.Files, 10)
	assert.Equal(t, batch.EntryDescriptionSaved, st.Files[0].Status)
	assert.Equal(t, "test scene", st.Files[0].UserDescription)
	assert.True(t, strings.HasSuffix(st.Files[0].CustomID, "_"+ready[0].ID))
}

func TestCollectKeepsDuplicateBasenamesApart(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	pathA := filepath.Join(dirA, "photo.jpg")
	pathB := filepath.Join(dirB, "photo.jpg")
	require.NoError(t, os.WriteFile(pathA, []byte("img"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("img"), 0o644))

	store := writeCatalogue(t, []map[string]string{
		newCatalogueRow("photo.jpg", pathA),
		newCatalogueRow("photo.jpg", pathB),
	})
	batchDir := t.TempDir()
	registry, err := batch.OpenRegistry(filepath.Join(batchDir, "registry.json"))
	require.NoError(t, err)
	o := New(store, registry, newFakeProvider(), &scriptedPrompter{}, Config{
		BatchDir:           batchDir,
		OriginalsBatchSize: 10,
	}, slog.Default())

	require.NoError(t, o.collect(context.Background()))

	collecting := registry.ActiveBatches(batch.StatusCollecting)
	require.Len(t, collecting, 1)
	assert.Equal(t, 2, collecting[0].Info.FileCount)

	st, err := batch.LoadState(batchDir, collecting[0].ID)
	require.NoError(t, err)
	require.Len(t, st.Files, 2)
	assert.NotEqual(t, st.Files[0].CustomID, st.Files[1].CustomID)
}

func TestCollectHonorsRejectAndSkip(t *testing.T) {
	env := newTestEnv(t, 3, Config{OriginalsBatchSize: 10})
	env.prompter.decisions = []PromptDecision{
		{Action: ActionReject},
		{Action: ActionSkip},
		{Action: ActionSave, Description: "kept"},
	}

	require.NoError(t, env.o.collect(context.Background()))

	records := env.store.Records()
	assert.Equal(t, mediastore.StatusRejected, records[0].BankStatus("ShutterStock"))
	assert.Equal(t, mediastore.StatusRejected, records[0].BankStatus("Alamy"))

	_, owned := env.registry.BatchForFile(env.paths[1])
	assert.False(t, owned)
	_, owned = env.registry.BatchForFile(env.paths[2])
	assert.True(t, owned)

	// The rejection must survive a reload.
	reloaded, err := mediastore.Load(env.store.Path())
	require.NoError(t, err)
	assert.Equal(t, mediastore.StatusRejected, reloaded.Records()[0].BankStatus("Pond5"))
}

func TestCollectRespectsLimit(t *testing.T) {
	env := newTestEnv(t, 5, Config{OriginalsBatchSize: 10, CollectLimit: 2})

	require.NoError(t, env.o.collect(context.Background()))

	assert.Equal(t, 2, env.prompter.asked)
	collecting := env.registry.ActiveBatches(batch.StatusCollecting)
	require.Len(t, collecting, 1)
	assert.Equal(t, 2, collecting[0].Info.FileCount)
}

func TestSendSubmitsReadyBatch(t *testing.T) {
	env := newTestEnv(t, 2, Config{OriginalsBatchSize: 2})
	ctx := context.Background()
	require.NoError(t, env.o.collect(ctx))

	require.NoError(t, env.o.send(ctx))

	require.Len(t, env.provider.created, 1)
	requests := env.provider.created[0]
	require.Len(t, requests, 2)
	assert.NotEmpty(t, requests[0].ImagePath)
	assert.Contains(t, requests[0].Prompt, "test scene")

	sent := env.registry.ActiveBatches(batch.StatusSent)
	require.Len(t, sent, 1)
	assert.Equal(t, "job-1", sent[0].Info.ProviderJobID)

	st, err := batch.LoadState(env.batchDir, sent[0].ID)
	require.NoError(t, err)
	for _, f := range st.Files {
		assert.Equal(t, batch.EntryBatchSent, f.Status)
	}

	day := batch.DayKey(env.o.now())
	assert.Equal(t, 1, env.registry.DailyCount(day))
}

func TestSendStopsAtDailyLimit(t *testing.T) {
	env := newTestEnv(t, 4, Config{OriginalsBatchSize: 2, DailyLimit: 1})
	ctx := context.Background()
	require.NoError(t, env.o.collect(ctx))
	require.Len(t, env.registry.ActiveBatches(batch.StatusReady), 2)

	require.NoError(t, env.o.send(ctx))

	assert.Len(t, env.provider.created, 1)
	assert.Len(t, env.registry.ActiveBatches(batch.StatusSent), 1)
	assert.Len(t, env.registry.ActiveBatches(batch.StatusReady), 1)
}

func TestSendRetriesNetworkErrors(t *testing.T) {
	env := newTestEnv(t, 2, Config{OriginalsBatchSize: 2})
	ctx := context.Background()
	require.NoError(t, env.o.collect(ctx))

	env.provider.createErrs = []error{
		&aiprov.APIError{Kind: aiprov.FailureNetwork, Message: "gateway timeout"},
		&aiprov.APIError{Kind: aiprov.FailureNetwork, Message: "gateway timeout"},
	}
	require.NoError(t, env.o.send(ctx))

	assert.Len(t, env.provider.created, 1)
	assert.Len(t, env.registry.ActiveBatches(batch.StatusSent), 1)
}

func TestSendRateLimitDefersRemaining(t *testing.T) {
	env := newTestEnv(t, 4, Config{OriginalsBatchSize: 2})
	ctx := context.Background()
	require.NoError(t, env.o.collect(ctx))

	env.provider.createErrs = []error{
		&aiprov.APIError{Kind: aiprov.FailureRateLimit, Message: "too many requests"},
	}
	require.NoError(t, env.o.send(ctx))

	// Both batches stay ready for the next cycle.
	assert.Empty(t, env.provider.created)
	assert.Len(t, env.registry.ActiveBatches(batch.StatusReady), 2)
	assert.Empty(t, env.registry.ActiveBatches(batch.StatusSent))
}

func TestSendAuthFailureAbortsRun(t *testing.T) {
	env := newTestEnv(t, 2, Config{OriginalsBatchSize: 2})
	ctx := context.Background()
	require.NoError(t, env.o.collect(ctx))

	readyID := env.registry.ActiveBatches(batch.StatusReady)[0].ID
	env.provider.createErrs = []error{
		&aiprov.APIError{Kind: aiprov.FailureAuth, StatusCode: 401, Message: "invalid api key"},
	}
	err := env.o.send(ctx)
	require.Error(t, err)

	info, ok := env.registry.Batch(readyID)
	require.True(t, ok)
	assert.Equal(t, batch.StatusError, info.Status)
	assert.Equal(t, "authentication_failed", info.ErrorReason)
}

func TestSendSplitsOnPayloadTooLarge(t *testing.T) {
	env := newTestEnv(t, 4, Config{OriginalsBatchSize: 4})
	ctx := context.Background()
	require.NoError(t, env.o.collect(ctx))

	origID := env.registry.ActiveBatches(batch.StatusReady)[0].ID
	env.provider.createErrs = []error{
		&aiprov.APIError{Kind: aiprov.FailurePayloadTooLarge, StatusCode: 413, Message: "payload size"},
	}
	require.NoError(t, env.o.send(ctx))

	info, ok := env.registry.Batch(origID)
	require.True(t, ok)
	assert.Equal(t, batch.StatusError, info.Status)
	assert.Equal(t, batch.ErrReasonSizeLimitSplit, info.ErrorReason)

	ready := env.registry.ActiveBatches(batch.StatusReady)
	require.Len(t, ready, 2)
	for _, ab := range ready {
		assert.Equal(t, 2, ab.Info.FileCount)
		st, err := batch.LoadState(env.batchDir, ab.ID)
		require.NoError(t, err)
		require.Len(t, st.Files, 2)
		for _, f := range st.Files {
			assert.True(t, strings.HasSuffix(f.CustomID, "_"+ab.ID))
			owner, owned := env.registry.BatchForFile(f.FilePath)
			require.True(t, owned)
			assert.Equal(t, ab.ID, owner)
		}
	}
}

func TestSendChunksOversizedReadyBatch(t *testing.T) {
	env := newTestEnv(t, 5, Config{OriginalsBatchSize: 2})
	ctx := context.Background()

	id, err := env.registry.CreateBatch(batch.TypeOriginals, 2, env.o.now())
	require.NoError(t, err)
	st, err := batch.NewState(env.batchDir, id)
	require.NoError(t, err)
	for _, p := range env.paths {
		require.NoError(t, st.AddFile(batch.FileEntry{
			FilePath:        p,
			CustomID:        customID(p, id),
			EntryType:       batch.EntryOriginal,
			Status:          batch.EntryDescriptionSaved,
			UserDescription: "scene",
		}))
		require.NoError(t, env.registry.RegisterFile(p, id))
		require.NoError(t, env.registry.IncrementFileCount(id))
	}
	require.NoError(t, env.registry.SetStatus(id, batch.StatusReady))

	require.NoError(t, env.o.send(ctx))

	info, ok := env.registry.Batch(id)
	require.True(t, ok)
	assert.Equal(t, batch.StatusError, info.Status)
	assert.Equal(t, batch.ErrReasonSizeLimitSplit, info.ErrorReason)

	var sizes []int
	for _, requests := range env.provider.created {
		sizes = append(sizes, len(requests))
	}
	assert.ElementsMatch(t, []int{2, 2, 1}, sizes)
	assert.Len(t, env.registry.ActiveBatches(batch.StatusSent), 3)
}

const goodResult = "```json\n" +
	`{"title":"Sunset over hills","description":"Golden light over rolling hills.",` +
	`"keywords":["sunset","hills"],"categories":{"shutterstock":["Nature"]}}` +
	"\n```"

func TestRetrieveAppliesResultsAndDerivesVariants(t *testing.T) {
	env := newTestEnv(t, 2, Config{
		OriginalsBatchSize: 2,
		Effects:            []alternatives.Effect{alternatives.EffectBW, alternatives.EffectSharpen},
	})
	ctx := context.Background()
	require.NoError(t, env.o.collect(ctx))
	require.NoError(t, env.o.send(ctx))

	sentID := env.registry.ActiveBatches(batch.StatusSent)[0].ID
	st, err := batch.LoadState(env.batchDir, sentID)
	require.NoError(t, err)
	// Only the first entry gets a result; the second exercises the
	// synchronous retry path with a permanently failing provider.
	env.provider.jobs["job-1"].Status = aiprov.JobCompleted
	env.provider.jobs["job-1"].Results = []aiprov.Result{
		{CustomID: st.Files[0].CustomID, Content: goodResult},
	}

	require.NoError(t, env.o.retrieve(ctx))

	rec, ok := env.store.FindByPath(env.paths[0])
	require.True(t, ok)
	assert.Equal(t, "Sunset over hills", rec[mediastore.ColTitle])
	assert.Equal(t, "sunset, hills", rec[mediastore.ColKeywords])
	assert.Equal(t, "01.03.2026", rec[mediastore.ColPrepDate])
	assert.Equal(t, mediastore.StatusPrepared, rec.BankStatus("ShutterStock"))
	assert.Equal(t, "Nature", rec.BankCategory("ShutterStock"))

	st, err = batch.LoadState(env.batchDir, sentID)
	require.NoError(t, err)
	assert.Equal(t, batch.EntrySavedToCSV, st.Files[0].Status)
	assert.Equal(t, batch.EntryError, st.Files[1].Status)
	assert.Equal(t, "sync_retry_exhausted", st.Files[1].Error)
	assert.Equal(t, DefaultSyncRetryLimit, st.Files[1].RetryCount)

	// The batch is retired even though one entry failed for good.
	_, ok = env.registry.Batch(sentID)
	assert.False(t, ok)
	_, owned := env.registry.BatchForFile(env.paths[0])
	assert.False(t, owned)
	assert.True(t, env.registry.AlternativesGenerated(env.paths[0]))

	records := env.store.Records()
	require.Len(t, records, 4)

	var bwRow, sharpenRow mediastore.Record
	for _, r := range records {
		switch {
		case strings.Contains(r[mediastore.ColFile], "_bw"):
			bwRow = r
		case strings.Contains(r[mediastore.ColFile], "_sharpen"):
			sharpenRow = r
		}
	}
	require.NotNil(t, bwRow)
	require.NotNil(t, sharpenRow)

	assert.Equal(t, mediastore.OriginalNo, sharpenRow[mediastore.ColOriginal])
	assert.Equal(t, "Sunset over hills", sharpenRow[mediastore.ColTitle])
	assert.Equal(t, mediastore.StatusBackup, sharpenRow.BankStatus("ShutterStock"))
	assert.Equal(t, mediastore.StatusBackup, sharpenRow.BankStatus("GettyImages"))

	assert.Equal(t, mediastore.OriginalNo, bwRow[mediastore.ColOriginal])
	assert.Empty(t, bwRow[mediastore.ColTitle])
	assert.Equal(t, mediastore.StatusUnprocessed, bwRow.BankStatus("ShutterStock"))

	// The monochrome variant is queued for its own metadata run and the
	// fed batch is promoted so it goes out next cycle.
	ready := env.registry.ActiveBatches(batch.StatusReady)
	require.Len(t, ready, 1)
	assert.Equal(t, batch.AlternativeType("_bw"), ready[0].Info.Type)
	assert.Equal(t, 1, ready[0].Info.FileCount)

	altState, err := batch.LoadState(env.batchDir, ready[0].ID)
	require.NoError(t, err)
	require.Len(t, altState.Files, 1)
	alt := altState.Files[0]
	assert.Equal(t, batch.EntryAlternative, alt.EntryType)
	assert.Equal(t, batch.EntryDescriptionSaved, alt.Status)
	assert.Equal(t, "_bw", alt.EditTag)
	assert.Equal(t, env.paths[0], alt.OriginalFilePath)
	assert.Equal(t, "Sunset over hills", alt.OriginalTitle)
}

func TestRetrieveSyncRetryRescuesFailedEntries(t *testing.T) {
	env := newTestEnv(t, 2, Config{OriginalsBatchSize: 2, Effects: []alternatives.Effect{}})
	ctx := context.Background()
	require.NoError(t, env.o.collect(ctx))
	require.NoError(t, env.o.send(ctx))

	sentID := env.registry.ActiveBatches(batch.StatusSent)[0].ID
	st, err := batch.LoadState(env.batchDir, sentID)
	require.NoError(t, err)
	env.provider.jobs["job-1"].Status = aiprov.JobCompleted
	env.provider.jobs["job-1"].Results = []aiprov.Result{
		{CustomID: st.Files[0].CustomID, Content: goodResult},
	}
	env.provider.genText = func(req aiprov.Request) (*aiprov.Result, error) {
		return &aiprov.Result{CustomID: req.CustomID, Content: goodResult}, nil
	}

	require.NoError(t, env.o.retrieve(ctx))

	st, err = batch.LoadState(env.batchDir, sentID)
	require.NoError(t, err)
	assert.Equal(t, batch.EntrySavedToCSV, st.Files[0].Status)
	assert.Equal(t, batch.EntrySavedToCSV, st.Files[1].Status)
	assert.Equal(t, 1, st.Files[1].RetryCount)

	rec, ok := env.store.FindByPath(env.paths[1])
	require.True(t, ok)
	assert.Equal(t, "Sunset over hills", rec[mediastore.ColTitle])
}

func TestRetrieveFailedJobMarksBatch(t *testing.T) {
	env := newTestEnv(t, 2, Config{OriginalsBatchSize: 2, Effects: []alternatives.Effect{}})
	ctx := context.Background()
	require.NoError(t, env.o.collect(ctx))
	require.NoError(t, env.o.send(ctx))

	sentID := env.registry.ActiveBatches(batch.StatusSent)[0].ID
	env.provider.jobs["job-1"].Status = aiprov.JobExpired

	require.NoError(t, env.o.retrieve(ctx))

	info, ok := env.registry.Batch(sentID)
	require.True(t, ok)
	assert.Equal(t, batch.StatusError, info.Status)
	assert.Equal(t, string(aiprov.JobExpired), info.ErrorReason)

	st, err := batch.LoadState(env.batchDir, sentID)
	require.NoError(t, err)
	for _, f := range st.Files {
		assert.Equal(t, batch.EntryError, f.Status)
		assert.Equal(t, "sync_retry_exhausted", f.Error)
	}
}

func TestPollReturnsWhenIdle(t *testing.T) {
	env := newTestEnv(t, 0, Config{})
	require.NoError(t, env.o.Poll(context.Background(), 0))
}

func TestPollStopsOnCancel(t *testing.T) {
	env := newTestEnv(t, 2, Config{OriginalsBatchSize: 2})
	ctx, cancel := context.WithCancel(context.Background())
	env.o.sleep = func(context.Context, time.Duration) { cancel() }

	// The batch collected in the first cycle goes out in the next one, so
	// the poller is not idle and reaches the cancelled sleep.
	err := env.o.Poll(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, env.registry.ActiveBatches(batch.StatusReady), 1)
	assert.Empty(t, env.registry.ActiveBatches(batch.StatusSent))
}

func TestPollReturnsWhenQuotaDefersReadyBatches(t *testing.T) {
	env := newTestEnv(t, 2, Config{OriginalsBatchSize: 2, DailyLimit: 1})
	require.NoError(t, env.registry.IncrementDailyCount(batch.DayKey(env.o.now())))

	// The collected batch cannot go out today, so the poller must not
	// spin waiting for the quota to reset.
	require.NoError(t, env.o.Poll(context.Background(), 0))

	assert.Empty(t, env.provider.created)
	assert.Len(t, env.registry.ActiveBatches(batch.StatusReady), 1)
	assert.Equal(t, 2, env.prompter.asked)
}

func TestCancelBatchReleasesFilesAndProviderJob(t *testing.T) {
	env := newTestEnv(t, 2, Config{OriginalsBatchSize: 2})
	ctx := context.Background()
	require.NoError(t, env.o.collect(ctx))
	require.NoError(t, env.o.send(ctx))

	sentID := env.registry.ActiveBatches(batch.StatusSent)[0].ID
	require.NoError(t, env.o.CancelBatch(ctx, sentID))

	assert.Equal(t, []string{"job-1"}, env.provider.cancelled)
	_, ok := env.registry.Batch(sentID)
	assert.False(t, ok)
	for _, p := range env.paths {
		_, owned := env.registry.BatchForFile(p)
		assert.False(t, owned, p)
	}

	// The released records are offered for collection again.
	asked := env.prompter.asked
	require.NoError(t, env.o.collect(ctx))
	assert.Equal(t, asked+2, env.prompter.asked)
}

func TestCancelBatchRejectsUnknownID(t *testing.T) {
	env := newTestEnv(t, 0, Config{})
	err := env.o.CancelBatch(context.Background(), "batch_missing")
	assert.Error(t, err)
}

func TestPollRunsForDuration(t *testing.T) {
	env := newTestEnv(t, 0, Config{})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	env.o.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	cycles := 0
	env.o.sleep = func(context.Context, time.Duration) { cycles++ }
	require.NoError(t, env.o.Poll(context.Background(), 3*time.Second))
	assert.Positive(t, cycles)
}
