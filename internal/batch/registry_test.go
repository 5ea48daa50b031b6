package batch

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := OpenRegistry(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)
	return r
}

func TestNewBatchIDFormat(t *testing.T) {
	id := NewBatchID()
	assert.True(t, strings.HasPrefix(id, "batch_"))
	assert.Len(t, id, len("batch_")+8)
	assert.NotEqual(t, id, NewBatchID())
}

func TestCreateBatchAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	r, err := OpenRegistry(path)
	require.NoError(t, err)

	now := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	id, err := r.CreateBatch(TypeOriginals, 10, now)
	require.NoError(t, err)

	// A second open of the same document sees the batch.
	r2, err := OpenRegistry(path)
	require.NoError(t, err)
	info, ok := r2.Batch(id)
	require.True(t, ok)
	assert.Equal(t, StatusCollecting, info.Status)
	assert.Equal(t, 10, info.SizeLimit)
	assert.Equal(t, TypeOriginals, info.Type)
}

func TestReverseIndexAllowsAtMostOneActiveBatchPerFile(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	b1, err := r.CreateBatch(TypeOriginals, 10, now)
	require.NoError(t, err)
	b2, err := r.CreateBatch(TypeOriginals, 10, now)
	require.NoError(t, err)

	require.NoError(t, r.RegisterFile(`C:\Foto\A.jpg`, b1))
	// Same file, same batch: idempotent.
	require.NoError(t, r.RegisterFile("c:/foto/a.jpg", b1))
	// Same file, different batch: refused.
	require.Error(t, r.RegisterFile("C:/foto/a.jpg", b2))

	owner, ok := r.BatchForFile("c:/FOTO/a.jpg")
	require.True(t, ok)
	assert.Equal(t, b1, owner)
}

func TestCompleteBatchClearsReverseIndex(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	id, err := r.CreateBatch(TypeOriginals, 10, now)
	require.NoError(t, err)
	require.NoError(t, r.RegisterFile("C:/foto/a.jpg", id))
	require.NoError(t, r.RegisterFile("C:/foto/b.jpg", id))

	require.NoError(t, r.CompleteBatch(id, now))

	_, ok := r.Batch(id)
	assert.False(t, ok)
	_, ok = r.BatchForFile("C:/foto/a.jpg")
	assert.False(t, ok)
	_, ok = r.BatchForFile("C:/foto/b.jpg")
	assert.False(t, ok)
}

func TestActiveBatchesFilterAndOrder(t *testing.T) {
	r := newTestRegistry(t)
	older, err := r.CreateBatch(TypeOriginals, 10, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	newer, err := r.CreateBatch(AlternativeType("_bw"), 10, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, r.SetStatus(newer, StatusReady))

	all := r.ActiveBatches("")
	require.Len(t, all, 2)
	assert.Equal(t, older, all[0].ID)

	ready := r.ActiveBatches(StatusReady)
	require.Len(t, ready, 1)
	assert.Equal(t, newer, ready[0].ID)
	assert.True(t, ready[0].Info.Type.IsAlternative())
}

func TestMarkSentRecordsJobID(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Now()
	id, err := r.CreateBatch(TypeOriginals, 10, now)
	require.NoError(t, err)
	require.NoError(t, r.SetStatus(id, StatusReady))
	require.NoError(t, r.MarkSent(id, "prov-job-1", now))

	info, ok := r.Batch(id)
	require.True(t, ok)
	assert.Equal(t, StatusSent, info.Status)
	assert.Equal(t, "prov-job-1", info.ProviderJobID)
	require.NotNil(t, info.SentAt)
}

func TestDailyCountsArePerUTCDay(t *testing.T) {
	r := newTestRegistry(t)
	day := DayKey(time.Date(2024, 3, 9, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, "2024-03-09", day)

	assert.Equal(t, 0, r.DailyCount(day))
	require.NoError(t, r.IncrementDailyCount(day))
	require.NoError(t, r.IncrementDailyCount(day))
	assert.Equal(t, 2, r.DailyCount(day))
	assert.Equal(t, 0, r.DailyCount("2024-03-10"))
}

func TestAlternativesGeneratedGuard(t *testing.T) {
	r := newTestRegistry(t)
	assert.False(t, r.AlternativesGenerated("C:/foto/a.jpg"))
	require.NoError(t, r.MarkAlternativesGenerated(`C:\Foto\A.jpg`, time.Now()))
	assert.True(t, r.AlternativesGenerated("c:/foto/a.jpg"))
}

func TestCleanupCompletedPrunesOldHistory(t *testing.T) {
	r := newTestRegistry(t)
	now := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

	old, err := r.CreateBatch(TypeOriginals, 10, now.Add(-60*24*time.Hour))
	require.NoError(t, err)
	require.NoError(t, r.CompleteBatch(old, now.Add(-40*24*time.Hour)))
	recent, err := r.CreateBatch(TypeOriginals, 10, now)
	require.NoError(t, err)
	require.NoError(t, r.CompleteBatch(recent, now))

	removed, err := r.CleanupCompleted(30*24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
