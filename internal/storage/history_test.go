package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vodscribe/internal/models"
)

func TestHistoryRetainsMostRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	ledger, err := OpenHistoryLedger(path, 100)
	require.NoError(t, err)

	for i := 0; i < 150; i++ {
		require.NoError(t, ledger.Append(models.HistoryRecord{
			ItemTitle: fmt.Sprintf("item-%03d", i),
			Outcome:   models.OutcomeSuccess,
		}))
	}

	records := ledger.List()
	require.Len(t, records, 100)
	assert.Equal(t, "item-050", records[0].ItemTitle)
	assert.Equal(t, "item-149", records[99].ItemTitle)
	for i := 1; i < len(records); i++ {
		assert.Less(t, records[i-1].ItemTitle, records[i].ItemTitle)
	}

	reopened, err := OpenHistoryLedger(path, 100)
	require.NoError(t, err)
	assert.Equal(t, records[0].ItemTitle, reopened.List()[0].ItemTitle)
	assert.Len(t, reopened.List(), 100)
}

func TestHistoryFindByJobID(t *testing.T) {
	ledger, err := OpenHistoryLedger(filepath.Join(t.TempDir(), "h.json"), 0)
	require.NoError(t, err)

	require.NoError(t, ledger.Append(models.HistoryRecord{JobID: "j1", Detail: "first"}))
	require.NoError(t, ledger.Append(models.HistoryRecord{JobID: "j2"}))
	require.NoError(t, ledger.Append(models.HistoryRecord{JobID: "j1", Detail: "second"}))

	rec, ok := ledger.FindByJobID("j1")
	require.True(t, ok)
	assert.Equal(t, "second", rec.Detail)
	assert.False(t, rec.Timestamp.IsZero())

	_, ok = ledger.FindByJobID("missing")
	assert.False(t, ok)
	_, ok = ledger.FindByJobID("")
	assert.False(t, ok)
}

func TestHistoryAppendWriteFailureKeepsMemory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	ledger, err := OpenHistoryLedger(filepath.Join(dir, "history.json"), 100)
	require.NoError(t, err)
	require.NoError(t, ledger.Append(models.HistoryRecord{JobID: "ok", Outcome: models.OutcomeSuccess}))

	// replace the state directory with a plain file so the next write fails
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o644))

	err = ledger.Append(models.HistoryRecord{JobID: "lost", Outcome: models.OutcomeFailure})
	require.Error(t, err)

	records := ledger.List()
	require.Len(t, records, 1)
	assert.Equal(t, "ok", records[0].JobID)
	_, found := ledger.FindByJobID("lost")
	assert.False(t, found)
}
