package storage

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T, stateDir string, resume bool) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(stateDir, "test-crawl", resume, testEntry())
	require.NoError(t, err)
	return store
}

func TestBadgerStore_RecordAndGet(t *testing.T) {
	store := newTestStore(t, t.TempDir(), false)
	defer store.Close()

	result := &TaskResult{
		State:         TaskStateDelivered,
		HTTPStatus:    200,
		RedirectTimes: 1,
		FinishedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Record("https://example.com/page", result))

	got, found, err := store.Get("https://example.com/page")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, TaskStateDelivered, got.State)
	assert.Equal(t, 200, got.HTTPStatus)
	assert.Equal(t, 1, got.RedirectTimes)
}

func TestBadgerStore_GetMissing(t *testing.T) {
	store := newTestStore(t, t.TempDir(), false)
	defer store.Close()

	got, found, err := store.Get("https://example.com/never-crawled")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestBadgerStore_RecordOverwrites(t *testing.T) {
	store := newTestStore(t, t.TempDir(), false)
	defer store.Close()

	url := "https://example.com/flaky"
	require.NoError(t, store.Record(url, &TaskResult{State: TaskStateFailed, ErrorType: "Network_Timeout"}))
	require.NoError(t, store.Record(url, &TaskResult{State: TaskStateDelivered, HTTPStatus: 200}))

	got, found, err := store.Get(url)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, TaskStateDelivered, got.State)

	// Overwrite does not double count
	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBadgerStore_CountTracksNewKeys(t *testing.T) {
	store := newTestStore(t, t.TempDir(), false)
	defer store.Close()

	for _, url := range []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"} {
		require.NoError(t, store.Record(url, &TaskResult{State: TaskStateDelivered}))
	}
	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestBadgerStore_ResumeKeepsState(t *testing.T) {
	dir := t.TempDir()

	store := newTestStore(t, dir, false)
	require.NoError(t, store.Record("https://example.com/done", &TaskResult{State: TaskStateDelivered}))
	require.NoError(t, store.Close())

	resumed := newTestStore(t, dir, true)
	defer resumed.Close()

	_, found, err := resumed.Get("https://example.com/done")
	require.NoError(t, err)
	assert.True(t, found)

	count, err := resumed.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBadgerStore_FreshStartWipesState(t *testing.T) {
	dir := t.TempDir()

	store := newTestStore(t, dir, false)
	require.NoError(t, store.Record("https://example.com/old", &TaskResult{State: TaskStateDelivered}))
	require.NoError(t, store.Close())

	fresh := newTestStore(t, dir, false)
	defer fresh.Close()

	_, found, err := fresh.Get("https://example.com/old")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTaskState_String(t *testing.T) {
	assert.Equal(t, "unset", TaskStateUnset.String())
	assert.Equal(t, "delivered", TaskStateDelivered.String())
	assert.Equal(t, "failed", TaskStateFailed.String())
}
