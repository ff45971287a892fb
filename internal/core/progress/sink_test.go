package progress

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/core/video"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	// progressLog captures every progress value written, in order.
	progressLog []int
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) CacheGet(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal(b, dest)
}

func (m *memStore) CacheSet(ctx context.Context, key string, val interface{}, ttlSeconds int) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	var rec Record
	if json.Unmarshal(b, &rec) == nil && rec.JobID != "" {
		m.progressLog = append(m.progressLog, rec.Progress)
	}
	return nil
}

func (m *memStore) CacheDel(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type memDurable struct {
	mu        sync.Mutex
	rows      map[string]JobRow
	upsertErr error
}

func newMemDurable() *memDurable { return &memDurable{rows: map[string]JobRow{}} }

func (m *memDurable) UpsertJob(ctx context.Context, row JobRow) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[row.JobID] = row
	return nil
}

func (m *memDurable) FetchJob(ctx context.Context, jobID string) (*JobRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[jobID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func TestInitAndPublish(t *testing.T) {
	fast := newMemStore()
	durable := newMemDurable()
	s := NewSink(fast, durable)
	ctx := context.Background()

	require.NoError(t, s.Init(ctx, "job-1"))
	view := s.Status(ctx, "job-1")
	assert.Equal(t, StatusQueued, view.Status)
	assert.Equal(t, 0, view.Progress)

	r, err := s.Publish(ctx, "job-1", StageAnalyzing, 10, "Analyzing script with AI...", 240)
	require.NoError(t, err)
	assert.Equal(t, 10, r.Progress)
	assert.NoError(t, r.DurableErr)

	view = s.Status(ctx, "job-1")
	assert.Equal(t, StatusProcessing, view.Status)
	assert.Equal(t, "Analyzing script with AI...", view.CurrentStep)
}

func TestPublishClampsRegressions(t *testing.T) {
	s := NewSink(newMemStore(), nil)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, "job-2"))

	_, err := s.Publish(ctx, "job-2", StageFetching, 50, "Downloading videos...", 90)
	require.NoError(t, err)

	r, err := s.Publish(ctx, "job-2", StageSearching, 30, "late write", 0)
	require.NoError(t, err)
	assert.Equal(t, 50, r.Progress)

	view := s.Status(ctx, "job-2")
	assert.Equal(t, 50, view.Progress)
}

func TestTerminalStatesAreWriteOnce(t *testing.T) {
	s := NewSink(newMemStore(), nil)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, "job-3"))

	_, err := s.Complete(ctx, "job-3", video.JobResult{ClipsCount: 2})
	require.NoError(t, err)

	_, err = s.Publish(ctx, "job-3", StageExporting, 90, "straggler", 0)
	assert.ErrorIs(t, err, ErrTerminal)

	_, err = s.Fail(ctx, "job-3", "too late")
	assert.ErrorIs(t, err, ErrTerminal)

	_, err = s.Complete(ctx, "job-3", video.JobResult{ClipsCount: 99})
	assert.ErrorIs(t, err, ErrTerminal)

	view := s.Status(ctx, "job-3")
	assert.Equal(t, StatusCompleted, view.Status)
	require.NotNil(t, view.Result)
	assert.Equal(t, 2, view.Result.ClipsCount)
}

func TestFailKeepsReachedProgress(t *testing.T) {
	s := NewSink(newMemStore(), nil)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, "job-4"))
	_, err := s.Publish(ctx, "job-4", StageFetching, 60, "...", 0)
	require.NoError(t, err)

	r, err := s.Fail(ctx, "job-4", "export exploded")
	require.NoError(t, err)
	assert.Equal(t, 60, r.Progress)

	view := s.Status(ctx, "job-4")
	assert.Equal(t, StatusFailed, view.Status)
	assert.Equal(t, 60, view.Progress)
	assert.Equal(t, "export exploded", view.Error)
}

func TestDurableFailureIsSoft(t *testing.T) {
	fast := newMemStore()
	durable := newMemDurable()
	durable.upsertErr = errors.New("postgrest unavailable")
	s := NewSink(fast, durable)
	ctx := context.Background()

	require.NoError(t, s.Init(ctx, "job-5"))
	r, err := s.Publish(ctx, "job-5", StageSearching, 30, "Searching for videos...", 150)
	require.NoError(t, err, "durable outage must not fail the write")
	assert.ErrorContains(t, r.DurableErr, "postgrest unavailable")

	// Fast store still carries the update.
	view := s.Status(ctx, "job-5")
	assert.Equal(t, 30, view.Progress)
}

func TestStatusFallsBackToDurable(t *testing.T) {
	fast := newMemStore()
	durable := newMemDurable()
	s := NewSink(fast, durable)
	ctx := context.Background()

	require.NoError(t, s.Init(ctx, "job-6"))
	_, err := s.Complete(ctx, "job-6", video.JobResult{ClipsCount: 4})
	require.NoError(t, err)

	// Simulate fast-store TTL expiry.
	require.NoError(t, fast.CacheDel(ctx, "job_progress:job-6", "job_result:job-6"))

	view := s.Status(ctx, "job-6")
	assert.Equal(t, StatusCompleted, view.Status)
	require.NotNil(t, view.Result)
	assert.Equal(t, 4, view.Result.ClipsCount)

	// Terminal absorption survives the expiry too.
	_, err = s.Publish(ctx, "job-6", StageExporting, 90, "zombie", 0)
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestStatusUnknownJobStaysNonTerminal(t *testing.T) {
	s := NewSink(newMemStore(), newMemDurable())
	view := s.Status(context.Background(), "never-seen")
	assert.Equal(t, StatusProcessing, view.Status)
	assert.Empty(t, view.Error)
	assert.Nil(t, view.Result)
}

func TestExpireDropsResultPayload(t *testing.T) {
	fast := newMemStore()
	s := NewSink(fast, nil)
	ctx := context.Background()

	require.NoError(t, s.Init(ctx, "job-7"))
	_, err := s.Complete(ctx, "job-7", video.JobResult{ClipsCount: 1, ExpiresAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, s.Expire(ctx, "job-7"))

	view := s.Status(ctx, "job-7")
	assert.Equal(t, StatusCompleted, view.Status)
	assert.Nil(t, view.Result)
}

func TestLookupReportsUnknownJobs(t *testing.T) {
	s := NewSink(newMemStore(), newMemDurable())
	ctx := context.Background()

	_, ok := s.Lookup(ctx, "never-seen")
	assert.False(t, ok)

	require.NoError(t, s.Init(ctx, "job-9"))
	view, ok := s.Lookup(ctx, "job-9")
	require.True(t, ok)
	assert.Equal(t, StatusQueued, view.Status)
}

func TestForgetDropsCachedRecords(t *testing.T) {
	fast := newMemStore()
	s := NewSink(fast, nil)
	ctx := context.Background()

	require.NoError(t, s.Init(ctx, "job-10"))
	_, err := s.Complete(ctx, "job-10", video.JobResult{ClipsCount: 1})
	require.NoError(t, err)

	require.NoError(t, s.Forget(ctx, "job-10"))
	_, ok := s.Lookup(ctx, "job-10")
	assert.False(t, ok)
	// The read surface degrades to the generic non-terminal view.
	assert.Equal(t, StatusProcessing, s.Status(ctx, "job-10").Status)
}

func TestPublishedSequenceIsMonotonic(t *testing.T) {
	fast := newMemStore()
	s := NewSink(fast, nil)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx, "job-8"))

	for _, p := range []int{10, 20, 15, 40, 35, 90} {
		_, err := s.Publish(ctx, "job-8", StageFetching, p, "", 0)
		require.NoError(t, err)
	}
	for i := 1; i < len(fast.progressLog); i++ {
		assert.GreaterOrEqual(t, fast.progressLog[i], fast.progressLog[i-1])
	}
}
