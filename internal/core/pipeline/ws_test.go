package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/core/progress"
)

type frameRecorder struct {
	mu     sync.Mutex
	frames []*progress.StatusView
}

func (r *frameRecorder) WriteJSON(v interface{}) error {
	view, ok := v.(*progress.StatusView)
	if !ok {
		return errors.New("unexpected frame type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, view)
	return nil
}

func (r *frameRecorder) snapshot() []*progress.StatusView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*progress.StatusView(nil), r.frames...)
}

type brokenConn struct{}

func (brokenConn) WriteJSON(v interface{}) error { return errors.New("client went away") }

func TestProgressStreamClosesOnTerminal(t *testing.T) {
	f := newFixture(t, Collaborators{
		Planner:   &stubPlanner{plan: twoScenePlan()},
		Searcher:  &stubSearcher{},
		Extractor: &stubExtractor{},
	})
	view := f.runJob(t, "job-ws-done", "script")
	require.Equal(t, progress.StatusCompleted, view.Status)

	rec := &frameRecorder{}
	h := NewHandler(f.svc)
	h.streamProgress(rec, "job-ws-done", time.Millisecond)

	frames := rec.snapshot()
	require.Len(t, frames, 1, "a terminal job gets one final frame")
	assert.Equal(t, progress.StatusCompleted, frames[0].Status)
	assert.Equal(t, 100, frames[0].Progress)
	assert.NotNil(t, frames[0].Result)
}

func TestProgressStreamFollowsJobToFailure(t *testing.T) {
	f := newFixture(t, Collaborators{})
	ctx := context.Background()
	require.NoError(t, f.sink.Init(ctx, "job-ws-live"))

	rec := &frameRecorder{}
	h := NewHandler(f.svc)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.streamProgress(rec, "job-ws-live", time.Millisecond)
	}()

	// Let the stream push a few non-terminal frames, then end the job.
	time.Sleep(10 * time.Millisecond)
	_, err := f.sink.Fail(ctx, "job-ws-live", "upstream outage")
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after the job failed")
	}

	frames := rec.snapshot()
	require.NotEmpty(t, frames)
	assert.Equal(t, progress.StatusQueued, frames[0].Status)
	last := frames[len(frames)-1]
	assert.Equal(t, progress.StatusFailed, last.Status)
	assert.Equal(t, "upstream outage", last.Error)
}

func TestProgressStreamStopsOnWriteError(t *testing.T) {
	f := newFixture(t, Collaborators{})
	require.NoError(t, f.sink.Init(context.Background(), "job-ws-gone"))

	h := NewHandler(f.svc)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		h.streamProgress(brokenConn{}, "job-ws-gone", time.Hour)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("stream kept polling after the client disconnected")
	}
}
