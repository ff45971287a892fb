package progress

import (
	"context"
	"errors"
	"time"

	"reelforge/internal/core/video"
	"reelforge/internal/logger"
)

// ErrTerminal is returned for writes against a job already Completed or
// Failed. Terminal states are write-once.
var ErrTerminal = errors.New("job is in a terminal state")

const (
	ttlSeconds = 3600

	progressKeyPrefix = "job_progress:"
	resultKeyPrefix   = "job_result:"
)

func progressKey(id string) string { return progressKeyPrefix + id }
func resultKey(id string) string   { return resultKeyPrefix + id }

// FastStore is the low-latency ephemeral store (Redis in production).
type FastStore interface {
	CacheGet(ctx context.Context, key string, dest interface{}) error
	CacheSet(ctx context.Context, key string, val interface{}, ttlSeconds int) error
	CacheDel(ctx context.Context, keys ...string) error
}

// DurableStore is the best-effort persistent record (Supabase in
// production). May be absent entirely.
type DurableStore interface {
	UpsertJob(ctx context.Context, row JobRow) error
	FetchJob(ctx context.Context, jobID string) (*JobRow, error)
}

// Receipt reports what a write actually did. DurableErr carries a swallowed
// secondary-store failure so callers (and tests) can see the soft-failure
// path without it ever failing the job.
type Receipt struct {
	Progress   int
	DurableErr error
}

// Sink is the dual-write progress/result store. Writes go to the fast store
// and, best effort, to the durable store. Progress never decreases for a
// job and terminal states absorb all later writes.
type Sink struct {
	fast    FastStore
	durable DurableStore
	log     *logger.Logger
}

func NewSink(fast FastStore, durable DurableStore) *Sink {
	return &Sink{fast: fast, durable: durable, log: logger.New("ProgressSink")}
}

// Init registers a freshly submitted job at stage queued, progress 0.
func (s *Sink) Init(ctx context.Context, jobID string) error {
	rec := Record{
		JobID:     jobID,
		Stage:     StageQueued,
		Status:    StatusQueued,
		Progress:  0,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.fast.CacheSet(ctx, progressKey(jobID), rec, ttlSeconds); err != nil {
		return err
	}
	s.writeDurable(ctx, JobRow{Record: rec, CreatedAt: rec.UpdatedAt})
	return nil
}

// Publish records a stage transition. The progress value is clamped so the
// published sequence is non-decreasing even if a caller misbehaves.
func (s *Sink) Publish(ctx context.Context, jobID string, stage Stage, progress int, step string, etaSeconds int) (Receipt, error) {
	prev, _ := s.load(ctx, jobID)
	if prev != nil && prev.Stage.Terminal() {
		return Receipt{Progress: prev.Progress}, ErrTerminal
	}
	if prev != nil && progress < prev.Progress {
		s.log.LogWarnf("job %s: clamping progress %d -> %d", jobID, progress, prev.Progress)
		progress = prev.Progress
	}

	rec := Record{
		JobID:       jobID,
		Stage:       stage,
		Status:      stage.Status(),
		Progress:    progress,
		CurrentStep: step,
		EtaSeconds:  etaSeconds,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.fast.CacheSet(ctx, progressKey(jobID), rec, ttlSeconds); err != nil {
		return Receipt{}, err
	}
	durableErr := s.writeDurable(ctx, JobRow{Record: rec, CreatedAt: rec.UpdatedAt})
	return Receipt{Progress: progress, DurableErr: durableErr}, nil
}

// Complete moves the job to its terminal Completed state with the result
// payload attached.
func (s *Sink) Complete(ctx context.Context, jobID string, result video.JobResult) (Receipt, error) {
	prev, _ := s.load(ctx, jobID)
	if prev != nil && prev.Stage.Terminal() {
		return Receipt{Progress: prev.Progress}, ErrTerminal
	}

	now := time.Now().UTC()
	rec := Record{
		JobID:       jobID,
		Stage:       StageCompleted,
		Status:      StatusCompleted,
		Progress:    100,
		CurrentStep: "Completed",
		UpdatedAt:   now,
	}
	if err := s.fast.CacheSet(ctx, resultKey(jobID), result, ttlSeconds); err != nil {
		return Receipt{}, err
	}
	if err := s.fast.CacheSet(ctx, progressKey(jobID), rec, ttlSeconds); err != nil {
		return Receipt{}, err
	}
	durableErr := s.writeDurable(ctx, JobRow{
		Record:      rec,
		Result:      &result,
		CreatedAt:   now,
		CompletedAt: &now,
	})
	return Receipt{Progress: 100, DurableErr: durableErr}, nil
}

// Fail moves the job to its terminal Failed state, keeping whatever
// progress it had reached.
func (s *Sink) Fail(ctx context.Context, jobID string, errMsg string) (Receipt, error) {
	prev, _ := s.load(ctx, jobID)
	if prev != nil && prev.Stage.Terminal() {
		return Receipt{Progress: prev.Progress}, ErrTerminal
	}

	progress := 0
	if prev != nil {
		progress = prev.Progress
	}
	now := time.Now().UTC()
	rec := Record{
		JobID:     jobID,
		Stage:     StageFailed,
		Status:    StatusFailed,
		Progress:  progress,
		Error:     errMsg,
		UpdatedAt: now,
	}
	if err := s.fast.CacheSet(ctx, progressKey(jobID), rec, ttlSeconds); err != nil {
		return Receipt{}, err
	}
	durableErr := s.writeDurable(ctx, JobRow{Record: rec, CreatedAt: now, CompletedAt: &now})
	return Receipt{Progress: progress, DurableErr: durableErr}, nil
}

// Status serves the read surface: fast store first, durable second, and a
// generic "processing" view when neither is populated. It never fabricates
// a terminal status.
func (s *Sink) Status(ctx context.Context, jobID string) *StatusView {
	if view, ok := s.Lookup(ctx, jobID); ok {
		return view
	}
	// Neither store knows the job: the fast record may simply have expired
	// mid-run. Report generic processing rather than guessing a terminal.
	return &StatusView{JobID: jobID, Status: StatusProcessing, CurrentStep: "Processing..."}
}

// Lookup is Status without the generic fallback: ok is false when neither
// store has a record for the job id.
func (s *Sink) Lookup(ctx context.Context, jobID string) (*StatusView, bool) {
	var rec Record
	if err := s.fast.CacheGet(ctx, progressKey(jobID), &rec); err == nil && rec.JobID != "" {
		view := viewFromRecord(rec)
		if rec.Stage == StageCompleted {
			var result video.JobResult
			if err := s.fast.CacheGet(ctx, resultKey(jobID), &result); err == nil {
				view.Result = &result
			}
		}
		return view, true
	}

	if s.durable != nil {
		if row, err := s.durable.FetchJob(ctx, jobID); err == nil && row != nil {
			view := viewFromRecord(row.Record)
			view.Result = row.Result
			return view, true
		}
	}
	return nil, false
}

// Expire drops the cached result payload once its artifacts are gone, so a
// stale download link stops resolving. The progress record itself stays.
func (s *Sink) Expire(ctx context.Context, jobID string) error {
	return s.fast.CacheDel(ctx, resultKey(jobID))
}

// Forget removes the job's fast-store records entirely. Used when a job is
// deleted by its owner; the durable row is kept as an audit trail.
func (s *Sink) Forget(ctx context.Context, jobID string) error {
	return s.fast.CacheDel(ctx, progressKey(jobID), resultKey(jobID))
}

func viewFromRecord(rec Record) *StatusView {
	return &StatusView{
		JobID:       rec.JobID,
		Status:      rec.Status,
		Progress:    rec.Progress,
		CurrentStep: rec.CurrentStep,
		EtaSeconds:  rec.EtaSeconds,
		Error:       rec.Error,
	}
}

// load fetches the latest record, consulting the durable store when the
// fast record has expired so terminal absorption survives TTL.
func (s *Sink) load(ctx context.Context, jobID string) (*Record, error) {
	var rec Record
	if err := s.fast.CacheGet(ctx, progressKey(jobID), &rec); err == nil && rec.JobID != "" {
		return &rec, nil
	}
	if s.durable != nil {
		if row, err := s.durable.FetchJob(ctx, jobID); err == nil && row != nil {
			return &row.Record, nil
		}
	}
	return nil, nil
}

// writeDurable is best effort: a secondary-store failure is logged and
// surfaced on the Receipt, never propagated.
func (s *Sink) writeDurable(ctx context.Context, row JobRow) error {
	if s.durable == nil {
		return nil
	}
	if err := s.durable.UpsertJob(ctx, row); err != nil {
		s.log.LogWarnf("durable store write failed for job %s: %v", row.JobID, err)
		return err
	}
	return nil
}
