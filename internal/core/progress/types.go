package progress

import (
	"time"

	"reelforge/internal/core/video"
)

// Stage is a job's position in the pipeline.
type Stage string

const (
	StageQueued       Stage = "queued"
	StageAnalyzing    Stage = "analyzing"
	StageSearching    Stage = "searching"
	StageFetching     Stage = "fetching"
	StageSynthesizing Stage = "synthesizing"
	StageExporting    Stage = "exporting"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// Terminal stages are absorbing: no further transitions for the job id.
func (s Stage) Terminal() bool { return s == StageCompleted || s == StageFailed }

// Status is the coarse job state shown on the read surface.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Stage) Status() Status {
	switch s {
	case StageQueued:
		return StatusQueued
	case StageCompleted:
		return StatusCompleted
	case StageFailed:
		return StatusFailed
	default:
		return StatusProcessing
	}
}

// Record is the fast-store progress document, keyed job_progress:{jobId}.
type Record struct {
	JobID       string    `json:"job_id"`
	Stage       Stage     `json:"stage"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	CurrentStep string    `json:"current_step,omitempty"`
	EtaSeconds  int       `json:"eta_seconds,omitempty"`
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// JobRow is the durable-store document: the progress record plus audit
// timestamps and the result payload.
type JobRow struct {
	Record
	Result      *video.JobResult `json:"result,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// StatusView is what the read surface returns for a job id.
type StatusView struct {
	JobID       string           `json:"job_id"`
	Status      Status           `json:"status"`
	Progress    int              `json:"progress"`
	CurrentStep string           `json:"current_step,omitempty"`
	EtaSeconds  int              `json:"eta_seconds,omitempty"`
	Error       string           `json:"error,omitempty"`
	Result      *video.JobResult `json:"result,omitempty"`
}
