package pipeline

import "errors"

// ErrInvalidRequest marks a submission the caller can fix. The HTTP layer
// maps it to a 400.
var ErrInvalidRequest = errors.New("invalid request")

// ErrJobNotFound is returned for operations against a job id no store knows.
var ErrJobNotFound = errors.New("job not found")

// Task type identifiers registered with the asynq mux.
const (
	TaskTypeGenerate = "video:generate"
	TaskTypeCleanup  = "video:cleanup"
)

const (
	defaultDuration    = 60
	candidatesPerScene = 3
	cleanupMaxRetries  = 3
)

// GenerateRequest is the API-facing job submission.
type GenerateRequest struct {
	Script   string `json:"script"`
	Duration int    `json:"duration,omitempty"`
	Title    string `json:"title,omitempty"`
}

type generatePayload struct {
	JobID string `json:"job_id"`
	GenerateRequest
}

// cleanupPayload drives the delayed artifact cleanup scheduled at job
// completion.
type cleanupPayload struct {
	JobID       string   `json:"job_id"`
	LocalDir    string   `json:"local_dir,omitempty"`
	BucketPaths []string `json:"bucket_paths,omitempty"`
}
