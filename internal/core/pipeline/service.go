package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"reelforge/internal/core/progress"
	"reelforge/internal/core/schedule"
	"reelforge/internal/core/video"
	"reelforge/internal/logger"
	"reelforge/internal/platform/tasks"
)

// Planner breaks a script into scenes. An output the planner could not read
// as scene data is video.ErrUnparsablePlan; any other error fails the job.
type Planner interface {
	Plan(ctx context.Context, script string, duration int) (*video.Plan, error)
}

// Searcher finds footage candidates for one query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]video.Candidate, error)
}

// ClipExtractor pulls the scene's span of its best candidate into a local
// file.
type ClipExtractor interface {
	Extract(ctx context.Context, scene *video.Scene, outDir string) (*video.Clip, error)
}

// ImageGenerator covers scenes that ended up with no clip.
type ImageGenerator interface {
	Generate(ctx context.Context, scenes []*video.Scene, clips []*video.Clip, outDir string) ([]video.GeneratedImage, error)
}

// Exporter writes editor project files and returns them keyed by artifact
// name.
type Exporter interface {
	Export(ctx context.Context, plan *video.Plan, clips []*video.Clip, images []video.GeneratedImage, outDir string) (map[string]string, error)
}

// Uploader pushes artifacts to remote storage. Absent (nil) means artifacts
// are served from the local data dir instead.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, bucketPath string, expiresIn time.Duration) (string, error)
	RemoveFiles(ctx context.Context, bucketPaths []string) error
}

// Recorder receives pipeline counters; nil disables them.
type Recorder interface {
	RecordEnqueue()
	RecordComplete()
	RecordFailure()
	ObserveJobDuration(d time.Duration)
}

// Collaborators are the stage implementations the orchestrator drives.
type Collaborators struct {
	Planner   Planner
	Searcher  Searcher
	Extractor ClipExtractor
	Images    ImageGenerator
	Exporter  Exporter
	Uploader  Uploader
	Metrics   Recorder
}

type Config struct {
	Queue          string
	TaskMaxRetries int
	Concurrency    int
	DataDir        string
	ArtifactTTL    time.Duration
}

// Service owns the whole job lifecycle: submission, the staged pipeline run,
// and the delayed cleanup. One handler invocation is the only writer for its
// job's progress.
type Service struct {
	cfg   Config
	sink  *progress.Sink
	tasks *tasks.Client
	deps  Collaborators
	log   *logger.Logger
}

func New(cfg Config, sink *progress.Sink, taskClient *tasks.Client, deps Collaborators) *Service {
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	return &Service{cfg: cfg, sink: sink, tasks: taskClient, deps: deps, log: logger.New("Pipeline")}
}

// Enqueue validates the request, registers the job at queued/0 and hands it
// to the task queue. Returns the new job id.
func (s *Service) Enqueue(ctx context.Context, req GenerateRequest) (string, error) {
	if strings.TrimSpace(req.Script) == "" {
		return "", fmt.Errorf("%w: script is required", ErrInvalidRequest)
	}
	if req.Duration <= 0 {
		req.Duration = defaultDuration
	}

	jobID := uuid.New().String()
	if err := s.sink.Init(ctx, jobID); err != nil {
		return "", fmt.Errorf("failed to register job: %w", err)
	}

	payload, err := json.Marshal(generatePayload{JobID: jobID, GenerateRequest: req})
	if err != nil {
		return "", fmt.Errorf("failed to marshal job payload: %w", err)
	}
	if err := s.tasks.Enqueue(asynq.NewTask(TaskTypeGenerate, payload), s.cfg.Queue, s.cfg.TaskMaxRetries); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordEnqueue()
	}
	s.log.LogInfof("job %s enqueued: %d chars of script, %ds target", jobID, len(req.Script), req.Duration)
	return jobID, nil
}

// Status serves the job's read surface.
func (s *Service) Status(ctx context.Context, jobID string) *progress.StatusView {
	return s.sink.Status(ctx, jobID)
}

// DeleteJob tears a job's artifacts down immediately instead of waiting for
// the scheduled cleanup: local workspace, remote files, then the job's
// cached records. The durable row stays as an audit trail.
func (s *Service) DeleteJob(ctx context.Context, jobID string) error {
	view, ok := s.sink.Lookup(ctx, jobID)
	if !ok {
		return ErrJobNotFound
	}

	if err := os.RemoveAll(filepath.Join(s.cfg.DataDir, jobID)); err != nil {
		s.log.LogWarnf("job %s: failed to remove local artifacts: %v", jobID, err)
	}
	if s.deps.Uploader != nil && view.Result != nil && len(view.Result.BucketPaths) > 0 {
		if err := s.deps.Uploader.RemoveFiles(ctx, view.Result.BucketPaths); err != nil {
			s.log.LogWarnf("job %s: failed to remove remote artifacts: %v", jobID, err)
		}
	}
	if err := s.sink.Forget(ctx, jobID); err != nil {
		return fmt.Errorf("forget job %s: %w", jobID, err)
	}
	s.log.LogInfof("job %s deleted", jobID)
	return nil
}

// QueueStats reports the task queue's backlog for the queue-status surface.
func (s *Service) QueueStats() (*tasks.QueueStats, error) {
	if s.tasks == nil {
		return nil, fmt.Errorf("task queue not configured")
	}
	return s.tasks.QueueStats(s.cfg.Queue)
}

// HandleGenerateTask is the asynq handler for a full pipeline run. Stage
// errors terminate the job via its Failed state, never via task retry, so it
// only returns an error for an unreadable payload.
func (s *Service) HandleGenerateTask(ctx context.Context, t *asynq.Task) error {
	var p generatePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal generate payload: %w", err)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.LogErrorf("job %s panicked: %v", p.JobID, r)
			s.failJob(ctx, p.JobID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	s.run(ctx, p, start)
	return nil
}

func (s *Service) run(ctx context.Context, p generatePayload, start time.Time) {
	jobDir := filepath.Join(s.cfg.DataDir, p.JobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		s.failJob(ctx, p.JobID, fmt.Sprintf("create job directory: %v", err))
		return
	}

	// Stage: analyzing
	if !s.publish(ctx, p.JobID, progress.StageAnalyzing, 10, "Analyzing script with AI...", 240) {
		return
	}
	plan := s.buildPlan(ctx, p)
	if plan == nil {
		return
	}
	if !s.publish(ctx, p.JobID, progress.StageAnalyzing, 20, fmt.Sprintf("Script analyzed: %d scenes", len(plan.Scenes)), 180) {
		return
	}

	// Stage: searching. Per-scene failures degrade that scene to "no
	// candidates"; they never fail the stage.
	if !s.publish(ctx, p.JobID, progress.StageSearching, 30, "Searching for videos...", 150) {
		return
	}
	found := 0
	for _, scene := range plan.Scenes {
		cands, err := s.deps.Searcher.Search(ctx, scene.Query(), candidatesPerScene)
		if err != nil {
			s.log.LogWarnf("job %s scene %d: search failed: %v", p.JobID, scene.Number, err)
			continue
		}
		scene.Candidates = cands
		if len(cands) > 0 {
			found++
		}
	}
	if !s.publish(ctx, p.JobID, progress.StageSearching, 40, fmt.Sprintf("Found footage for %d/%d scenes", found, len(plan.Scenes)), 120) {
		return
	}

	// Stage: fetching. Scenes without candidates are skipped; extraction
	// failures shrink the clip set rather than fail the stage.
	if !s.publish(ctx, p.JobID, progress.StageFetching, 50, "Downloading videos...", 90) {
		return
	}
	clips := s.extractClips(ctx, plan, jobDir)
	if !s.publish(ctx, p.JobID, progress.StageFetching, 60, fmt.Sprintf("%d clips extracted", len(clips)), 60) {
		return
	}

	// Stage: synthesizing
	if !s.publish(ctx, p.JobID, progress.StageSynthesizing, 70, "Generating AI images...", 40) {
		return
	}
	images, err := s.deps.Images.Generate(ctx, plan.Scenes, clips, jobDir)
	if err != nil {
		s.failJob(ctx, p.JobID, fmt.Sprintf("generate images: %v", err))
		return
	}
	if !s.publish(ctx, p.JobID, progress.StageSynthesizing, 80, fmt.Sprintf("%d images generated", len(images)), 20) {
		return
	}

	// Stage: exporting
	if !s.publish(ctx, p.JobID, progress.StageExporting, 90, "Creating project files...", 10) {
		return
	}
	artifacts, err := s.deps.Exporter.Export(ctx, plan, clips, images, jobDir)
	if err != nil {
		s.failJob(ctx, p.JobID, fmt.Sprintf("export project: %v", err))
		return
	}
	urls, bucketPaths, err := s.publishArtifacts(ctx, p.JobID, artifacts)
	if err != nil {
		s.failJob(ctx, p.JobID, fmt.Sprintf("upload artifacts: %v", err))
		return
	}

	expiresAt := time.Now().UTC().Add(s.cfg.ArtifactTTL)
	result := video.JobResult{
		ArtifactURLs: urls,
		ClipsCount:   len(clips),
		ImagesCount:  len(images),
		ExpiresAt:    expiresAt,
		BucketPaths:  bucketPaths,
	}
	if _, err := s.sink.Complete(ctx, p.JobID, result); err != nil {
		if !errors.Is(err, progress.ErrTerminal) {
			s.log.LogErrorf("job %s: failed to record completion: %v", p.JobID, err)
		}
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordComplete()
		s.deps.Metrics.ObserveJobDuration(time.Since(start))
	}
	s.log.LogSuccessf("job %s completed: %d clips, %d images, expires %s",
		p.JobID, len(clips), len(images), expiresAt.Format(time.RFC3339))

	s.scheduleCleanup(p.JobID, jobDir, bucketPaths)
}

// buildPlan runs the planner and falls back to script segmentation when the
// model output is unusable. A nil return means the job was failed.
func (s *Service) buildPlan(ctx context.Context, p generatePayload) *video.Plan {
	plan, err := s.deps.Planner.Plan(ctx, p.Script, p.Duration)
	switch {
	case errors.Is(err, video.ErrUnparsablePlan):
		s.log.LogWarnf("job %s: %v; using fallback segmentation", p.JobID, err)
		plan = FallbackPlan(p.Script)
	case err != nil:
		s.failJob(ctx, p.JobID, fmt.Sprintf("analyze script: %v", err))
		return nil
	case len(plan.Scenes) == 0:
		s.log.LogWarnf("job %s: planner returned no scenes; using fallback segmentation", p.JobID)
		plan = FallbackPlan(p.Script)
	}
	if plan.Title == "" {
		plan.Title = p.Title
	}
	return plan
}

// extractClips fans the per-scene extractions out over the bounded scheduler
// and wires the surviving clips back onto their scenes.
func (s *Service) extractClips(ctx context.Context, plan *video.Plan, jobDir string) []*video.Clip {
	byNumber := make(map[int]*video.Scene, len(plan.Scenes))
	var units []schedule.Unit[video.Clip]
	for _, scene := range plan.Scenes {
		byNumber[scene.Number] = scene
		if len(scene.Candidates) == 0 {
			continue
		}
		scene := scene
		units = append(units, func(ctx context.Context) (*video.Clip, error) {
			return s.deps.Extractor.Extract(ctx, scene, jobDir)
		})
	}

	clips := schedule.RunAll(ctx, units, s.cfg.Concurrency)
	for _, clip := range clips {
		if scene, ok := byNumber[clip.SceneNumber]; ok {
			scene.ClipPath = clip.Path
		}
	}
	return clips
}

// publishArtifacts uploads project files when remote storage is wired and
// falls back to local /files URLs otherwise.
func (s *Service) publishArtifacts(ctx context.Context, jobID string, artifacts map[string]string) (map[string]string, []string, error) {
	urls := make(map[string]string, len(artifacts))
	var bucketPaths []string
	for name, local := range artifacts {
		if s.deps.Uploader == nil {
			rel, err := filepath.Rel(s.cfg.DataDir, local)
			if err != nil {
				rel = filepath.Base(local)
			}
			urls[name] = "/files/" + filepath.ToSlash(rel)
			continue
		}
		bucketPath := path.Join(jobID, filepath.Base(local))
		url, err := s.deps.Uploader.UploadFile(ctx, local, bucketPath, s.cfg.ArtifactTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", name, err)
		}
		urls[name] = url
		bucketPaths = append(bucketPaths, bucketPath)
	}
	return urls, bucketPaths, nil
}

func (s *Service) scheduleCleanup(jobID, jobDir string, bucketPaths []string) {
	if s.tasks == nil {
		s.log.LogWarnf("job %s: no task queue, artifacts will not expire", jobID)
		return
	}
	payload, err := json.Marshal(cleanupPayload{JobID: jobID, LocalDir: jobDir, BucketPaths: bucketPaths})
	if err != nil {
		s.log.LogErrorf("job %s: failed to marshal cleanup payload: %v", jobID, err)
		return
	}
	if err := s.tasks.EnqueueIn(asynq.NewTask(TaskTypeCleanup, payload), s.cfg.Queue, cleanupMaxRetries, s.cfg.ArtifactTTL); err != nil {
		s.log.LogErrorf("job %s: failed to schedule cleanup: %v", jobID, err)
		return
	}
	s.log.LogInfof("job %s: cleanup scheduled in %s", jobID, s.cfg.ArtifactTTL)
}

// HandleCleanupTask removes the job's local workspace and remote artifacts
// once the download window has passed.
func (s *Service) HandleCleanupTask(ctx context.Context, t *asynq.Task) error {
	var p cleanupPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal cleanup payload: %w", err)
	}

	if p.LocalDir != "" {
		if err := os.RemoveAll(p.LocalDir); err != nil {
			s.log.LogWarnf("job %s: failed to remove %s: %v", p.JobID, p.LocalDir, err)
		}
	}
	if s.deps.Uploader != nil && len(p.BucketPaths) > 0 {
		if err := s.deps.Uploader.RemoveFiles(ctx, p.BucketPaths); err != nil {
			// Returning the error lets the queue retry remote removal.
			return fmt.Errorf("job %s: %w", p.JobID, err)
		}
	}
	if err := s.sink.Expire(ctx, p.JobID); err != nil {
		s.log.LogDebugf("job %s: result expiry: %v", p.JobID, err)
	}
	s.log.LogInfof("job %s: artifacts cleaned up", p.JobID)
	return nil
}

func (s *Service) publish(ctx context.Context, jobID string, stage progress.Stage, pct int, step string, eta int) bool {
	_, err := s.sink.Publish(ctx, jobID, stage, pct, step, eta)
	if errors.Is(err, progress.ErrTerminal) {
		s.log.LogWarnf("job %s: already terminal, aborting run", jobID)
		return false
	}
	if err != nil {
		// A progress write failure is not worth killing the job over.
		s.log.LogWarnf("job %s: progress write failed: %v", jobID, err)
	}
	return true
}

func (s *Service) failJob(ctx context.Context, jobID, msg string) {
	if _, err := s.sink.Fail(ctx, jobID, msg); err != nil && !errors.Is(err, progress.ErrTerminal) {
		s.log.LogErrorf("job %s: failed to record failure: %v", jobID, err)
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.RecordFailure()
	}
	s.log.LogErrorf("job %s failed: %s", jobID, msg)
}
