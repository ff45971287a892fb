package video

import (
	"errors"
	"time"
)

// ErrUnparsablePlan is returned by a planner whose model output could not be
// read as structured scene data. The orchestrator answers it with the
// fallback planner instead of failing the job.
var ErrUnparsablePlan = errors.New("plan output is not structured scene data")

// Plan is the scene breakdown a job works through.
type Plan struct {
	Title  string   `json:"title"`
	Scenes []*Scene `json:"scenes"`
}

// Scene is one planned shot. Scene numbers are 1-based and dense. The search
// stage attaches candidates; the fetch stage attaches a clip path.
type Scene struct {
	Number      int         `json:"scene_number"`
	Description string      `json:"scene_description"`
	Duration    int         `json:"duration"`
	Keywords    []string    `json:"keywords"`
	Candidates  []Candidate `json:"candidates,omitempty"`
	ClipPath    string      `json:"clip_path,omitempty"`
}

// Query returns the search query for the scene.
func (s *Scene) Query() string {
	if len(s.Keywords) > 0 {
		q := s.Keywords[0]
		for _, k := range s.Keywords[1:] {
			q += " " + k
		}
		return q
	}
	return s.Description
}

// Candidate is one search result considered for a scene.
type Candidate struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Duration  int     `json:"duration,omitempty"`
	Relevance float64 `json:"relevance_score"`
}

// Clip is a successfully extracted scene clip.
type Clip struct {
	SceneNumber int    `json:"scene_number"`
	Scene       string `json:"scene"`
	Path        string `json:"path"`
	SourceURL   string `json:"source_url"`
}

// GeneratedImage substitutes for a scene that got no clip.
type GeneratedImage struct {
	SceneNumber int    `json:"scene_number"`
	Prompt      string `json:"prompt"`
	PromptPath  string `json:"prompt_path,omitempty"`
	ImagePath   string `json:"image_path,omitempty"`
}

// JobResult is the payload attached to a completed job. BucketPaths records
// where the artifacts live in remote storage so deletion can find them.
type JobResult struct {
	ArtifactURLs map[string]string `json:"artifact_urls"`
	ClipsCount   int               `json:"clips_count"`
	ImagesCount  int               `json:"images_count"`
	ExpiresAt    time.Time         `json:"expires_at"`
	BucketPaths  []string          `json:"bucket_paths,omitempty"`
}
