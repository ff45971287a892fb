package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"reelforge/internal/core/video"
	"reelforge/internal/logger"
)

// Service writes editor-importable project manifests that sequence the
// job's clips and substitute images.
type Service struct {
	log *logger.Logger
}

func New() *Service {
	return &Service{log: logger.New("Export")}
}

type timelineItem struct {
	Scene     int    `json:"scene"`
	Duration  int    `json:"duration"`
	MediaType string `json:"media_type"`
	MediaPath string `json:"media_path,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
}

type premiereProject struct {
	Project  string         `json:"project"`
	FPS      int            `json:"fps"`
	Sequence []timelineItem `json:"sequence"`
}

type capcutProject struct {
	Name   string `json:"name"`
	Tracks []struct {
		Type  string         `json:"type"`
		Items []timelineItem `json:"items"`
	} `json:"tracks"`
}

// Export writes premiere.json and capcut.json into outDir and returns the
// artifact paths keyed by editor name.
func (s *Service) Export(ctx context.Context, plan *video.Plan, clips []*video.Clip, images []video.GeneratedImage, outDir string) (map[string]string, error) {
	items := buildTimeline(plan, clips, images)

	premierePath := filepath.Join(outDir, "premiere.json")
	if err := writeJSON(premierePath, premiereProject{
		Project:  plan.Title,
		FPS:      30,
		Sequence: items,
	}); err != nil {
		return nil, fmt.Errorf("write premiere manifest: %w", err)
	}

	capcut := capcutProject{Name: plan.Title}
	capcut.Tracks = append(capcut.Tracks, struct {
		Type  string         `json:"type"`
		Items []timelineItem `json:"items"`
	}{Type: "video", Items: items})
	capcutPath := filepath.Join(outDir, "capcut.json")
	if err := writeJSON(capcutPath, capcut); err != nil {
		return nil, fmt.Errorf("write capcut manifest: %w", err)
	}

	s.log.LogInfof("exported %d timeline items for %q", len(items), plan.Title)
	return map[string]string{
		"premiere": premierePath,
		"capcut":   capcutPath,
	}, nil
}

// buildTimeline lays scenes out in order, preferring a clip and falling back
// to the scene's generated image. Scenes with neither still occupy their
// slot so the edit keeps the script's rhythm.
func buildTimeline(plan *video.Plan, clips []*video.Clip, images []video.GeneratedImage) []timelineItem {
	clipBy := make(map[int]*video.Clip, len(clips))
	for _, c := range clips {
		clipBy[c.SceneNumber] = c
	}
	imageBy := make(map[int]video.GeneratedImage, len(images))
	for _, img := range images {
		imageBy[img.SceneNumber] = img
	}

	items := make([]timelineItem, 0, len(plan.Scenes))
	for _, scene := range plan.Scenes {
		item := timelineItem{Scene: scene.Number, Duration: scene.Duration}
		switch {
		case clipBy[scene.Number] != nil:
			clip := clipBy[scene.Number]
			item.MediaType = "clip"
			item.MediaPath = filepath.Base(clip.Path)
			item.SourceURL = clip.SourceURL
		default:
			img, ok := imageBy[scene.Number]
			item.MediaType = "image"
			if ok {
				if img.ImagePath != "" {
					item.MediaPath = filepath.Base(img.ImagePath)
				}
				item.Prompt = img.Prompt
			}
		}
		items = append(items, item)
	}
	return items
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
