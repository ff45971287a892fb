package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"reelforge/internal/core/video"
	"reelforge/internal/logger"
)

// Generator is the model backend for prompt authoring and rendering.
// llm.Service implements it; nil degrades to template prompts with no
// rendered images.
type Generator interface {
	ImagePrompt(ctx context.Context, scene *video.Scene) (string, error)
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// Service covers scenes that ended the fetch stage without a clip. Every
// such scene gets a prompt file; rendering the actual image is best effort.
type Service struct {
	gen Generator
	log *logger.Logger
}

func New(gen Generator) *Service {
	return &Service{gen: gen, log: logger.New("Images")}
}

// Generate returns one entry per clipless scene. Prompt files always land on
// disk so an editor can regenerate by hand; a failed render leaves ImagePath
// empty.
func (s *Service) Generate(ctx context.Context, scenes []*video.Scene, clips []*video.Clip, outDir string) ([]video.GeneratedImage, error) {
	covered := make(map[int]bool, len(clips))
	for _, c := range clips {
		covered[c.SceneNumber] = true
	}

	var out []video.GeneratedImage
	for _, scene := range scenes {
		if covered[scene.Number] {
			continue
		}
		img, err := s.generateOne(ctx, scene, outDir)
		if err != nil {
			return nil, err
		}
		out = append(out, *img)
	}
	if len(out) > 0 {
		s.log.LogInfof("generated %d scene substitutes", len(out))
	}
	return out, nil
}

func (s *Service) generateOne(ctx context.Context, scene *video.Scene, outDir string) (*video.GeneratedImage, error) {
	prompt := s.authorPrompt(ctx, scene)

	promptPath := filepath.Join(outDir, fmt.Sprintf("scene_%02d_prompt.txt", scene.Number))
	if err := os.WriteFile(promptPath, []byte(prompt+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write prompt for scene %d: %w", scene.Number, err)
	}

	img := &video.GeneratedImage{
		SceneNumber: scene.Number,
		Prompt:      prompt,
		PromptPath:  promptPath,
	}
	if s.gen == nil {
		return img, nil
	}

	data, err := s.gen.GenerateImage(ctx, prompt)
	if err != nil {
		s.log.LogWarnf("scene %d: image render failed, keeping prompt only: %v", scene.Number, err)
		return img, nil
	}
	imagePath := filepath.Join(outDir, fmt.Sprintf("scene_%02d.png", scene.Number))
	if err := os.WriteFile(imagePath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write image for scene %d: %w", scene.Number, err)
	}
	img.ImagePath = imagePath
	return img, nil
}

// authorPrompt asks the model for a prompt and falls back to a template
// built straight from the scene.
func (s *Service) authorPrompt(ctx context.Context, scene *video.Scene) string {
	if s.gen != nil {
		if prompt, err := s.gen.ImagePrompt(ctx, scene); err == nil && strings.TrimSpace(prompt) != "" {
			return strings.TrimSpace(prompt)
		} else if err != nil {
			s.log.LogWarnf("scene %d: prompt authoring failed, using template: %v", scene.Number, err)
		}
	}
	prompt := fmt.Sprintf("Photorealistic still frame: %s", scene.Description)
	if len(scene.Keywords) > 0 {
		prompt += fmt.Sprintf(" Emphasize %s.", strings.Join(scene.Keywords, ", "))
	}
	return prompt
}
