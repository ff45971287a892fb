package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	gemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"reelforge/internal/core/video"
	"reelforge/internal/logger"
	"reelforge/prompts"
)

// Config represents the configuration for the LLM integration
type Config struct {
	Provider   string `json:"provider"` // "gemini" is the only wired provider
	APIKey     string `json:"api_key"`
	Model      string `json:"model"`
	ImageModel string `json:"image_model"`
}

// Service wraps the chat model behind the pipeline's planning and image
// steps.
type Service struct {
	config       Config
	chatModel    model.BaseChatModel
	geminiClient *genai.Client
	templates    *prompts.Templates
	log          *logger.Logger
}

// NewService creates the service with the configured provider.
func NewService(config Config) (*Service, error) {
	s := &Service{config: config, templates: prompts.New(), log: logger.New("LLM")}
	if err := s.initializeChatModel(); err != nil {
		return nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}
	return s, nil
}

// NewServiceWithModel injects a pre-configured chat model; used by tests.
func NewServiceWithModel(config Config, chatModel model.BaseChatModel) *Service {
	return &Service{config: config, chatModel: chatModel, templates: prompts.New(), log: logger.New("LLM")}
}

func (s *Service) initializeChatModel() error {
	switch strings.ToLower(s.config.Provider) {
	case "gemini":
		return s.initializeGeminiModel()
	default:
		return fmt.Errorf("unsupported provider: %s. Supported: gemini", s.config.Provider)
	}
}

func (s *Service) initializeGeminiModel() error {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: s.config.APIKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}
	s.geminiClient = client

	geminiModel, err := gemini.NewChatModel(context.Background(), &gemini.Config{
		Client: client,
		Model:  s.config.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to create Gemini chat model: %w", err)
	}
	s.chatModel = geminiModel
	return nil
}

// planDoc mirrors the JSON shape the scene-plan template asks for.
type planDoc struct {
	Title  string `json:"title"`
	Scenes []struct {
		SceneNumber      int      `json:"scene_number"`
		SceneDescription string   `json:"scene_description"`
		Duration         int      `json:"duration"`
		Keywords         []string `json:"keywords"`
	} `json:"scenes"`
}

// Plan asks the model for a scene breakdown. Output that is not structured
// scene data yields video.ErrUnparsablePlan so the caller can fall back.
func (s *Service) Plan(ctx context.Context, script string, duration int) (*video.Plan, error) {
	if s.chatModel == nil {
		return nil, fmt.Errorf("chat model not initialized")
	}

	messages, err := s.templates.ScenePlan.Format(ctx, map[string]any{
		"script":   script,
		"duration": duration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to format plan template: %w", err)
	}

	response, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	raw := extractJSON(response.Content)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in model output", video.ErrUnparsablePlan)
	}
	var doc planDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", video.ErrUnparsablePlan, err)
	}
	if len(doc.Scenes) == 0 {
		return nil, fmt.Errorf("%w: empty scene list", video.ErrUnparsablePlan)
	}

	plan := &video.Plan{Title: doc.Title}
	for i, sc := range doc.Scenes {
		num := sc.SceneNumber
		if num == 0 {
			num = i + 1
		}
		plan.Scenes = append(plan.Scenes, &video.Scene{
			Number:      num,
			Description: sc.SceneDescription,
			Duration:    sc.Duration,
			Keywords:    sc.Keywords,
		})
	}
	s.log.LogInfof("planned %d scenes for %q", len(plan.Scenes), truncate(doc.Title, 40))
	return plan, nil
}

// ImagePrompt authors a generation prompt for a scene without footage.
func (s *Service) ImagePrompt(ctx context.Context, scene *video.Scene) (string, error) {
	if s.chatModel == nil {
		return "", fmt.Errorf("chat model not initialized")
	}
	messages, err := s.templates.ImagePrompt.Format(ctx, map[string]any{
		"scene_description": scene.Description,
		"keywords":          strings.Join(scene.Keywords, ", "),
	})
	if err != nil {
		return "", fmt.Errorf("failed to format image prompt template: %w", err)
	}
	response, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("image prompt generation failed: %w", err)
	}
	return strings.TrimSpace(response.Content), nil
}

// GenerateImage renders one image for the prompt and returns the raw bytes.
func (s *Service) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	if s.geminiClient == nil {
		return nil, fmt.Errorf("image generation requires the gemini provider")
	}
	resp, err := s.geminiClient.Models.GenerateImages(ctx, s.config.ImageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, fmt.Errorf("image generation returned no images")
	}
	return resp.GeneratedImages[0].Image.ImageBytes, nil
}

// extractJSON pulls the outermost JSON object out of chatty model output.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
