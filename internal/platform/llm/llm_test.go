package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/core/video"
)

type stubChatModel struct {
	content string
	err     error
}

func (s *stubChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &schema.Message{Role: schema.Assistant, Content: s.content}, nil
}

func (s *stubChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported")
}

func planService(content string) *Service {
	return NewServiceWithModel(Config{Provider: "gemini", Model: "test"}, &stubChatModel{content: content})
}

func TestPlanParsesModelOutput(t *testing.T) {
	s := planService(`Here is your plan:
{"title": "Reef Doc", "scenes": [
  {"scene_number": 1, "scene_description": "Waves at dawn", "duration": 5, "keywords": ["waves", "dawn"]},
  {"scene_description": "Coral gardens", "duration": 4, "keywords": ["coral"]}
]}
Hope that helps!`)

	plan, err := s.Plan(context.Background(), "script", 30)
	require.NoError(t, err)
	assert.Equal(t, "Reef Doc", plan.Title)
	require.Len(t, plan.Scenes, 2)
	assert.Equal(t, 1, plan.Scenes[0].Number)
	assert.Equal(t, []string{"waves", "dawn"}, plan.Scenes[0].Keywords)
	// Missing scene numbers are filled from position.
	assert.Equal(t, 2, plan.Scenes[1].Number)
}

func TestPlanRejectsProseOutput(t *testing.T) {
	s := planService("I'm sorry, I can't produce structured output for that.")
	_, err := s.Plan(context.Background(), "script", 30)
	assert.ErrorIs(t, err, video.ErrUnparsablePlan)
}

func TestPlanRejectsEmptySceneList(t *testing.T) {
	s := planService(`{"title": "Empty", "scenes": []}`)
	_, err := s.Plan(context.Background(), "script", 30)
	assert.ErrorIs(t, err, video.ErrUnparsablePlan)
}

func TestPlanPropagatesModelErrors(t *testing.T) {
	s := NewServiceWithModel(Config{Provider: "gemini"}, &stubChatModel{err: errors.New("quota exhausted")})
	_, err := s.Plan(context.Background(), "script", 30)
	require.Error(t, err)
	assert.NotErrorIs(t, err, video.ErrUnparsablePlan, "transport errors are not fallback material")
}

func TestImagePromptTrimsOutput(t *testing.T) {
	s := planService("  A wide-angle reef shot, morning light.\n")
	prompt, err := s.ImagePrompt(context.Background(), &video.Scene{Description: "Coral gardens"})
	require.NoError(t, err)
	assert.Equal(t, "A wide-angle reef shot, morning light.", prompt)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, extractJSON("noise {\"a\": 1} more noise"))
	assert.Empty(t, extractJSON("no braces here"))
	assert.Empty(t, extractJSON("} backwards {"))
}
