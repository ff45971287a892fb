package prompts

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Templates holds the chat templates used by the pipeline's LLM steps.
type Templates struct {
	ScenePlan   prompt.ChatTemplate
	ImagePrompt prompt.ChatTemplate
}

func New() *Templates {
	return &Templates{
		ScenePlan:   scenePlanTemplate(),
		ImagePrompt: imagePromptTemplate(),
	}
}

// scenePlanTemplate turns a raw script into a structured scene plan.
func scenePlanTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(`# Your Role
You are a video production planner that breaks scripts into scenes for stock-footage assembly.

# Your Task
Split the script into scenes and describe, for each, what footage would illustrate it.

# Critical Requirements
1. **Output Format**: Return ONLY a valid JSON object with NO additional text
2. **Scene numbers**: 1-based, dense, in script order
3. **Durations**: integer seconds per scene, summing close to the requested total
4. **Keywords**: 3-5 concrete, searchable nouns per scene, no abstractions

# Output Schema
{{"title": string, "scenes": [{{"scene_number": int, "scene_description": string, "duration": int, "keywords": [string]}}]}}

**IMPORTANT**: Return ONLY the JSON object. No explanations, no markdown fences.`),

		schema.UserMessage(`**Target total duration**: {duration} seconds

**Script**:
{script}

Return the scene plan as JSON only.`),
	)
}

// imagePromptTemplate authors an image-generation prompt for a scene that
// got no footage.
func imagePromptTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(`# Your Role
You are an expert at writing prompts for AI image generators.

# Critical Requirements
1. Stay LITERAL to the scene description - no metaphors, no over-interpretation
2. Include concrete visual detail: composition, lighting, style
3. Photorealistic, documentary-footage style
4. 1-2 sentences maximum

**IMPORTANT**: Output ONLY the image prompt, nothing else.`),

		schema.UserMessage(`Scene Description: {scene_description}
Keywords: {keywords}

Write the image prompt.`),
	)
}
