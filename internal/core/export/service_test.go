package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/core/video"
)

func TestExportWritesBothManifests(t *testing.T) {
	dir := t.TempDir()
	plan := &video.Plan{
		Title: "Reef Doc",
		Scenes: []*video.Scene{
			{Number: 1, Description: "Waves at dawn", Duration: 5},
			{Number: 2, Description: "Coral gardens", Duration: 4},
			{Number: 3, Description: "Storm approaching", Duration: 6},
		},
	}
	clips := []*video.Clip{
		{SceneNumber: 1, Path: "/data/job/scene_01.mp4", SourceURL: "https://example.com/watch?v=a"},
	}
	images := []video.GeneratedImage{
		{SceneNumber: 2, Prompt: "coral gardens, photorealistic", ImagePath: "/data/job/scene_02.png"},
	}

	paths, err := New().Export(context.Background(), plan, clips, images, dir)
	require.NoError(t, err)
	require.Contains(t, paths, "premiere")
	require.Contains(t, paths, "capcut")

	var premiere premiereProject
	raw, err := os.ReadFile(paths["premiere"])
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &premiere))

	assert.Equal(t, "Reef Doc", premiere.Project)
	require.Len(t, premiere.Sequence, 3)

	assert.Equal(t, "clip", premiere.Sequence[0].MediaType)
	assert.Equal(t, "scene_01.mp4", premiere.Sequence[0].MediaPath)
	assert.Equal(t, "https://example.com/watch?v=a", premiere.Sequence[0].SourceURL)

	assert.Equal(t, "image", premiere.Sequence[1].MediaType)
	assert.Equal(t, "scene_02.png", premiere.Sequence[1].MediaPath)
	assert.Equal(t, "coral gardens, photorealistic", premiere.Sequence[1].Prompt)

	// A scene with neither clip nor image still holds its slot.
	assert.Equal(t, "image", premiere.Sequence[2].MediaType)
	assert.Empty(t, premiere.Sequence[2].MediaPath)
	assert.Equal(t, 6, premiere.Sequence[2].Duration)

	var capcut capcutProject
	raw, err = os.ReadFile(filepath.Join(dir, "capcut.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &capcut))
	require.Len(t, capcut.Tracks, 1)
	assert.Equal(t, "video", capcut.Tracks[0].Type)
	assert.Len(t, capcut.Tracks[0].Items, 3)
}

func TestTimelinePrefersClipOverImage(t *testing.T) {
	plan := &video.Plan{Scenes: []*video.Scene{{Number: 1, Description: "both", Duration: 5}}}
	clips := []*video.Clip{{SceneNumber: 1, Path: "/x/scene_01.mp4"}}
	images := []video.GeneratedImage{{SceneNumber: 1, ImagePath: "/x/scene_01.png"}}

	items := buildTimeline(plan, clips, images)
	require.Len(t, items, 1)
	assert.Equal(t, "clip", items[0].MediaType)
	assert.Equal(t, "scene_01.mp4", items[0].MediaPath)
}
