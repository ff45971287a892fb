package pipeline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/core/video"
)

func TestFallbackPlanBlankScript(t *testing.T) {
	for _, script := range []string{"", "   \n\t "} {
		plan := FallbackPlan(script)
		require.Len(t, plan.Scenes, 6)
		for _, scene := range plan.Scenes {
			assert.NotEmpty(t, scene.Description)
			assert.NotEmpty(t, scene.Keywords, "blank input still yields searchable scenes")
		}
	}
}

func TestFallbackPlanExpandsToMinimum(t *testing.T) {
	plan := FallbackPlan("The ocean covers most of the planet. Coral reefs shelter thousands of species. Rising temperatures put them at risk.")

	require.Len(t, plan.Scenes, 6)
	for i, scene := range plan.Scenes {
		assert.Equal(t, i+1, scene.Number)
		assert.Equal(t, 5, scene.Duration)
		assert.NotEmpty(t, scene.Description)
		assert.LessOrEqual(t, len(scene.Keywords), 3)
	}
}

func TestFallbackPlanClampsToMaximum(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "Sentence number %d talks about something new. ", i)
	}
	plan := FallbackPlan(b.String())

	require.Len(t, plan.Scenes, 12)
	// Merging must not drop script text.
	joined := strings.Join(descriptions(plan.Scenes), " ")
	for i := 0; i < 20; i++ {
		assert.Contains(t, joined, fmt.Sprintf("number %d ", i))
	}
}

func TestFallbackPlanSingleWordScript(t *testing.T) {
	plan := FallbackPlan("Hello")
	require.Len(t, plan.Scenes, 6)
	for _, scene := range plan.Scenes {
		assert.Equal(t, "Hello", scene.Description)
	}
}

func TestFallbackPlanMidRangeCountKept(t *testing.T) {
	plan := FallbackPlan("First thing happens. Second thing happens. Third thing follows. Fourth arrives. Fifth concludes. Sixth wraps up. Seventh is extra. Eighth too.")
	require.Len(t, plan.Scenes, 8)
}

func TestLongestWordsPicksDistinctLongest(t *testing.T) {
	words := longestWords("the magnificent underwater photography of magnificent reefs", 3)
	require.Len(t, words, 3)
	assert.Equal(t, []string{"magnificent", "photography", "underwater"}, words)
}

func TestSplitUnitHalvesAtWordBoundary(t *testing.T) {
	left, right := splitUnit("one two three four")
	assert.Equal(t, "one two", left)
	assert.Equal(t, "three four", right)

	left, right = splitUnit("single")
	assert.Equal(t, "single", left)
	assert.Empty(t, right)
}

func descriptions(scenes []*video.Scene) []string {
	out := make([]string, 0, len(scenes))
	for _, s := range scenes {
		out = append(out, s.Description)
	}
	return out
}
