package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelforge/internal/core/video"
)

const resultsPage = `<!DOCTYPE html>
<html><body>
<div class="result">
  <a href="https://videos.example.com/watch?v=abc123" title="Ocean waves crashing at sunset">Ocean waves crashing at sunset</a>
  <p>Dramatic footage of waves on a rocky shore.</p>
</div>
<div class="result">
  <a href="/watch?v=def456">Coral reef diving tour</a>
</div>
<div class="result">
  <a href="https://videos.example.com/watch?v=abc123" title="Duplicate entry">Duplicate entry</a>
</div>
<a href="/channel/underwater">Underwater channel</a>
<a href="/watch?v=ghi789"></a>
</body></html>`

func testService() *Service {
	return New(Config{BaseURL: "https://videos.example.com"}, nil)
}

func TestParseResults(t *testing.T) {
	s := testService()
	cands, err := s.parseResults(resultsPage, "ocean waves")
	require.NoError(t, err)

	require.Len(t, cands, 2, "duplicates, non-watch links and untitled links are dropped")
	assert.Equal(t, "https://videos.example.com/watch?v=abc123", cands[0].URL)
	assert.Equal(t, "Ocean waves crashing at sunset", cands[0].Title)
	assert.Equal(t, 1.0, cands[0].Relevance)
	assert.Equal(t, "https://videos.example.com/watch?v=def456", cands[1].URL)
}

func TestNormalizeWatchURL(t *testing.T) {
	s := testService()
	assert.Equal(t, "https://videos.example.com/watch?v=x", s.normalizeWatchURL("/watch?v=x"))
	assert.Equal(t, "https://other.example.com/watch?v=y", s.normalizeWatchURL("https://other.example.com/watch?v=y"))
	assert.Empty(t, s.normalizeWatchURL("/channel/foo"))
	assert.Empty(t, s.normalizeWatchURL("watch?v=relative-without-slash"))
	assert.Empty(t, s.normalizeWatchURL(""))
}

func TestRelevanceScoring(t *testing.T) {
	assert.Equal(t, 1.0, relevance("coral reef", "Coral reef diving tour"))
	assert.Equal(t, 0.5, relevance("coral sharks", "Coral reef diving tour"))
	assert.Equal(t, 0.0, relevance("volcano", "Coral reef diving tour"))
	assert.Equal(t, 0.0, relevance("", "anything"))
}

func TestCacheKeyNormalization(t *testing.T) {
	assert.Equal(t, "search:ocean_waves", cacheKey("  Ocean   Waves "))
}

func TestTrim(t *testing.T) {
	in := []video.Candidate{{URL: "a"}, {URL: "b"}, {URL: "c"}}
	assert.Len(t, trim(in, 2), 2)
	assert.Len(t, trim(in, 5), 3)
}
