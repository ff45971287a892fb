package pipeline

import (
	"regexp"
	"sort"
	"strings"

	"reelforge/internal/core/video"
)

// Fallback planning bounds. When the model's plan is unusable the pipeline
// still needs a scene list to proceed, so the raw script is segmented into
// sentence-like units and clamped into this range.
const (
	fallbackMinScenes     = 6
	fallbackMaxScenes     = 12
	fallbackSceneDuration = 5
	fallbackKeywords      = 3
)

var sentenceSplit = regexp.MustCompile(`[.!?\n]+`)
var wordSplit = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// FallbackPlan segments a raw script into 6-12 scenes with a fixed short
// duration each and keywords derived from the longest words. It always
// returns a non-empty plan.
func FallbackPlan(script string) *video.Plan {
	units := splitSentences(script)
	if len(units) == 0 {
		// Blank scripts still get scenes the downstream stages can search
		// and illustrate.
		units = []string{"General background footage"}
	}

	// Too few units: halve the longest until the minimum is met. A unit
	// that cannot be split (single word) is duplicated instead.
	for len(units) < fallbackMinScenes {
		i := longestUnit(units)
		left, right := splitUnit(units[i])
		if right == "" {
			units = append(units, units[i])
			continue
		}
		units = append(units[:i], append([]string{left, right}, units[i+1:]...)...)
	}

	// Too many: merge into evenly sized groups.
	if len(units) > fallbackMaxScenes {
		merged := make([]string, 0, fallbackMaxScenes)
		n := len(units)
		for i := 0; i < fallbackMaxScenes; i++ {
			lo := i * n / fallbackMaxScenes
			hi := (i + 1) * n / fallbackMaxScenes
			merged = append(merged, strings.Join(units[lo:hi], " "))
		}
		units = merged
	}

	plan := &video.Plan{Title: "Untitled"}
	for i, u := range units {
		plan.Scenes = append(plan.Scenes, &video.Scene{
			Number:      i + 1,
			Description: u,
			Duration:    fallbackSceneDuration,
			Keywords:    longestWords(u, fallbackKeywords),
		})
	}
	return plan
}

func splitSentences(script string) []string {
	parts := sentenceSplit.Split(script, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func longestUnit(units []string) int {
	best := 0
	for i, u := range units {
		if len(u) > len(units[best]) {
			best = i
		}
	}
	return best
}

// splitUnit halves a unit at the middle word boundary.
func splitUnit(u string) (string, string) {
	words := strings.Fields(u)
	if len(words) < 2 {
		return u, ""
	}
	mid := len(words) / 2
	return strings.Join(words[:mid], " "), strings.Join(words[mid:], " ")
}

// longestWords picks the n longest distinct words as search keywords.
func longestWords(u string, n int) []string {
	seen := map[string]struct{}{}
	var words []string
	for _, w := range wordSplit.Split(strings.ToLower(u), -1) {
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		words = append(words, w)
	}
	sort.SliceStable(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })
	if len(words) > n {
		words = words[:n]
	}
	return words
}
