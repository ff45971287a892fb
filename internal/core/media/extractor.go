package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"reelforge/internal/core/credential"
	"reelforge/internal/core/fetch"
	"reelforge/internal/core/video"
	"reelforge/internal/logger"
)

// clipFormat caps resolution; scene clips are short and small keeps the
// later editor import fast.
const clipFormat = "bv*[height<=720]+ba/b[height<=720]"

// Extractor pulls a scene-length clip out of the scene's best candidate via
// yt-dlp. All network attempts run through the credential-rotating fetcher.
type Extractor struct {
	fetcher *fetch.Fetcher
	ytdlp   string
	log     *logger.Logger
}

func NewExtractor(fetcher *fetch.Fetcher, ytdlpPath string) *Extractor {
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp"
	}
	return &Extractor{fetcher: fetcher, ytdlp: ytdlpPath, log: logger.New("Media")}
}

// Extract downloads the leading span of the scene's first candidate into
// outDir. The first candidate is the best one: search hands them over ranked.
func (e *Extractor) Extract(ctx context.Context, scene *video.Scene, outDir string) (*video.Clip, error) {
	if len(scene.Candidates) == 0 {
		return nil, fmt.Errorf("scene %d has no candidates", scene.Number)
	}
	cand := scene.Candidates[0]
	seconds := scene.Duration
	if seconds <= 0 {
		seconds = 5
	}
	outPath := filepath.Join(outDir, fmt.Sprintf("scene_%02d.mp4", scene.Number))

	path, err := e.fetcher.Fetch(ctx, cand.URL, func(ctx context.Context, cred *credential.Credential) (string, error) {
		return e.download(ctx, cand.URL, cred.Path, outPath, seconds)
	})
	if err != nil {
		return nil, err
	}
	e.log.LogInfof("scene %d: extracted %ds from %s", scene.Number, seconds, cand.URL)
	return &video.Clip{
		SceneNumber: scene.Number,
		Scene:       scene.Description,
		Path:        path,
		SourceURL:   cand.URL,
	}, nil
}

// download runs one yt-dlp section download with the given cookies file.
// stderr is folded into the error so upstream block detection sees it.
func (e *Extractor) download(ctx context.Context, videoURL, cookiesPath, outPath string, seconds int) (string, error) {
	args := []string{
		"--no-playlist",
		"--newline",
		"--restrict-filenames",
		"-f", clipFormat,
		"--download-sections", fmt.Sprintf("*0-%d", seconds),
		"--force-keyframes-at-cuts",
		"--merge-output-format", "mp4",
		"-o", outPath,
	}
	if cookiesPath != "" {
		args = append(args, "--cookies", cookiesPath)
	}
	args = append(args, videoURL)

	cmd := exec.CommandContext(ctx, e.ytdlp, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("yt-dlp failed: %w: %s", err, tail(stderr.String(), 300))
	}
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("yt-dlp produced no output file: %w", err)
	}
	return outPath, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
