package media

import (
	"fmt"
	"os/exec"
)

// DependencyReport says which external media tools were found on PATH.
type DependencyReport struct {
	YTDLPFound  bool   `json:"yt_dlp_found"`
	YTDLPPath   string `json:"yt_dlp_path,omitempty"`
	FFmpegFound bool   `json:"ffmpeg_found"`
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
}

func DependencyStatus(ytdlp string) DependencyReport {
	if ytdlp == "" {
		ytdlp = "yt-dlp"
	}
	report := DependencyReport{}
	if path, err := exec.LookPath(ytdlp); err == nil {
		report.YTDLPFound = true
		report.YTDLPPath = path
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	return report
}

// CheckDependencies fails when a required tool is missing. ffmpeg is needed
// for keyframe-accurate section cuts.
func CheckDependencies(ytdlp string) error {
	report := DependencyStatus(ytdlp)
	if !report.YTDLPFound {
		return fmt.Errorf("missing dependency: yt-dlp is not installed or not on PATH")
	}
	if !report.FFmpegFound {
		return fmt.Errorf("missing dependency: ffmpeg is required for section cuts and was not found on PATH")
	}
	return nil
}
