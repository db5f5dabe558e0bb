package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/studyware/coursepilot/internal/pkg/errors"
	"github.com/studyware/coursepilot/internal/pkg/execx"
)

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:https?://)?(?:www\.)?youtube\.com/watch\?v=([^&]+)`),
	regexp.MustCompile(`(?:https?://)?(?:www\.)?youtu\.be/([^?]+)`),
	regexp.MustCompile(`(?:https?://)?(?:www\.)?youtube\.com/embed/([^?]+)`),
}

var (
	cueTimingRegex = regexp.MustCompile(`^\d{2}:`)
	inlineTagRegex = regexp.MustCompile(`<[^>]*>`)
)

type Metadata struct {
	VideoID     string `json:"video_id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Duration    int    `json:"duration"`
	Description string `json:"description"`
	Channel     string `json:"channel"`
	UploadDate  string `json:"upload_date"`
}

type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}

// Client fetches video metadata and transcripts through yt-dlp,
// falling back to speech-to-text on the audio track when the platform
// has no caption track.
type Client struct {
	runner      execx.Runner
	transcriber Transcriber
	workDir     string
}

func NewClient(runner execx.Runner, transcriber Transcriber, workDir string) *Client {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Client{runner: runner, transcriber: transcriber, workDir: workDir}
}

// ExtractVideoID pulls the canonical video id out of any accepted URL
// shape: watch?v=, youtu.be/ or /embed/.
func ExtractVideoID(url string) (string, error) {
	for _, pattern := range videoIDPatterns {
		if m := pattern.FindStringSubmatch(url); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w: not a recognized youtube url", appErr.ErrInvalid)
}

// FetchMetadata never fails ingestion: when yt-dlp cannot deliver, a
// synthetic title and zero duration stand in.
func (c *Client) FetchMetadata(ctx context.Context, videoID string) Metadata {
	watchURL := "https://www.youtube.com/watch?v=" + videoID
	meta := Metadata{
		VideoID: videoID,
		URL:     watchURL,
		Title:   fmt.Sprintf("YouTube Video %s", videoID),
	}
	out, err := c.runner.Run(ctx, "yt-dlp", "--dump-json", watchURL)
	if err != nil {
		logutil.GetLogger(ctx).Warn("video metadata fetch failed", zap.String("video_id", videoID), zap.Error(err))
		return meta
	}
	var raw struct {
		Title       string  `json:"title"`
		Duration    float64 `json:"duration"`
		Description string  `json:"description"`
		Uploader    string  `json:"uploader"`
		UploadDate  string  `json:"upload_date"`
	}
	if err := json.Unmarshal([]byte(out.Stdout), &raw); err != nil {
		logutil.GetLogger(ctx).Warn("video metadata parse failed", zap.String("video_id", videoID), zap.Error(err))
		return meta
	}
	if raw.Title != "" {
		meta.Title = raw.Title
	}
	meta.Duration = int(raw.Duration)
	meta.Description = raw.Description
	meta.Channel = raw.Uploader
	meta.UploadDate = raw.UploadDate
	return meta
}

// FetchTranscript prefers the platform's auto-captions and only
// transcribes the audio track when no caption file appears.
func (c *Client) FetchTranscript(ctx context.Context, videoID string) (string, error) {
	transcript, err := c.fetchCaptions(ctx, videoID)
	if err == nil && transcript != "" {
		return transcript, nil
	}
	logutil.GetLogger(ctx).Info("no caption track, transcribing audio", zap.String("video_id", videoID))
	return c.transcribeAudio(ctx, videoID)
}

func (c *Client) fetchCaptions(ctx context.Context, videoID string) (string, error) {
	watchURL := "https://www.youtube.com/watch?v=" + videoID
	outputTemplate := filepath.Join(c.workDir, videoID)
	if _, err := c.runner.Run(ctx, "yt-dlp",
		"--write-auto-sub", "--skip-download", "--sub-format", "vtt",
		"--output", outputTemplate, watchURL,
	); err != nil {
		return "", err
	}
	// yt-dlp names the file <id>.<lang>.vtt and the language tag
	// follows the video, so glob rather than assume English.
	candidates, err := filepath.Glob(outputTemplate + "*.vtt")
	if err != nil || len(candidates) == 0 {
		return "", fmt.Errorf("no caption file for video %s", videoID)
	}
	vttPath := candidates[0]
	data, err := os.ReadFile(vttPath)
	if err != nil {
		return "", err
	}
	defer os.Remove(vttPath)
	return ParseVTT(string(data)), nil
}

func (c *Client) transcribeAudio(ctx context.Context, videoID string) (string, error) {
	if c.transcriber == nil {
		return "", fmt.Errorf("no transcriber configured")
	}
	watchURL := "https://www.youtube.com/watch?v=" + videoID
	audioPath := filepath.Join(c.workDir, videoID+".mp3")
	if _, err := c.runner.Run(ctx, "yt-dlp",
		"-x", "--audio-format", "mp3", "-o", audioPath, watchURL,
	); err != nil {
		return "", err
	}
	defer os.Remove(audioPath)
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return "", err
	}
	return c.transcriber.Transcribe(ctx, filepath.Base(audioPath), audio)
}

// ParseVTT strips the WEBVTT header, cue timing lines, blank lines and
// inline markup, joining the remaining caption text with single
// spaces.
func ParseVTT(content string) string {
	var parts []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == "WEBVTT" {
			continue
		}
		if strings.Contains(trimmed, "-->") || cueTimingRegex.MatchString(trimmed) {
			continue
		}
		cleaned := strings.TrimSpace(inlineTagRegex.ReplaceAllString(trimmed, ""))
		if cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	return strings.Join(parts, " ")
}
