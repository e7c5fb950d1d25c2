// Package media shells out to yt-dlp and ffmpeg to list channel uploads
// and produce normalized audio files for transcription.
package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mediateca/vodrag/pkg/config"
)

// VideoMeta is one accepted channel entry. Entries that are live, upcoming,
// or have no duration are filtered before they reach this type.
type VideoMeta struct {
	ID          string
	Title       string
	Description string
	Duration    int
	PublishedAt *time.Time
}

// Fetcher lists a channel's videos and downloads normalized audio.
type Fetcher interface {
	ListChannel(ctx context.Context, channelURL string, maxVideos int) ([]VideoMeta, error)
	DownloadAudio(ctx context.Context, videoID string) (string, error)
}

// YtDlpFetcher implements Fetcher with yt-dlp and ffmpeg subprocesses.
type YtDlpFetcher struct {
	ytDlp           string
	ffmpeg          string
	audioDir        string
	metadataTimeout time.Duration
	downloadTimeout time.Duration
}

var _ Fetcher = (*YtDlpFetcher)(nil)

// NewYtDlpFetcher creates a fetcher and ensures the audio directory exists.
func NewYtDlpFetcher(cfg *config.MediaConfig, audioDir string) (*YtDlpFetcher, error) {
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audio directory: %w", err)
	}
	return &YtDlpFetcher{
		ytDlp:           cfg.YtDlpPath,
		ffmpeg:          cfg.FfmpegPath,
		audioDir:        audioDir,
		metadataTimeout: cfg.MetadataTimeoutPerVideo,
		downloadTimeout: cfg.DownloadTimeout,
	}, nil
}

// playlistEntry is the subset of a yt-dlp flat-playlist JSON line we read.
type playlistEntry struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Duration    *float64 `json:"duration"`
	LiveStatus  *string  `json:"live_status"`
	UploadDate  string   `json:"upload_date"`
	Timestamp   *int64   `json:"timestamp"`
}

// ListChannel fetches the channel listing and returns up to maxVideos
// accepted entries. Live and upcoming streams and entries without a
// duration are skipped and do not count against the cap.
//
// The subprocess timeout scales with maxVideos since yt-dlp walks the
// whole playlist before exiting.
func (f *YtDlpFetcher) ListChannel(ctx context.Context, channelURL string, maxVideos int) ([]VideoMeta, error) {
	timeout := f.metadataTimeout * time.Duration(maxVideos)
	listCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slog.Info("Fetching channel listing", "channel_url", channelURL, "max_videos", maxVideos)

	cmd := exec.CommandContext(listCtx, f.ytDlp, "-v", "--flat-playlist", "--dump-json", channelURL)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if listCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("channel listing timed out after %s", timeout)
		}
		return nil, fmt.Errorf("yt-dlp listing failed: %w, stderr: %s", err, tail(stderr.String()))
	}

	videos, err := parsePlaylist(&stdout, maxVideos)
	if err != nil {
		return nil, err
	}
	slog.Info("Fetched channel listing", "channel_url", channelURL, "accepted", len(videos))
	return videos, nil
}

// parsePlaylist reads line-delimited JSON entries, filters out non-VOD
// items, and stops once maxVideos entries are accepted.
func parsePlaylist(r io.Reader, maxVideos int) ([]VideoMeta, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var videos []VideoMeta
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry playlistEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("failed to parse playlist entry: %w", err)
		}
		if skipEntry(entry) {
			continue
		}

		videos = append(videos, VideoMeta{
			ID:          entry.ID,
			Title:       entry.Title,
			Description: entry.Description,
			Duration:    int(*entry.Duration),
			PublishedAt: publishedAt(entry),
		})
		if len(videos) >= maxVideos {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read playlist output: %w", err)
	}
	return videos, nil
}

// skipEntry reports whether an entry is not a finished VOD.
func skipEntry(entry playlistEntry) bool {
	if entry.LiveStatus != nil {
		switch *entry.LiveStatus {
		case "is_upcoming", "is_live":
			return true
		}
	}
	return entry.Duration == nil
}

// publishedAt derives the publish time from upload_date (YYYYMMDD), falling
// back to the unix timestamp when present.
func publishedAt(entry playlistEntry) *time.Time {
	if entry.UploadDate != "" {
		if t, err := time.Parse("20060102", entry.UploadDate); err == nil {
			return &t
		}
	}
	if entry.Timestamp != nil {
		t := time.Unix(*entry.Timestamp, 0).UTC()
		return &t
	}
	return nil
}

// DownloadAudio downloads the best audio track for a video and normalizes
// it to 16 kHz mono WAV. Returns the path of the finished file. An already
// present file is reused without a download.
func (f *YtDlpFetcher) DownloadAudio(ctx context.Context, videoID string) (string, error) {
	url := "https://www.youtube.com/watch?v=" + videoID
	output := filepath.Join(f.audioDir, videoID+".wav")
	tmpOutput := filepath.Join(f.audioDir, videoID+"_tmp.wav")

	if _, err := os.Stat(output); err == nil {
		slog.Info("Audio already exists", "video_id", videoID)
		return output, nil
	}

	slog.Info("Downloading audio", "video_id", videoID)

	download := []string{"-f", "bestaudio", "--extract-audio", "--audio-format", "wav", "-o", output, url}
	if err := f.runCommand(ctx, f.ytDlp, download); err != nil {
		f.cleanup(output, tmpOutput)
		return "", fmt.Errorf("audio download failed for %s: %w", videoID, err)
	}

	normalize := []string{"-y", "-i", output, "-ar", "16000", "-ac", "1", tmpOutput}
	if err := f.runCommand(ctx, f.ffmpeg, normalize); err != nil {
		f.cleanup(output, tmpOutput)
		return "", fmt.Errorf("audio normalization failed for %s: %w", videoID, err)
	}

	if err := os.Rename(tmpOutput, output); err != nil {
		f.cleanup(output, tmpOutput)
		return "", fmt.Errorf("failed to finalize audio file: %w", err)
	}

	slog.Info("Downloaded and normalized audio", "video_id", videoID, "audio_path", output)
	return output, nil
}

// runCommand executes one subprocess under the download timeout.
func (f *YtDlpFetcher) runCommand(ctx context.Context, name string, args []string) error {
	cmdCtx, cancel := context.WithTimeout(ctx, f.downloadTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("timed out after %s", f.downloadTimeout)
		}
		return fmt.Errorf("%w, stderr: %s", err, tail(stderr.String()))
	}
	return nil
}

// cleanup removes partial files left by a failed download.
func (f *YtDlpFetcher) cleanup(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove partial audio file", "path", p, "error", err)
		}
	}
}

// tail keeps error output short enough to log.
func tail(s string) string {
	s = strings.TrimSpace(s)
	const max = 2048
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
