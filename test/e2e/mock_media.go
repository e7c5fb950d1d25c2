package e2e

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mediateca/vodrag/pkg/media"
)

// ScriptedFetcher implements media.Fetcher without spawning subprocesses.
// Listings come from a fixed slice; downloads write a stub audio file into a
// per-test directory so the transcription stage has a real path to upload.
type ScriptedFetcher struct {
	audioDir string

	mu            sync.Mutex
	videos        []media.VideoMeta
	failDownloads map[string]bool
	listCalls     int
	downloadCalls int
}

var _ media.Fetcher = (*ScriptedFetcher)(nil)

// NewScriptedFetcher creates a fetcher serving the given channel listing.
func NewScriptedFetcher(t *testing.T, videos ...media.VideoMeta) *ScriptedFetcher {
	t.Helper()
	return &ScriptedFetcher{
		audioDir:      t.TempDir(),
		videos:        videos,
		failDownloads: make(map[string]bool),
	}
}

// FailDownload makes DownloadAudio fail for one video ID.
func (f *ScriptedFetcher) FailDownload(videoID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failDownloads[videoID] = true
}

// ListChannel returns the scripted listing, capped at maxVideos.
func (f *ScriptedFetcher) ListChannel(_ context.Context, _ string, maxVideos int) ([]media.VideoMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++

	n := len(f.videos)
	if maxVideos > 0 && maxVideos < n {
		n = maxVideos
	}
	out := make([]media.VideoMeta, n)
	copy(out, f.videos[:n])
	return out, nil
}

// DownloadAudio writes a stub WAV file and returns its path.
func (f *ScriptedFetcher) DownloadAudio(_ context.Context, videoID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadCalls++

	if f.failDownloads[videoID] {
		return "", fmt.Errorf("scripted download failure for %s", videoID)
	}

	path := filepath.Join(f.audioDir, videoID+".wav")
	if err := os.WriteFile(path, []byte("RIFF-stub-audio"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ListCalls returns the number of ListChannel calls.
func (f *ScriptedFetcher) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// DownloadCalls returns the number of DownloadAudio calls.
func (f *ScriptedFetcher) DownloadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloadCalls
}
