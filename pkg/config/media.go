package config

import "time"

// MediaConfig controls the external media fetcher subprocesses.
type MediaConfig struct {
	// YtDlpPath is the yt-dlp executable.
	YtDlpPath string `yaml:"yt_dlp_path"`

	// FfmpegPath is the ffmpeg executable.
	FfmpegPath string `yaml:"ffmpeg_path"`

	// MetadataTimeoutPerVideo bounds the channel listing call, multiplied by
	// the requested max_videos.
	MetadataTimeoutPerVideo time.Duration `yaml:"metadata_timeout_per_video"`

	// DownloadTimeout bounds one download+transcode invocation.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

// DefaultMediaConfig returns the built-in media fetcher defaults.
func DefaultMediaConfig() *MediaConfig {
	return &MediaConfig{
		YtDlpPath:               "yt-dlp",
		FfmpegPath:              "ffmpeg",
		MetadataTimeoutPerVideo: 60 * time.Second,
		DownloadTimeout:         600 * time.Second,
	}
}
