package models

import (
	"strings"
	"time"
)

// Channel is a video source registered by URL. Parent of Videos.
type Channel struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	URL       string     `json:"url"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// ChannelNameFromURL derives a display name from a channel URL: everything
// after the last "@", or the URL itself when it has none.
func ChannelNameFromURL(url string) string {
	if i := strings.LastIndex(url, "@"); i >= 0 {
		return url[i+1:]
	}
	return url
}

// ChannelStats augments a channel with per-channel processing counters.
type ChannelStats struct {
	Channel
	VideoCount       int `json:"video_count"`
	DownloadedCount  int `json:"downloaded_count"`
	TranscribedCount int `json:"transcribed_count"`
}

// Video is a single item of a channel. video_id is the external identifier
// and primary key. transcribed implies downloaded.
type Video struct {
	VideoID     string     `json:"video_id"`
	ChannelID   int64      `json:"channel_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Duration    *int       `json:"duration,omitempty"`
	AudioPath   *string    `json:"audio_path,omitempty"`
	Downloaded  bool       `json:"downloaded"`
	Transcribed bool       `json:"transcribed"`
	CreatedAt   time.Time  `json:"created_at"`
}

// VideoDetail augments a video with its derived row counts.
type VideoDetail struct {
	Video
	ChunkCount   int `json:"chunk_count"`
	SegmentCount int `json:"segment_count"`
}

// Segment is one timed utterance produced by the transcription stage.
// end_time >= start_time; segments of a video are ordered by start_time.
type Segment struct {
	ID        int64   `json:"id"`
	VideoID   string  `json:"video_id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
}

// Chunk is the indexable unit: a contiguous token-bounded span of transcript
// text. chunk_index is 0-based and contiguous per video; start_time is
// non-decreasing over chunk_index. Vector columns live only in the store.
type Chunk struct {
	ID         int64   `json:"id"`
	VideoID    string  `json:"video_id"`
	ChunkIndex int     `json:"chunk_index"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	Text       string  `json:"text"`
	Summary    *string `json:"summary,omitempty"`
}

// PipelineStats holds library-wide processing counters.
type PipelineStats struct {
	TotalChannels     int `json:"total_channels"`
	TotalVideos       int `json:"total_videos"`
	VideosDownloaded  int `json:"videos_downloaded"`
	VideosTranscribed int `json:"videos_transcribed"`
	TotalChunks       int `json:"total_chunks"`
	ChunksEmbedded    int `json:"chunks_embedded"`
}
