package pipeline

import (
	"strings"

	"github.com/mediateca/vodrag/pkg/config"
	"github.com/mediateca/vodrag/pkg/models"
)

// residualMinTokens drops trailing windows too small to stand alone as
// a chunk.
const residualMinTokens = 50

// Chunker packs transcript segments into token-bounded chunks with a
// sliding overlap. Packing is deterministic: the same segments always
// produce the same chunk boundaries.
type Chunker struct {
	targetTokens     int
	overlapTokens    int
	avgCharsPerToken int
}

// NewChunker creates a chunker from the pipeline config.
func NewChunker(cfg *config.PipelineConfig) *Chunker {
	return &Chunker{
		targetTokens:     cfg.TargetTokens,
		overlapTokens:    cfg.OverlapTokens,
		avgCharsPerToken: cfg.AvgCharsPerToken,
	}
}

// estimateTokens converts a character count to a token estimate,
// rounding up.
func (c *Chunker) estimateTokens(charLen int) int {
	return (charLen + c.avgCharsPerToken - 1) / c.avgCharsPerToken
}

// Pack accumulates segments until the token estimate reaches the target,
// emits a chunk, then slides the window forward keeping roughly
// overlapTokens worth of trailing segments. Empty-text segments are
// skipped. A trailing residual is emitted only when it is large enough
// to stand alone.
func (c *Chunker) Pack(videoID string, segments []models.Segment) []models.Chunk {
	overlapCharLimit := c.overlapTokens * c.avgCharsPerToken

	var chunks []models.Chunk
	var window []models.Segment
	charLen := 0

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		seg.Text = text

		window = append(window, seg)
		charLen += len(text) + 1

		if c.estimateTokens(charLen) >= c.targetTokens {
			chunks = append(chunks, buildChunk(videoID, len(chunks), window))

			// Slide: drop leading segments until only the overlap remains.
			for charLen > overlapCharLimit && len(window) > 1 {
				charLen -= len(window[0].Text) + 1
				window = window[1:]
			}
		}
	}

	if len(window) > 0 && c.estimateTokens(charLen) > residualMinTokens {
		chunks = append(chunks, buildChunk(videoID, len(chunks), window))
	}
	return chunks
}

func buildChunk(videoID string, index int, window []models.Segment) models.Chunk {
	texts := make([]string, len(window))
	for i, s := range window {
		texts[i] = s.Text
	}
	return models.Chunk{
		VideoID:    videoID,
		ChunkIndex: index,
		StartTime:  window[0].StartTime,
		EndTime:    window[len(window)-1].EndTime,
		Text:       strings.Join(texts, " "),
	}
}
