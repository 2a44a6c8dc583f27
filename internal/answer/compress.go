package answer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/nara/pkg/cache"
	"github.com/MrWong99/nara/pkg/content"
	"github.com/MrWong99/nara/pkg/provider/llm"
	"github.com/MrWong99/nara/pkg/types"
)

// DefaultCompressTarget is the default summary size in tokens.
const DefaultCompressTarget = 9_000

const compressTemperature = 0.2

const compressSystemPrompt = `You condense one audiobook chapter transcript into a faithful summary.
Preserve every named person, place and object, every event, and the order in which events happen.
Keep the paragraph markers ([pN]) and timestamps ([t=MM:SS]) of the passages you summarise so they can still be cited.
Do not add anything that is not in the transcript. Do not speculate about later chapters.
Stay within %d tokens.`

// Compressor summarises a chapter that is too large to send verbatim.
type Compressor struct {
	llm   llm.Provider
	cache cache.Cache
	ttl   time.Duration
}

// CompressorOption configures a [Compressor].
type CompressorOption func(*Compressor)

// WithCache memoises summaries in c for ttl. A ttl <= 0 stores without expiry.
func WithCache(c cache.Cache, ttl time.Duration) CompressorOption {
	return func(comp *Compressor) {
		comp.cache = c
		comp.ttl = ttl
	}
}

// NewCompressor creates a Compressor backed by p.
func NewCompressor(p llm.Provider, opts ...CompressorOption) *Compressor {
	c := &Compressor{llm: p}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compress summarises units to roughly targetTokens. Model errors and empty
// summaries are returned as errors; the uncompressed text is never passed
// through.
func (c *Compressor) Compress(ctx context.Context, units []content.TranscriptUnit, targetTokens int) (string, error) {
	return c.CompressBook(ctx, "", units, targetTokens)
}

// CompressBook is [Compressor.Compress] with the book id folded into the
// cache key.
func (c *Compressor) CompressBook(ctx context.Context, bookID string, units []content.TranscriptUnit, targetTokens int) (string, error) {
	if len(units) == 0 {
		return "", errors.New("answer: compress: no units")
	}
	if targetTokens <= 0 {
		targetTokens = DefaultCompressTarget
	}

	text := FormatUnits(units)
	key := compressKey(bookID, units[0].ChapterIndex, targetTokens, text)

	if c.cache != nil {
		v, ok, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			slog.Warn("answer: summary cache read failed", "key", key, "err", err)
		case ok && v != "":
			return v, nil
		}
	}

	resp, err := c.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: fmt.Sprintf(compressSystemPrompt, targetTokens),
		Messages:     []types.Message{{Role: "user", Content: text}},
		Temperature:  compressTemperature,
		MaxTokens:    targetTokens,
	})
	if err != nil {
		return "", fmt.Errorf("answer: compress: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", errors.New("answer: compress: model returned an empty summary")
	}
	summary := strings.TrimSpace(resp.Content)

	if resp.Truncated {
		slog.Debug("answer: summary hit the token cap, not caching", "key", key)
	} else if c.cache != nil {
		if err := c.cache.Set(ctx, key, summary, c.ttl); err != nil {
			slog.Warn("answer: summary cache write failed", "key", key, "err", err)
		}
	}
	return summary, nil
}

func compressKey(bookID string, chapter, target int, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("compress:%s:%d:%d:%s", bookID, chapter, target, hex.EncodeToString(sum[:8]))
}
