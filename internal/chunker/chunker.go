// Package chunker splits page text into chunks whose boundaries fall where
// adjacent sentences stop being semantically similar.
package chunker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"lexrag/internal/models"
	"lexrag/internal/util"

	"go.uber.org/zap"
)

type Strategy string

const (
	Percentile        Strategy = "percentile"
	StandardDeviation Strategy = "standard_deviation"
	Interquartile     Strategy = "interquartile"
)

var defaultThresholds = map[Strategy]float64{
	Percentile:        95,
	StandardDeviation: 3,
	Interquartile:     1.5,
}

// Embedder is the slice of providers.Embedder the chunker needs.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	Strategy Strategy
	// Threshold is the strategy amount: a percentile, or a multiplier of σ or IQR.
	// Zero selects the strategy default.
	Threshold   float64
	BufferSize  int
	WindowRunes int
}

type Chunker struct {
	emb  Embedder
	opts Options
	log  *zap.Logger
}

func New(emb Embedder, opts Options, log *zap.Logger) (*Chunker, error) {
	if opts.Strategy == "" {
		opts.Strategy = Percentile
	}
	def, ok := defaultThresholds[opts.Strategy]
	if !ok {
		return nil, util.ConfigError("unsupported chunk strategy %q", opts.Strategy)
	}
	if opts.Threshold <= 0 {
		opts.Threshold = def
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1
	}
	if opts.WindowRunes <= 0 {
		opts.WindowRunes = 600
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Chunker{emb: emb, opts: opts, log: log}, nil
}

// Split chunks every page of doc. Each chunk gets its own copy of base plus its page label.
func (c *Chunker) Split(ctx context.Context, doc models.Document, base models.Metadata) ([]models.Chunk, error) {
	out := make([]models.Chunk, 0, len(doc.Pages))
	for _, page := range doc.Pages {
		texts, err := c.SplitText(ctx, page.Text)
		if err != nil {
			return nil, fmt.Errorf("chunk %s page %s: %w", doc.Source, page.Label, err)
		}
		for _, text := range texts {
			meta := base.Clone()
			meta[models.MetaPageLabel] = page.Label
			out = append(out, models.Chunk{
				Text:      text,
				PageLabel: page.Label,
				Category:  doc.Category,
				Ordinal:   len(out),
				Metadata:  meta,
			})
		}
	}
	c.log.Debug("document chunked", zap.String("source", doc.Source), zap.Int("pages", len(doc.Pages)), zap.Int("chunks", len(out)))
	return out, nil
}

func (c *Chunker) SplitText(ctx context.Context, text string) ([]string, error) {
	sentences := c.units(text)
	if len(sentences) <= 1 {
		return sentences, nil
	}
	vectors, err := c.emb.EmbedDocuments(ctx, combine(sentences, c.opts.BufferSize))
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(sentences) {
		return nil, util.DataError("chunker got %d vectors for %d sentences", len(vectors), len(sentences))
	}
	distances := make([]float64, len(vectors)-1)
	for i := range distances {
		distances[i] = 1 - cosine(vectors[i], vectors[i+1])
	}
	threshold := c.threshold(distances)

	out := make([]string, 0)
	start := 0
	for i, d := range distances {
		if d > threshold {
			out = append(out, strings.Join(sentences[start:i+1], " "))
			start = i + 1
		}
	}
	out = append(out, strings.Join(sentences[start:], " "))
	return out, nil
}

// units splits on sentence terminators and falls back to rune windows when a
// page has no punctuation at all.
func (c *Chunker) units(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	sentences := SplitSentences(text)
	if len(sentences) == 1 && len([]rune(text)) > c.opts.WindowRunes {
		return util.WindowRunes(text, c.opts.WindowRunes, 0)
	}
	return sentences
}

func (c *Chunker) threshold(distances []float64) float64 {
	switch c.opts.Strategy {
	case StandardDeviation:
		mean, std := meanStd(distances)
		return mean + c.opts.Threshold*std
	case Interquartile:
		mean, _ := meanStd(distances)
		q1, q3 := percentile(distances, 25), percentile(distances, 75)
		return mean + c.opts.Threshold*(q3-q1)
	default:
		return percentile(distances, c.opts.Threshold)
	}
}

// SplitSentences cuts after '.', '?' or '!' when followed by whitespace.
func SplitSentences(text string) []string {
	runes := []rune(text)
	out := make([]string, 0)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '?', '!':
		default:
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

// combine joins each sentence with buffer neighbours on either side.
func combine(sentences []string, buffer int) []string {
	out := make([]string, len(sentences))
	for i := range sentences {
		lo := max(0, i-buffer)
		hi := min(len(sentences), i+buffer+1)
		out[i] = strings.Join(sentences[lo:hi], " ")
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

// percentile uses linear interpolation between closest ranks.
func percentile(xs []float64, p float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	p = math.Max(0, math.Min(100, p))
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[hi]-sorted[lo])
}
