// Package chain answers one question at a time as a fixed sequence of stages:
// Received, Condensed, Retrieved, Answered.
package chain

import (
	"context"
	"fmt"
	"strings"

	"lexrag/internal/index"
	"lexrag/internal/models"
	"lexrag/internal/prompts"
	"lexrag/internal/providers"
	"lexrag/internal/util"

	"go.uber.org/zap"
)

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Retriever interface {
	Query(ctx context.Context, req index.QueryRequest) ([]models.Match, error)
}

type Options struct {
	RetrieverK  int
	MemoryK     int
	Temperature float64
}

type Chain struct {
	llm  providers.LLMProvider
	emb  QueryEmbedder
	idx  Retriever
	opts Options
	log  *zap.Logger
}

func New(llm providers.LLMProvider, emb QueryEmbedder, idx Retriever, opts Options, log *zap.Logger) *Chain {
	if opts.RetrieverK <= 0 {
		opts.RetrieverK = 5
	}
	if opts.MemoryK < 0 {
		opts.MemoryK = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Chain{llm: llm, emb: emb, idx: idx, opts: opts, log: log}
}

func (c *Chain) MemoryK() int {
	return c.opts.MemoryK
}

type Received struct {
	Question string
	History  []models.Turn
	Filter   models.SourceFilter
}

type Condensed struct {
	Received
	Standalone string
}

type Retrieved struct {
	Condensed
	Matches []models.Match
}

type Answered struct {
	Question   string            `json:"question"`
	Standalone string            `json:"standalone_question"`
	Answer     string            `json:"answer"`
	Citations  []models.Citation `json:"citations"`
}

// Run drives one question through every stage.
func (c *Chain) Run(ctx context.Context, question string, history []models.Turn, filter models.SourceFilter) (Answered, error) {
	rec, err := c.Receive(question, history, filter)
	if err != nil {
		return Answered{}, err
	}
	cond, err := c.Condense(ctx, rec)
	if err != nil {
		return Answered{}, err
	}
	ret, err := c.Retrieve(ctx, cond)
	if err != nil {
		return Answered{}, err
	}
	return c.Answer(ctx, ret)
}

// Receive rejects blank questions before any service is called.
func (c *Chain) Receive(question string, history []models.Turn, filter models.SourceFilter) (Received, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return Received{}, util.UserInputError("question is empty")
	}
	return Received{Question: q, History: Window(history, c.opts.MemoryK), Filter: filter}, nil
}

func (c *Chain) Condense(ctx context.Context, in Received) (Condensed, error) {
	if len(in.History) == 0 {
		return Condensed{Received: in, Standalone: in.Question}, nil
	}
	prompt, err := prompts.Condense(prompts.CondenseInput{History: in.History, Question: in.Question})
	if err != nil {
		return Condensed{}, err
	}
	resp, _, err := c.llm.Generate(ctx, providers.GenerateRequest{
		Operation:   providers.OpCondense,
		Prompt:      prompt,
		Question:    in.Question,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return Condensed{}, fmt.Errorf("condense question: %w", err)
	}
	standalone := strings.TrimSpace(resp.Text)
	if standalone == "" {
		c.log.Warn("condense returned empty text; using the question as asked")
		standalone = in.Question
	}
	c.log.Debug("question condensed", zap.String("question", in.Question), zap.String("standalone", standalone))
	return Condensed{Received: in, Standalone: standalone}, nil
}

func (c *Chain) Retrieve(ctx context.Context, in Condensed) (Retrieved, error) {
	vec, err := c.emb.EmbedQuery(ctx, in.Standalone)
	if err != nil {
		return Retrieved{}, fmt.Errorf("embed question: %w", err)
	}
	matches, err := c.idx.Query(ctx, index.QueryRequest{Vector: vec, TopK: c.opts.RetrieverK, Filter: in.Filter})
	if err != nil {
		return Retrieved{}, fmt.Errorf("retrieve context: %w", err)
	}
	if len(matches) > c.opts.RetrieverK {
		matches = matches[:c.opts.RetrieverK]
	}
	c.log.Info("context retrieved",
		zap.Int("matches", len(matches)),
		zap.Bool("all_sources", in.Filter.IsAll()),
		zap.Int("sources", len(in.Filter.Sources)))
	return Retrieved{Condensed: in, Matches: matches}, nil
}

// Answer composes the reply. With no matches the prompt asks for a general-knowledge answer.
func (c *Chain) Answer(ctx context.Context, in Retrieved) (Answered, error) {
	contexts := make([]string, 0, len(in.Matches))
	citations := make([]models.Citation, 0, len(in.Matches))
	for _, m := range in.Matches {
		cit := models.CitationFromMatch(m)
		citations = append(citations, cit)
		contexts = append(contexts, cit.Text)
	}
	prompt, err := prompts.Answer(prompts.AnswerInput{Question: in.Standalone, Context: contexts})
	if err != nil {
		return Answered{}, err
	}
	resp, _, err := c.llm.Generate(ctx, providers.GenerateRequest{
		Operation:   providers.OpAnswer,
		Prompt:      prompt,
		Context:     contexts,
		Question:    in.Standalone,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return Answered{}, fmt.Errorf("compose answer: %w", err)
	}
	return Answered{
		Question:   in.Question,
		Standalone: in.Standalone,
		Answer:     strings.TrimSpace(resp.Text),
		Citations:  citations,
	}, nil
}

// Window keeps the last k user turns and every assistant turn after the oldest of them.
func Window(history []models.Turn, k int) []models.Turn {
	if k <= 0 {
		return nil
	}
	seen := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != models.RoleUser {
			continue
		}
		seen++
		if seen == k {
			return append([]models.Turn(nil), history[i:]...)
		}
	}
	return append([]models.Turn(nil), history...)
}
