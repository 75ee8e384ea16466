package gemini

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/option"

	"journalrag/internal/apperror"
	"journalrag/internal/middleware"
)

const (
	DefaultEmbeddingModel  = "gemini-embedding-001"
	DefaultGenerativeModel = "gemini-2.0-flash"
)

type Config struct {
	APIKey          string
	EmbeddingModel  string
	GenerativeModel string
	Timeout         time.Duration
}

// Client wraps one genai client for both embeddings and text generation.
type Client struct {
	client          *genai.Client
	embeddingModel  string
	generativeModel string
	timeout         time.Duration
}

func NewClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.GenerativeModel == "" {
		cfg.GenerativeModel = DefaultGenerativeModel
	}

	opts = append(opts, option.WithAPIKey(cfg.APIKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{
		client:          client,
		embeddingModel:  cfg.EmbeddingModel,
		generativeModel: cfg.GenerativeModel,
		timeout:         cfg.Timeout,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	model := c.client.EmbeddingModel(c.embeddingModel)
	res, err := model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, err
	}

	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("empty embedding received")
	}

	return res.Embedding.Values, nil
}

// Generate sends prompt as a single request and returns the text of the first candidate.
// It never retries.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := middleware.StartSpan(ctx, "Gemini.Generate",
		attribute.String("model", c.generativeModel),
		attribute.Int("prompt_chars", len(prompt)),
	)
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := c.client.GenerativeModel(c.generativeModel)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		err = fmt.Errorf("%w: %v", apperror.ErrGeneration, err)
		middleware.AddSpanError(ctx, err)
		return "", err
	}

	text, ok := firstCandidateText(resp)
	if !ok {
		err = fmt.Errorf("%w: model returned no text", apperror.ErrGeneration)
		middleware.AddSpanError(ctx, err)
		return "", err
	}
	return text, nil
}

func firstCandidateText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", false
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", false
	}

	var sb strings.Builder
	found := false
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
			found = true
		}
	}
	return sb.String(), found
}
