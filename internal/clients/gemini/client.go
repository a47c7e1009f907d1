// Package gemini provides the report summary client backed by the Google Gemini API
package gemini

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aristath/optiwealth/internal/domain"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

//go:embed prompt.txt
var basePrompt string

// textGenerator is the subset of the Gemini API the summarizer needs
type textGenerator interface {
	GenerateContent(ctx context.Context, model, prompt string) (string, error)
}

// Client implements domain.SummaryGenerator
type Client struct {
	gen   textGenerator
	model string
	log   zerolog.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithModel sets the model to use
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log.With().Str("client", "gemini").Logger()
	}
}

// NewClient creates a new Gemini summary client
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newClient(&genaiGenerator{client: genaiClient}, opts...), nil
}

func newClient(gen textGenerator, opts ...ClientOption) *Client {
	c := &Client{
		gen:   gen,
		model: DefaultModel,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Summarize asks the model for a JSON commentary on the report.
// Non-JSON answers are wrapped as {"raw_text": ...}.
func (c *Client) Summarize(ctx context.Context, report *domain.PortfolioReport) (json.RawMessage, error) {
	prompt, err := buildPrompt(report)
	if err != nil {
		return nil, err
	}

	c.log.Debug().Str("model", c.model).Int("prompt_bytes", len(prompt)).Msg("Generating summary")

	text, err := c.gen.GenerateContent(ctx, c.model, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate summary: %w", err)
	}

	return parseSummary(text), nil
}

func buildPrompt(report *domain.PortfolioReport) (string, error) {
	attachment := struct {
		Portfolio    domain.PortfolioSummary          `json:"portfolio"`
		RiskMetrics  *domain.RiskMetrics              `json:"riskMetrics"`
		Forecasts    map[string]domain.ForecastResult `json:"forecasts"`
		Optimization domain.OptimizationResult        `json:"optimization"`
	}{
		Portfolio:    report.Portfolio,
		RiskMetrics:  report.RiskMetrics.Metrics,
		Forecasts:    report.Forecasts,
		Optimization: report.Optimization,
	}

	body, err := json.MarshalIndent(attachment, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode report for summary: %w", err)
	}

	return strings.TrimSpace(basePrompt) + "\n\n" + string(body), nil
}

// cleanResponse strips markdown code fences around a model answer
func cleanResponse(text string) string {
	cleaned := strings.TrimSpace(text)
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimSpace(cleaned[len("```json"):])
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimSpace(cleaned[len("```"):])
	}
	if strings.HasSuffix(cleaned, "```") {
		cleaned = strings.TrimSpace(cleaned[:len(cleaned)-3])
	}
	return cleaned
}

func parseSummary(text string) json.RawMessage {
	cleaned := cleanResponse(text)

	var probe map[string]any
	if err := json.Unmarshal([]byte(cleaned), &probe); err == nil {
		return json.RawMessage(cleaned)
	}

	wrapped, _ := json.Marshal(map[string]string{"raw_text": cleaned})
	return wrapped
}

// genaiGenerator adapts the genai SDK to textGenerator
type genaiGenerator struct {
	client *genai.Client
}

func (g *genaiGenerator) GenerateContent(ctx context.Context, model, prompt string) (string, error) {
	result, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	return extractTextFromResponse(result)
}

// extractTextFromResponse extracts text from a generate content response
func extractTextFromResponse(result *genai.GenerateContentResponse) (string, error) {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil ||
		len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("no text in response")
	}
	return sb.String(), nil
}
