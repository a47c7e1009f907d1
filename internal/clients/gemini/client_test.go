package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aristath/optiwealth/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeGenerator struct {
	response   string
	err        error
	lastModel  string
	lastPrompt string
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model, prompt string) (string, error) {
	f.lastModel = model
	f.lastPrompt = prompt
	return f.response, f.err
}

func testReport() *domain.PortfolioReport {
	return &domain.PortfolioReport{
		Portfolio: domain.PortfolioSummary{
			Holdings:       []domain.HoldingAnalysis{{Holding: domain.Holding{Symbol: "ITC.NS", Quantity: 10, AvgCost: 380.36}}},
			PortfolioValue: 4168,
		},
		Forecasts:    map[string]domain.ForecastResult{},
		Optimization: domain.EmptyOptimization(),
	}
}

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```  ", `{"a":1}`},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, cleanResponse(tt.input))
		})
	}
}

func TestSummarize_ParsesJSON(t *testing.T) {
	gen := &fakeGenerator{response: "```json\n{\"overview\": \"steady\"}\n```"}
	c := newClient(gen, WithModel("test-model"))

	out, err := c.Summarize(context.Background(), testReport())
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "steady", decoded["overview"])
	assert.Equal(t, "test-model", gen.lastModel)
	assert.Contains(t, gen.lastPrompt, `"ITC.NS"`)
	assert.Contains(t, gen.lastPrompt, "Report:")
}

func TestSummarize_WrapsNonJSON(t *testing.T) {
	c := newClient(&fakeGenerator{response: "The portfolio looks fine."})

	out, err := c.Summarize(context.Background(), testReport())
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "The portfolio looks fine.", decoded["raw_text"])
}

func TestSummarize_PropagatesError(t *testing.T) {
	c := newClient(&fakeGenerator{err: errors.New("quota exceeded")})

	_, err := c.Summarize(context.Background(), testReport())
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestWithModel_IgnoresEmpty(t *testing.T) {
	c := newClient(&fakeGenerator{}, WithModel(""))
	assert.Equal(t, DefaultModel, c.model)
}

func TestExtractTextFromResponse(t *testing.T) {
	_, err := extractTextFromResponse(&genai.GenerateContentResponse{})
	assert.Error(t, err)

	text, err := extractTextFromResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "a"}, {Text: "b"}}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}
