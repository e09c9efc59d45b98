// Package openai generates research-question suggestions with the Chat
// Completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/soaringjerry/whenwhy/internal/services"
)

const (
	DefaultModel   = "gpt-3.5-turbo"
	DefaultTimeout = 15 * time.Second
	maxTokens      = 300
	temperature    = 0.8
	// Replies with fewer suggestions than minSuggestions count as a failure.
	minSuggestions = 2
)

const systemPrompt = "You are a helpful assistant for data science education. Provide creative, diverse research ideas that encourage student exploration."

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(*Provider)

func WithBaseURL(base string) Option {
	return func(p *Provider) { p.endpoint = normalizeEndpoint(base) }
}

func WithHTTPClient(c HTTPClient) Option {
	return func(p *Provider) { p.client = c }
}

func WithModel(model string) Option {
	return func(p *Provider) {
		if strings.TrimSpace(model) != "" {
			p.model = model
		}
	}
}

// WithTimeout bounds each request on top of the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// Provider implements services.SuggestionProvider.
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	timeout  time.Duration
	client   HTTPClient
}

func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:   apiKey,
		endpoint: normalizeEndpoint(""),
		model:    DefaultModel,
		timeout:  DefaultTimeout,
		client:   http.DefaultClient,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

var _ services.SuggestionProvider = (*Provider)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *Provider) Generate(ctx context.Context, req services.SuggestionRequest) (list []string, err error) {
	ctx, span := otel.Tracer("whenwhy/openai").Start(ctx, "openai.generate")
	span.SetAttributes(attribute.Int("dataset.id", req.Dataset.ID), attribute.Int("ideas.count", len(req.ExistingIdeas)), attribute.String("model", p.model))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("suggestions.count", len(list)))
		}
		span.End()
	}()
	if strings.TrimSpace(p.apiKey) == "" {
		return nil, fmt.Errorf("openai: api key not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(req)},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("openai: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var cc chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cc); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices")
	}
	list = ParseSuggestions(cc.Choices[0].Message.Content)
	if len(list) < minSuggestions {
		return nil, fmt.Errorf("openai: got %d suggestions, want at least %d", len(list), minSuggestions)
	}
	if len(list) > services.MaxSuggestions {
		list = list[:services.MaxSuggestions]
	}
	return list, nil
}

// BuildPrompt renders the user message for a dataset and the ideas the
// participant already has.
func BuildPrompt(req services.SuggestionRequest) string {
	existing := "None yet"
	if len(req.ExistingIdeas) > 0 {
		lines := make([]string, 0, len(req.ExistingIdeas))
		for _, idea := range req.ExistingIdeas {
			lines = append(lines, "- "+idea)
		}
		existing = strings.Join(lines, "\n")
	}
	var b strings.Builder
	b.WriteString("You are helping a data science student practice problem framing.\n\n")
	fmt.Fprintf(&b, "Dataset: %s\n", req.Dataset.Title)
	fmt.Fprintf(&b, "Description: %s\n", req.Dataset.Description)
	fmt.Fprintf(&b, "Available variables: %s\n\n", strings.Join(req.Dataset.Variables, ", "))
	fmt.Fprintf(&b, "Student's existing ideas:\n%s\n\n", existing)
	b.WriteString("Provide 2-3 additional creative research questions or project ideas that explore different angles of this dataset. ")
	b.WriteString("Format each as a brief suggestion (1-2 sentences). ")
	b.WriteString("Focus on encouraging exploration of relationships between variables, potential insights, or practical applications. ")
	b.WriteString("Avoid repeating similar ideas to what the student already proposed.\n\n")
	b.WriteString(`Format your response as a simple list with each suggestion on a new line starting with "- ".`)
	return b.String()
}

// ParseSuggestions keeps the lines that start with a dash, without the dash.
func ParseSuggestions(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") {
			continue
		}
		s := strings.TrimSpace(strings.TrimPrefix(line, "-"))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeEndpoint(base string) string {
	endpoint := strings.TrimRight(strings.TrimSpace(base), "/")
	if endpoint == "" {
		endpoint = "https://api.openai.com"
	}
	switch {
	case strings.HasSuffix(endpoint, "/chat/completions"):
		return endpoint
	case strings.HasSuffix(endpoint, "/v1"):
		return endpoint + "/chat/completions"
	default:
		return endpoint + "/v1/chat/completions"
	}
}
