// Package gemini provides a streaming model.Generator for Google Gemini via
// the google.golang.org/genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/hupe1980/prospectmesh/model"
	"google.golang.org/genai"
)

// Options configure the Gemini adapter.
type Options struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int32

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// Model streams content from the Gemini API.
type Model struct {
	client *genai.Client
	opts   Options
}

// NewModel creates a Gemini client. GOOGLE_API_KEY is used when APIKey is
// empty.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := Options{
		Model:       "gemini-2.0-flash",
		Temperature: 0.7,
		MaxTokens:   1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("gemini model is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(opts.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(opts.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(opts.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// Generate implements model.Generator.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Fragment, <-chan error) {
	out := make(chan model.Fragment, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if err := m.stream(ctx, req, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func (m *Model) config(req model.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		CandidateCount:  1,
		Temperature:     genai.Ptr(float32(m.opts.Temperature)),
		MaxOutputTokens: m.opts.MaxTokens,
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Instructions != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.Instructions}},
			Role:  "user",
		}
	}
	return cfg
}

func (m *Model) stream(ctx context.Context, req model.Request, out chan<- model.Fragment) error {
	var (
		text   strings.Builder
		finish string
		usage  *model.TokenUsage
	)

	for resp, err := range m.client.Models.GenerateContentStream(ctx, m.opts.Model, genai.Text(req.Prompt), m.config(req)) {
		if err != nil {
			return classifyErr(fmt.Errorf("gemini streaming error: %w", err))
		}
		if resp == nil || len(resp.Candidates) == 0 {
			continue
		}
		if c := resp.Candidates[0]; c != nil && c.FinishReason != "" {
			finish = strings.ToLower(string(c.FinishReason))
		}
		if resp.UsageMetadata != nil {
			usage = &model.TokenUsage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			}
		}

		delta := resp.Text()
		if delta == "" {
			continue
		}
		text.WriteString(delta)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- model.Fragment{Partial: true, Text: delta}:
		}
	}

	if finish == "" {
		return fmt.Errorf("gemini stream ended without finish reason")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- model.Fragment{Text: text.String(), FinishReason: finish, Usage: usage}:
		return nil
	}
}

// classifyErr wraps rate limits, server errors and network timeouts so the
// caller retries with backoff.
func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return model.Transient(err)
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return model.Transient(err)
	}
	return err
}

// Info implements model.Generator.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "gemini"}
}

var _ model.Generator = (*Model)(nil)
