// Package anthropic provides a streaming model.Generator for the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/prospectmesh/model"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind model.Generator.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   1024,
	}
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate streams text deltas of a single user message followed by the final
// accumulated text.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Fragment, <-chan error) {
	out := make(chan model.Fragment, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if err := m.stream(ctx, m.buildParams(req), out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	temperature := m.opts.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	maxTokens := m.opts.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}

	return params
}

func (m *Model) stream(ctx context.Context, params anthropic.MessageNewParams, out chan<- model.Fragment) error {
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	message := anthropic.Message{}
	var text strings.Builder

	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return fmt.Errorf("anthropic accumulate error: %w", err)
		}

		ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		delta, ok := ev.Delta.AsAny().(anthropic.TextDelta)
		if !ok || delta.Text == "" {
			continue
		}
		text.WriteString(delta.Text)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- model.Fragment{Partial: true, Text: delta.Text}:
		}
	}
	if err := stream.Err(); err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && (apiErr.StatusCode == 429 || apiErr.StatusCode >= 500) {
			return model.Transient(fmt.Errorf("anthropic streaming error: %w", err))
		}
		return fmt.Errorf("anthropic streaming error: %w", err)
	}
	if message.StopReason == "" {
		return fmt.Errorf("anthropic stream ended without stop reason")
	}

	final := model.Fragment{
		Text:         text.String(),
		FinishReason: string(message.StopReason),
		Usage: &model.TokenUsage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- final:
		return nil
	}
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: string(m.opts.Model), Provider: "anthropic"}
}

var _ model.Generator = (*Model)(nil)
