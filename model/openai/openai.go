// Package openai provides model.Generator and model.Embedder implementations
// backed by the OpenAI Chat Completions (streaming) and Embeddings APIs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/prospectmesh/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Options configure the OpenAI adapters.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model               string
	EmbeddingModel      string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		EmbeddingModel:      openai.EmbeddingModelTextEmbedding3Small,
		Temperature:         0.7,
		MaxCompletionTokens: 1024,
	}
}

// Model wraps the OpenAI API behind model.Generator and model.Embedder.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client. Without an
// explicit key the client reads OPENAI_API_KEY.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(clientOpts...)
	return &Model{client: &client, opts: opts}
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate streams a chat completion as text fragments followed by one final
// fragment carrying the complete text.
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

func (m *Model) buildParams(req model.Request) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	temperature := m.opts.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	maxTokens := m.opts.MaxCompletionTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
}

// stream forwards deltas until the stream ends. The final fragment is only
// sent when a finish reason arrived, so truncated streams never look complete.
func (m *Model) stream(ctx context.Context, params openai.ChatCompletionNewParams, out chan<- model.Fragment) error {
	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var (
		text   strings.Builder
		finish string
		usage  *model.TokenUsage
	)

	for stream.Next() {
		ck := stream.Current()
		if ck.Usage.TotalTokens > 0 {
			usage = &model.TokenUsage{
				PromptTokens:     int(ck.Usage.PromptTokens),
				CompletionTokens: int(ck.Usage.CompletionTokens),
				TotalTokens:      int(ck.Usage.TotalTokens),
			}
		}
		for _, ch := range ck.Choices {
			if ch.Delta.Content != "" {
				text.WriteString(ch.Delta.Content)
				if err := send(ctx, out, model.Fragment{Partial: true, Text: ch.Delta.Content}); err != nil {
					return err
				}
			}
			if ch.FinishReason != "" {
				finish = ch.FinishReason
			}
		}
	}
	if err := stream.Err(); err != nil {
		return classify(fmt.Errorf("openai streaming error: %w", err))
	}
	if finish == "" {
		return fmt.Errorf("openai stream ended without finish reason")
	}

	return send(ctx, out, model.Fragment{Text: text.String(), FinishReason: finish, Usage: usage})
}

func send(ctx context.Context, out chan<- model.Fragment, f model.Fragment) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- f:
		return nil
	}
}

// Embed implements model.Embedder.
func (m *Model) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := m.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: m.opts.EmbeddingModel,
	})
	if err != nil {
		return nil, classify(fmt.Errorf("openai embeddings error: %w", err))
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings returned no data")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// classify marks rate limits and server errors as transient.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && (apiErr.StatusCode == 429 || apiErr.StatusCode >= 500) {
		return model.Transient(err)
	}
	return err
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "openai"}
}

var (
	_ model.Generator = (*Model)(nil)
	_ model.Embedder  = (*Model)(nil)
)
