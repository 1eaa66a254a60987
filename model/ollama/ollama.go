// Package ollama talks to a local Ollama server: streaming generation via
// /api/generate (NDJSON) and embeddings via /api/embeddings.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/prospectmesh/model"
)

const (
	defaultBaseURL        = "http://localhost:11434"
	defaultModel          = "llama3.2"
	defaultEmbeddingModel = "nomic-embed-text"
	defaultTimeout        = 300 * time.Second // first request loads the model
)

// Options configure the Ollama client.
type Options struct {
	BaseURL        string
	Model          string
	EmbeddingModel string
	Temperature    float64
	NumPredict     int
	KeepAlive      string
	HTTPClient     *http.Client
}

// Client implements model.Generator and model.Embedder against Ollama.
type Client struct {
	opts Options
	http *http.Client
}

// New creates an Ollama client.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		BaseURL:        defaultBaseURL,
		Model:          defaultModel,
		EmbeddingModel: defaultEmbeddingModel,
		Temperature:    0.7,
		KeepAlive:      "5m",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{opts: opts, http: hc}
}

type generateRequest struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	System    string         `json:"system,omitempty"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type generateChunk struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Generate implements model.Generator.
func (c *Client) Generate(ctx context.Context, req model.Request) (<-chan model.Fragment, <-chan error) {
	out := make(chan model.Fragment, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if err := c.generate(ctx, req, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func (c *Client) generate(ctx context.Context, req model.Request, out chan<- model.Fragment) error {
	options := map[string]any{"temperature": c.opts.Temperature}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if n := req.MaxTokens; n > 0 {
		options["num_predict"] = n
	} else if c.opts.NumPredict > 0 {
		options["num_predict"] = c.opts.NumPredict
	}

	resp, err := c.post(ctx, "/api/generate", generateRequest{
		Model:     c.opts.Model,
		Prompt:    req.Prompt,
		System:    req.Instructions,
		Stream:    true,
		KeepAlive: c.opts.KeepAlive,
		Options:   options,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var text strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("failed to decode ollama chunk: %w", err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("ollama error: %s", chunk.Error)
		}

		if chunk.Response != "" {
			text.WriteString(chunk.Response)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- model.Fragment{Partial: true, Text: chunk.Response}:
			}
		}

		if chunk.Done {
			reason := chunk.DoneReason
			if reason == "" {
				reason = "stop"
			}
			final := model.Fragment{
				Text:         text.String(),
				FinishReason: reason,
				Usage: &model.TokenUsage{
					PromptTokens:     chunk.PromptEvalCount,
					CompletionTokens: chunk.EvalCount,
					TotalTokens:      chunk.PromptEvalCount + chunk.EvalCount,
				},
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- final:
				return nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return model.Transient(fmt.Errorf("ollama stream read failed: %w", err))
	}

	return fmt.Errorf("ollama stream ended before done")
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed implements model.Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.post(ctx, "/api/embeddings", embedRequest{Model: c.opts.EmbeddingModel, Prompt: text})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned an empty embedding")
	}

	return result.Embedding, nil
}

// post sends a JSON request; non-200 responses are returned as errors with
// 429 and 5xx marked transient.
func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, model.Transient(fmt.Errorf("ollama request failed: %w", err))
		}
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, model.Transient(err)
		}
		return nil, err
	}

	return resp, nil
}

// Info implements model.Generator.
func (c *Client) Info() model.Info {
	return model.Info{Name: c.opts.Model, Provider: "ollama"}
}

var (
	_ model.Generator = (*Client)(nil)
	_ model.Embedder  = (*Client)(nil)
)
