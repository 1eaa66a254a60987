package model

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// ErrTransient marks generation failures worth retrying (rate limits, 5xx,
// dropped connections). Adapters wrap provider errors with it.
var ErrTransient = errors.New("transient generation failure")

// ErrIncomplete is returned by Collect when the stream closed before the
// final fragment arrived.
var ErrIncomplete = errors.New("generation ended without a final fragment")

// Transient wraps err with ErrTransient.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Request captures the normalized generation input produced by the writer.
type Request struct {
	Instructions string  `json:"instructions"` // System style instructions
	Prompt       string  `json:"prompt"`       // Rendered user prompt
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Fragment is a (partial or final) chunk emitted by a streaming generator.
// Partial fragments carry a text delta; the single final fragment carries the
// complete text and a finish reason.
type Fragment struct {
	Partial      bool        `json:"partial"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason,omitempty"` // "stop", "length", ...
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a generator implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "gemini", "ollama", "mock"
}

// Generator is the minimal interface the writer needs to drive generation.
// Each call is independent; the fragment channel is finite and closed when the
// generation ends. Terminal errors arrive on the error channel (buffered 1).
type Generator interface {
	Generate(ctx context.Context, req Request) (<-chan Fragment, <-chan error)

	// Info returns information about the generator implementation.
	Info() Info
}

// Embedder turns text into a vector. Implementations return vectors of a
// fixed dimension; callers normalize before indexing.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// MockGenerator is a lightweight in‑memory Generator useful for tests & examples.
// It streams the configured fragments in order and then the final fragment.
type MockGenerator struct {
	info      Info
	fragments []string
	responses map[string][]string

	// BlockAfter, when > 0, stops after that many fragments and waits for
	// cancellation instead of finishing.
	BlockAfter int
}

// NewMockGenerator constructs a MockGenerator streaming fragments for every
// prompt without a registered response.
func NewMockGenerator(fragments ...string) *MockGenerator {
	return &MockGenerator{
		info:      Info{Name: "mock", Provider: "mock"},
		fragments: fragments,
		responses: make(map[string][]string),
	}
}

// AddResponse registers deterministic fragments for an exact prompt.
func (m *MockGenerator) AddResponse(prompt string, fragments ...string) {
	m.responses[prompt] = fragments
}

// Generate implements Generator; emits fragments one by one then the final text.
func (m *MockGenerator) Generate(ctx context.Context, req Request) (<-chan Fragment, <-chan error) {
	out := make(chan Fragment, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if req.Prompt == "" {
			errCh <- fmt.Errorf("no prompt provided")
			return
		}

		fragments, ok := m.responses[req.Prompt]
		if !ok {
			fragments = m.fragments
		}
		if len(fragments) == 0 {
			fragments = []string{"Subject: Hello\nBody: Mock response"}
		}

		var full strings.Builder
		for i, f := range fragments {
			if m.BlockAfter > 0 && i == m.BlockAfter {
				<-ctx.Done()
				errCh <- ctx.Err()
				return
			}
			full.WriteString(f)
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- Fragment{Partial: true, Text: f}:
			}
		}

		if m.BlockAfter > 0 && m.BlockAfter >= len(fragments) {
			<-ctx.Done()
			errCh <- ctx.Err()
			return
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- Fragment{Partial: false, Text: full.String(), FinishReason: "stop"}:
		}
	}()

	return out, errCh
}

// Info implements Generator.
func (m *MockGenerator) Info() Info { return m.info }

// Collect drains a generation and returns the final text. Partial fragments
// are passed to onFragment when it is non-nil.
func Collect(ctx context.Context, g Generator, req Request, onFragment func(string)) (string, error) {
	fragCh, errCh := g.Generate(ctx, req)

	var final *Fragment
	for fragCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case f, ok := <-fragCh:
			if !ok {
				fragCh = nil
				continue
			}
			if f.Partial {
				if onFragment != nil {
					onFragment(f.Text)
				}
				continue
			}
			ff := f
			final = &ff
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return "", err
			}
		}
	}

	if final == nil {
		return "", ErrIncomplete
	}

	return final.Text, nil
}

// HashEmbedder is a deterministic, dependency free Embedder based on feature
// hashing of lower-cased word tokens. It is meant for tests and offline runs.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder returns a HashEmbedder producing dim-sized vectors.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 64
	}
	return &HashEmbedder{Dim: dim}
}

// Embed implements Embedder. The result is L2-normalized; empty text yields an
// error since it has no direction.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		hf := fnv.New32a()
		_, _ = hf.Write([]byte(w))
		sum := hf.Sum32()
		idx := int(sum % uint32(h.Dim))
		if sum&(1<<31) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return nil, fmt.Errorf("cannot embed text without tokens")
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}

	return vec, nil
}
