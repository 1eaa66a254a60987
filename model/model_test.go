package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockGenerator_StreamsThenFinal(t *testing.T) {
	g := NewMockGenerator("Hi", " there", "!")

	var partials []string
	text, err := Collect(context.Background(), g, Request{Prompt: "p"}, func(s string) { partials = append(partials, s) })
	require.NoError(t, err)
	assert.Equal(t, "Hi there!", text)
	assert.Equal(t, []string{"Hi", " there", "!"}, partials)
}

func TestMockGenerator_ResponsesByPrompt(t *testing.T) {
	g := NewMockGenerator()
	g.AddResponse("special", "A", "B")

	text, err := Collect(context.Background(), g, Request{Prompt: "special"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "AB", text)

	text, err = Collect(context.Background(), g, Request{Prompt: "other"}, nil)
	require.NoError(t, err)
	assert.Contains(t, text, "Subject:")

	_, err = Collect(context.Background(), g, Request{}, nil)
	assert.Error(t, err)
}

func TestMockGenerator_BlockAfterHonoursCancellation(t *testing.T) {
	g := NewMockGenerator("Hi", " there", "!")
	g.BlockAfter = 2

	ctx, cancel := context.WithCancel(context.Background())
	var partials []string
	done := make(chan error, 1)
	go func() {
		_, err := Collect(ctx, g, Request{Prompt: "p"}, func(s string) {
			partials = append(partials, s)
			if len(partials) == 2 {
				cancel()
			}
		})
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not stop after cancellation")
	}
	assert.Equal(t, []string{"Hi", " there"}, partials)
}

func TestTransient(t *testing.T) {
	assert.Nil(t, Transient(nil))
	err := Transient(errors.New("429"))
	assert.ErrorIs(t, err, ErrTransient)
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(32)

	a, err := e.Embed(context.Background(), "customer retention NPS")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "Customer   retention, nps!")
	require.NoError(t, err)
	assert.Equal(t, a, b, "tokenization ignores case and punctuation")

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	_, err = e.Embed(context.Background(), "  ...  ")
	assert.Error(t, err)
}
