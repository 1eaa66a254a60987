package core

import (
	"fmt"
	"sync"
)

// GenerationLimiter enforces a maximum number of LLM generations per run.
type GenerationLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewGenerationLimiter creates a new limiter with a max number of generations.
// If max == 0, unlimited generations are allowed.
func NewGenerationLimiter(max int) *GenerationLimiter {
	return &GenerationLimiter{max: max}
}

// Increment reserves one generation and returns an error once the budget is
// exhausted.
func (gl *GenerationLimiter) Increment() error {
	if gl == nil {
		return nil
	}
	gl.mu.Lock()
	defer gl.mu.Unlock()

	if gl.max > 0 && gl.count >= gl.max {
		return fmt.Errorf("exceeded max generations per run: %d", gl.max)
	}
	gl.count++

	return nil
}

// Count returns the current number of generations made.
func (gl *GenerationLimiter) Count() int {
	gl.mu.Lock()
	defer gl.mu.Unlock()

	return gl.count
}

// Remaining returns how many generations are left before hitting the limit.
func (gl *GenerationLimiter) Remaining() int {
	gl.mu.Lock()
	defer gl.mu.Unlock()

	if gl.max == 0 {
		return -1 // unlimited
	}

	return gl.max - gl.count
}
