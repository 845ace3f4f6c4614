package provider

import (
	"context"
	"fmt"
	"time"
)

// FallbackAnswer is appended to every fallback result.
const FallbackAnswer = "This is a pre-generated fallback answer because no OpenAI API key was provided. Processing was simulated with a delay."

// Fallback is the deterministic backend used when no API key is configured.
// It waits a fixed delay to simulate processing, then returns a templated
// answer embedding the original prompt.
type Fallback struct {
	delay time.Duration
}

func NewFallback(delay time.Duration) *Fallback {
	return &Fallback{delay: delay}
}

func (p *Fallback) Name() string { return "fallback" }

func (p *Fallback) Generate(ctx context.Context, prompt string, _ Options) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(p.delay):
	}
	return fmt.Sprintf("Your prompt was: '%s'. %s", prompt, FallbackAnswer), nil
}
