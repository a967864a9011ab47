// Package model defines the provider-agnostic language model port. Drivers
// under features/model adapt concrete SDKs (Anthropic, OpenAI) to it, and
// features/model/fallback composes two drivers into the primary/secondary
// chain the rest of the system consumes.
package model

import (
	"context"
	"errors"
)

type (
	// Client is the generation and embedding surface the services depend on.
	// Generate and Embed honor context cancellation and deadlines.
	Client interface {
		// Generate produces a single completion for the request.
		Generate(ctx context.Context, req Request) (Response, error)
		// Stream produces a completion as incremental text deltas. Drivers
		// that cannot stream return ErrStreamingUnsupported.
		Stream(ctx context.Context, req Request) (Streamer, error)
		// Embed returns the embedding vector for the given text.
		Embed(ctx context.Context, text string) ([]float32, error)
	}

	// Request is a single-shot prompt with generation parameters.
	Request struct {
		System      string
		Prompt      string
		MaxTokens   int
		Temperature float64
	}

	// Response carries the completion text and provider-reported token usage.
	Response struct {
		Text         string
		InputTokens  int
		OutputTokens int
	}

	// Streamer yields text deltas until io.EOF. Close releases the
	// underlying connection and is safe to call more than once.
	Streamer interface {
		Recv() (string, error)
		Close() error
	}
)

// ErrStreamingUnsupported is returned by Stream when the driver only
// implements single-shot generation.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// ErrNoEmbedder is returned by drivers that do not expose an embedding
// endpoint.
var ErrNoEmbedder = errors.New("model: embeddings not supported")
