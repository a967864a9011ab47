// Package fallback composes a primary and a secondary model.Client into one.
// Generation tries the primary first and falls over to the secondary on any
// error; embeddings always go to the secondary, which is the sole embedding
// provider. Per-call deadlines are applied here so the individual drivers
// stay deadline-agnostic.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goa.design/clue/log"

	"github.com/relaydesk/relaydesk/model"
)

type (
	// Options configures the composite client.
	Options struct {
		// Primary handles generation first. Required.
		Primary model.Client
		// Secondary handles generation when the primary fails and serves
		// all embedding calls. Required.
		Secondary model.Client
		// GenerateTimeout bounds each generation attempt. Defaults to 10s.
		GenerateTimeout time.Duration
		// EmbedTimeout bounds each embedding call. Defaults to 10s.
		EmbedTimeout time.Duration
	}

	// Client implements model.Client over the primary/secondary pair.
	Client struct {
		primary    model.Client
		secondary  model.Client
		genTimeout time.Duration
		embTimeout time.Duration
	}
)

// New builds the composite client.
func New(opts Options) (*Client, error) {
	if opts.Primary == nil {
		return nil, errors.New("primary client is required")
	}
	if opts.Secondary == nil {
		return nil, errors.New("secondary client is required")
	}
	genTimeout := opts.GenerateTimeout
	if genTimeout <= 0 {
		genTimeout = 10 * time.Second
	}
	embTimeout := opts.EmbedTimeout
	if embTimeout <= 0 {
		embTimeout = 10 * time.Second
	}
	return &Client{
		primary:    opts.Primary,
		secondary:  opts.Secondary,
		genTimeout: genTimeout,
		embTimeout: embTimeout,
	}, nil
}

// Generate tries the primary provider, then the secondary.
func (c *Client) Generate(ctx context.Context, req model.Request) (model.Response, error) {
	resp, perr := c.generateWith(ctx, c.primary, req)
	if perr == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return model.Response{}, perr
	}
	log.Warnf(ctx, "primary model failed, falling back: %v", perr)
	resp, serr := c.generateWith(ctx, c.secondary, req)
	if serr == nil {
		return resp, nil
	}
	return model.Response{}, fmt.Errorf("all model providers failed: primary: %v; secondary: %w", perr, serr)
}

// Stream tries the primary provider, then the secondary. A provider that
// reports model.ErrStreamingUnsupported also triggers the fallback.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	s, perr := c.primary.Stream(ctx, req)
	if perr == nil {
		return s, nil
	}
	if ctx.Err() != nil {
		return nil, perr
	}
	log.Warnf(ctx, "primary model stream failed, falling back: %v", perr)
	s, serr := c.secondary.Stream(ctx, req)
	if serr == nil {
		return s, nil
	}
	return nil, fmt.Errorf("all model providers failed: primary: %v; secondary: %w", perr, serr)
}

// Embed always uses the secondary provider.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.embTimeout)
	defer cancel()
	return c.secondary.Embed(ctx, text)
}

func (c *Client) generateWith(ctx context.Context, client model.Client, req model.Request) (model.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.genTimeout)
	defer cancel()
	return client.Generate(ctx, req)
}
