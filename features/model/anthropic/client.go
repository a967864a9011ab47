// Package anthropic provides a model.Client implementation backed by the
// Anthropic Claude Messages API. It is the primary generation provider.
// Embeddings are not offered and always return model.ErrNoEmbedder.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/relaydesk/relaydesk/model"
)

type (
	// MessagesClient captures the subset of the Anthropic SDK client used by
	// the adapter. It is satisfied by *sdk.MessageService so callers can pass
	// either a real client or a mock in tests.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
		NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
	}

	// Options configures the Anthropic adapter.
	Options struct {
		// Model is the Claude model identifier used for every request.
		Model string
	}

	// Client implements model.Client on top of Anthropic Claude Messages.
	Client struct {
		msg   MessagesClient
		model string
	}
)

// New builds an Anthropic-backed model client from the provided Messages
// client and options.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	return &Client{msg: msg, model: opts.Model}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP client.
func NewFromAPIKey(apiKey, modelID string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{Model: modelID})
}

// Generate issues a non-streaming Messages.New request.
func (c *Client) Generate(ctx context.Context, req model.Request) (model.Response, error) {
	msg, err := c.msg.New(ctx, c.params(req))
	if err != nil {
		return model.Response{}, fmt.Errorf("anthropic message: %w", err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(sdk.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return model.Response{
		Text:         sb.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// Stream issues a streaming Messages request and yields text deltas.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	return &streamer{stream: c.msg.NewStreaming(ctx, c.params(req))}, nil
}

// Embed is not supported by the Anthropic API.
func (c *Client) Embed(context.Context, string) ([]float32, error) {
	return nil, model.ErrNoEmbedder
}

func (c *Client) params(req model.Request) sdk.MessageNewParams {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	return params
}

type streamer struct {
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Recv returns the next text delta, io.EOF once the stream completes.
func (s *streamer) Recv() (string, error) {
	for s.stream.Next() {
		event := s.stream.Current()
		if delta, ok := event.AsAny().(sdk.ContentBlockDeltaEvent); ok {
			if td, ok := delta.Delta.AsAny().(sdk.TextDelta); ok && td.Text != "" {
				return td.Text, nil
			}
		}
	}
	if err := s.stream.Err(); err != nil {
		return "", fmt.Errorf("anthropic stream: %w", err)
	}
	return "", io.EOF
}

// Close releases the underlying SSE connection.
func (s *streamer) Close() error { return s.stream.Close() }
