// Package openai provides a model.Client implementation backed by the OpenAI
// Chat Completions and Embeddings APIs. It is the secondary generation
// provider and the sole embedding provider.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/relaydesk/relaydesk/model"
)

type (
	// Options configures the OpenAI adapter.
	Options struct {
		// Model is the chat model identifier used for every generation.
		Model string
		// EmbeddingModel is the embedding model identifier. When empty,
		// Embed returns model.ErrNoEmbedder.
		EmbeddingModel string
	}

	// Client implements model.Client via the OpenAI API.
	Client struct {
		client     sdk.Client
		model      string
		embedModel string
	}
)

// New builds an OpenAI-backed model client.
func New(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model identifier is required")
	}
	return &Client{
		client:     sdk.NewClient(option.WithAPIKey(apiKey)),
		model:      opts.Model,
		embedModel: opts.EmbeddingModel,
	}, nil
}

// Generate renders a single chat completion.
func (c *Client) Generate(ctx context.Context, req model.Request) (model.Response, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(req))
	if err != nil {
		return model.Response{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.Response{}, errors.New("openai chat completion: empty choices")
	}
	return model.Response{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

// Stream renders a chat completion as incremental content deltas.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	return &streamer{stream: c.client.Chat.Completions.NewStreaming(ctx, c.params(req))}, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embedModel == "" {
		return nil, model.ErrNoEmbedder
	}
	resp, err := c.client.Embeddings.New(ctx, sdk.EmbeddingNewParams{
		Model: sdk.EmbeddingModel(c.embedModel),
		Input: sdk.EmbeddingNewParamsInputUnion{OfString: sdk.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embedding: empty response")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (c *Client) params(req model.Request) sdk.ChatCompletionNewParams {
	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, sdk.SystemMessage(req.System))
	}
	messages = append(messages, sdk.UserMessage(req.Prompt))
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	return params
}

type streamer struct {
	stream *ssestream.Stream[sdk.ChatCompletionChunk]
}

// Recv returns the next content delta, io.EOF once the stream completes.
func (s *streamer) Recv() (string, error) {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return chunk.Choices[0].Delta.Content, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		return "", fmt.Errorf("openai stream: %w", err)
	}
	return "", io.EOF
}

// Close releases the underlying SSE connection.
func (s *streamer) Close() error { return s.stream.Close() }
