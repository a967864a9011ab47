// Package cohere implements the retrieval.Reranker port against the Cohere
// rerank REST API.
package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relaydesk/relaydesk/retrieval"
)

const (
	defaultEndpoint = "https://api.cohere.com/v2/rerank"
	defaultModel    = "rerank-english-v3.0"
)

type (
	// Options configures the Cohere client.
	Options struct {
		APIKey string
		// Model defaults to rerank-english-v3.0.
		Model string
		// Endpoint overrides the API URL, mainly for tests.
		Endpoint string
		// HTTPClient overrides the transport. The context deadline set by
		// the caller bounds each request either way.
		HTTPClient *http.Client
	}

	// Client calls the Cohere rerank endpoint.
	Client struct {
		apiKey   string
		model    string
		endpoint string
		http     *http.Client
	}
)

// New builds a Cohere rerank client.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	modelID := opts.Model
	if modelID == "" {
		modelID = defaultModel
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{apiKey: opts.APIKey, model: modelID, endpoint: endpoint, http: httpClient}, nil
}

// Rerank scores documents against the query and returns the topN, best
// first.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]retrieval.RerankHit, error) {
	body, err := json.Marshal(map[string]any{
		"model":     c.model,
		"query":     query,
		"documents": documents,
		"top_n":     topN,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank status %d: %s", resp.StatusCode, detail)
	}

	var parsed struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	hits := make([]retrieval.RerankHit, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		hits = append(hits, retrieval.RerankHit{Index: r.Index, RelevanceScore: r.RelevanceScore})
	}
	return hits, nil
}
