// Package unstructured implements the ingest.Parser port against an
// Unstructured partition API server. The server does the heavy lifting of
// format detection and layout analysis; this client uploads the file and
// maps the element list back to ingest.Element values.
package unstructured

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/relaydesk/relaydesk/ingest"
)

type (
	// Options configures the client.
	Options struct {
		// URL is the partition endpoint, e.g.
		// https://api.unstructuredapp.io/general/v0/general.
		URL string
		// APIKey is sent as unstructured-api-key when set.
		APIKey string
		// HTTPClient overrides the transport, mainly for tests.
		HTTPClient *http.Client
	}

	// Client calls the partition endpoint.
	Client struct {
		url    string
		apiKey string
		http   *http.Client
	}

	apiElement struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Metadata struct {
			PageNumber int    `json:"page_number"`
			TextAsHTML string `json:"text_as_html"`
		} `json:"metadata"`
	}
)

// New builds the parser client.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("partition url is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{url: opts.URL, apiKey: opts.APIKey, http: httpClient}, nil
}

// Parse uploads the file and returns its ordered elements.
func (c *Client) Parse(ctx context.Context, path string) ([]ingest.Element, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &buf)
	if err != nil {
		return nil, fmt.Errorf("build partition request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("unstructured-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("partition request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("partition status %d: %s", resp.StatusCode, detail)
	}

	var raw []apiElement
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode partition response: %w", err)
	}
	elements := make([]ingest.Element, 0, len(raw))
	for _, el := range raw {
		elements = append(elements, ingest.Element{
			Text:       el.Text,
			Type:       ingest.ElementType(el.Type),
			PageNumber: el.Metadata.PageNumber,
		})
	}
	return elements, nil
}
