package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// lookupTimeout bounds each structured-data lookup call.
const lookupTimeout = 5 * time.Second

// Lookup fetches structured data (order status, account details) from the
// tenant's data webhook. Results are formatted for inclusion in a model
// prompt; failures degrade to tagged strings rather than errors so the model
// can explain the situation to the user.
type Lookup struct {
	http *http.Client
}

// NewLookup builds the lookup tool.
func NewLookup(httpClient *http.Client) *Lookup {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Lookup{http: httpClient}
}

// Fetch posts {lookup_type, identifier} to the tenant's data webhook and
// returns the response tagged for prompt inclusion.
func (l *Lookup) Fetch(ctx context.Context, webhookURL, lookupType, identifier string) string {
	if webhookURL == "" {
		return "LOOKUP_UNAVAILABLE: no data webhook configured for this tenant"
	}
	body, err := json.Marshal(map[string]string{
		"lookup_type": lookupType,
		"identifier":  identifier,
	})
	if err != nil {
		return fmt.Sprintf("LOOKUP_FAILED: %v", err)
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Sprintf("LOOKUP_FAILED: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := l.http.Do(req)
	if err != nil {
		return fmt.Sprintf("LOOKUP_FAILED: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Sprintf("LOOKUP_FAILED: webhook returned status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Sprintf("LOOKUP_FAILED: %v", err)
	}
	return "LOOKUP_RESULT: " + string(raw)
}
