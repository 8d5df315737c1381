package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Bridge fetches from a scraper sidecar over HTTP. The sidecar owns the
// browser session against the institution's website; this process only sees
// the structured result. Timeout enforcement is the caller's concern, so the
// embedded client carries no deadline of its own.
type Bridge struct {
	SourceName string
	BaseURL    string
	Client     *http.Client
}

// NewBridge returns a Bridge for one named source.
func NewBridge(sourceName, baseURL string) *Bridge {
	return &Bridge{
		SourceName: sourceName,
		BaseURL:    baseURL,
		Client:     &http.Client{},
	}
}

type bridgeRequest struct {
	Source      string      `json:"source"`
	Credentials Credentials `json:"credentials"`
	StartDate   string      `json:"startDate,omitempty"`
}

// Fetch implements Source. Transport errors and non-2xx responses are fetch
// errors (retryable by the caller); a well-formed response with success=false
// is returned as-is for the run loop to classify.
func (b *Bridge) Fetch(ctx context.Context, creds Credentials, startDate string) (*FetchResult, error) {
	body, err := json.Marshal(bridgeRequest{
		Source:      b.SourceName,
		Credentials: creds,
		StartDate:   startDate,
	})
	if err != nil {
		return nil, fmt.Errorf("encode scrape request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build scrape request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", b.SourceName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("scrape %s: unexpected status %d", b.SourceName, resp.StatusCode)
	}

	var result FetchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode scrape response for %s: %w", b.SourceName, err)
	}
	return &result, nil
}

var _ Source = (*Bridge)(nil)
