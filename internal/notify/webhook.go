package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/danamir/banksync/internal/metrics"
)

// WebhookNotifier posts run summaries as JSON to an arbitrary HTTP endpoint.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

type webhookSummary struct {
	Timestamp         time.Time              `json:"timestamp"`
	TotalSources      int                    `json:"totalSources"`
	Successes         int                    `json:"successes"`
	Failures          int                    `json:"failures"`
	TotalTransactions int                    `json:"totalTransactions"`
	TotalDuplicates   int                    `json:"totalDuplicates"`
	Sources           []webhookSourceSummary `json:"sources"`
}

type webhookSourceSummary struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Txns   int    `json:"txns"`
	Error  string `json:"error,omitempty"`
}

func (w *WebhookNotifier) SendSummary(ctx context.Context, summary *metrics.Summary) error {
	payload := webhookSummary{
		Timestamp:         time.Now().UTC(),
		TotalSources:      summary.TotalSources,
		Successes:         summary.Successes,
		Failures:          summary.Failures,
		TotalTransactions: summary.TotalTransactions,
		TotalDuplicates:   summary.TotalDuplicates,
	}
	for _, m := range summary.Sources {
		payload.Sources = append(payload.Sources, webhookSourceSummary{
			Name:   m.Name,
			Status: string(m.Status),
			Txns:   m.Imported,
			Error:  m.Error,
		})
	}
	return w.post(ctx, payload)
}

func (w *WebhookNotifier) SendMessage(ctx context.Context, text string) error {
	return w.post(ctx, map[string]string{"text": text})
}

func (w *WebhookNotifier) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
