package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/danamir/banksync/internal/metrics"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier posts messages to a Telegram chat via the Bot API.
type TelegramNotifier struct {
	Token   string
	ChatID  string
	BaseURL string // defaults to the public Bot API
	Client  *http.Client
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *TelegramNotifier) SendSummary(ctx context.Context, summary *metrics.Summary) error {
	return t.SendMessage(ctx, FormatSummary(summary))
}

func (t *TelegramNotifier) SendMessage(ctx context.Context, text string) error {
	base := t.BaseURL
	if base == "" {
		base = telegramAPIBase
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", base, t.Token)

	body, err := json.Marshal(telegramMessage{ChatID: t.ChatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("marshal telegram message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API returned %d: %s", resp.StatusCode, detail)
	}
	return nil
}
