package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danamir/banksync/internal/metrics"
)

func sampleSummary() *metrics.Summary {
	return &metrics.Summary{
		TotalSources:      2,
		Successes:         1,
		Failures:          1,
		TotalTransactions: 7,
		TotalDuplicates:   3,
		TotalDuration:     3500 * time.Millisecond,
		SuccessRate:       50,
		Sources: []metrics.SourceMetrics{
			{Name: "leumi", Status: metrics.StatusSuccess, Imported: 7, Duration: 2 * time.Second, ReconciliationStatus: "created"},
			{Name: "max", Status: metrics.StatusFailure, Error: "failed to fetch max: login blocked"},
		},
	}
}

func TestFormatSummary(t *testing.T) {
	msg := FormatSummary(sampleSummary())

	assert.True(t, strings.HasPrefix(msg, "⚠️ <b>Import Summary</b>"))
	assert.Contains(t, msg, "🏦 Sources: 1/2 (50%)")
	assert.Contains(t, msg, "📥 Transactions: 7 imported")
	assert.Contains(t, msg, "🔄 Duplicates: 3 skipped")
	assert.Contains(t, msg, "⏱ Duration: 3.5s")
	assert.Contains(t, msg, "✅ leumi: 7 txns 2.0s")
	assert.Contains(t, msg, "🔄 Reconciliation: created")
	assert.Contains(t, msg, "❌ max: 0 txns")
	assert.Contains(t, msg, "❌ failed to fetch max: login blocked")
}

func TestFormatSummaryAllSuccessful(t *testing.T) {
	msg := FormatSummary(&metrics.Summary{
		TotalSources: 1,
		Successes:    1,
		SuccessRate:  100,
		Sources:      []metrics.SourceMetrics{{Name: "hapoalim", Status: metrics.StatusSuccess}},
	})

	assert.True(t, strings.HasPrefix(msg, "✅ <b>Import Summary</b>"))
	assert.NotContains(t, msg, "⚠️")
}

func TestFormatSummaryEscapesErrorHTML(t *testing.T) {
	msg := FormatSummary(&metrics.Summary{
		TotalSources: 1,
		Failures:     1,
		Sources:      []metrics.SourceMetrics{{Name: "visacal", Status: metrics.StatusFailure, Error: "<timeout> & retry"}},
	})

	assert.Contains(t, msg, "&lt;timeout&gt; &amp; retry")
}

func TestTelegramNotifierSendsMessage(t *testing.T) {
	var gotPath string
	var gotBody telegramMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &TelegramNotifier{Token: "123:abc", ChatID: "42", BaseURL: srv.URL}
	err := n.SendMessage(context.Background(), "hello")

	require.NoError(t, err)
	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, telegramMessage{ChatID: "42", Text: "hello", ParseMode: "HTML"}, gotBody)
}

func TestTelegramNotifierRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"bad token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := &TelegramNotifier{Token: "bad", ChatID: "42", BaseURL: srv.URL}
	err := n.SendMessage(context.Background(), "hello")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "bad token")
}

func TestWebhookNotifierSendsSummary(t *testing.T) {
	var got webhookSummary
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL}
	err := n.SendSummary(context.Background(), sampleSummary())

	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalSources)
	assert.Equal(t, 7, got.TotalTransactions)
	require.Len(t, got.Sources, 2)
	assert.Equal(t, webhookSourceSummary{Name: "leumi", Status: "success", Txns: 7}, got.Sources[0])
	assert.Equal(t, "failed to fetch max: login blocked", got.Sources[1].Error)
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL}
	err := n.SendMessage(context.Background(), "alert")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type recordingNotifier struct {
	messages  []string
	summaries int
	err       error
}

func (r *recordingNotifier) SendSummary(context.Context, *metrics.Summary) error {
	r.summaries++
	return r.err
}

func (r *recordingNotifier) SendMessage(_ context.Context, text string) error {
	r.messages = append(r.messages, text)
	return r.err
}

func TestServiceFansOutAndToleratesFailures(t *testing.T) {
	ok := &recordingNotifier{}
	broken := &recordingNotifier{err: errors.New("unreachable")}
	svc := NewService(broken, ok)

	svc.SendSummary(context.Background(), sampleSummary())
	svc.SendMessage(context.Background(), "spending alert")

	assert.Equal(t, 1, ok.summaries)
	assert.Equal(t, []string{"spending alert"}, ok.messages)
	assert.Equal(t, 1, broken.summaries)
}

func TestTelegramNotifierTruncatesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, strings.Repeat("x", 2048))
	}))
	defer srv.Close()

	n := &TelegramNotifier{Token: "t", ChatID: "c", BaseURL: srv.URL}
	err := n.SendMessage(context.Background(), "hi")

	require.Error(t, err)
	assert.Less(t, len(err.Error()), 1024)
}
