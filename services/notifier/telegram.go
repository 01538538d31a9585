package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stock_monitor/models"
)

// Notifier is the notification-channel collaborator. One call delivers a
// whole batch of alerts as a single message to respect channel rate limits.
type Notifier interface {
	SendBatch(ctx context.Context, alerts []models.AlertLog) error
}

// TelegramNotifier sends alert batches via the Telegram Bot API.
type TelegramNotifier struct {
	botToken   string
	chatID     string
	httpClient *http.Client
}

// NewTelegramNotifier creates a new Telegram notifier.
func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SendBatch formats all alerts into one message and sends it.
func (t *TelegramNotifier) SendBatch(ctx context.Context, alerts []models.AlertLog) error {
	if len(alerts) == 0 {
		return nil
	}
	return t.send(ctx, FormatBatch(alerts))
}

// FormatBatch renders a batch of alerts as a single Markdown message.
func FormatBatch(alerts []models.AlertLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 *Stock Alerts* (%d)\n\n", len(alerts))

	for _, alert := range alerts {
		direction := "📈"
		if alert.Magnitude.IsNegative() {
			direction = "📉"
		}
		label := "Price Change"
		if alert.AlertType == models.AlertTypeBullishCrossover {
			label = "Bullish Crossover"
		}
		fmt.Fprintf(&b, "%s *%s* | %s\n%s\n\n", direction, alert.Symbol, label, alert.Message)
	}

	return strings.TrimRight(b.String(), "\n")
}

func (t *TelegramNotifier) send(ctx context.Context, text string) error {
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
