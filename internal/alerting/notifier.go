package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification captures one executed or rejected liquidation.
type Notification struct {
	EngineAddress  string
	VaultOwner     string
	Amount         decimal.Decimal
	ExpectedPayout decimal.Decimal
	TxHash         string
	FailureCause   string
}

// Failed reports whether the liquidation was rejected by the chain.
func (n Notification) Failed() bool {
	return n.FailureCause != ""
}

// Notifier delivers liquidation notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify posts the rendered message via the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected telegram status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("vault_owner", note.VaultOwner).
		Bool("failed", note.Failed()).
		Msg("notification sent (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	if note.Failed() {
		builder.WriteString("[Liquidation FAILED]\n")
	} else {
		builder.WriteString("[Liquidation executed]\n")
	}
	builder.WriteString(fmt.Sprintf("Engine: %s\n", note.EngineAddress))
	builder.WriteString(fmt.Sprintf("Vault: %s\n", note.VaultOwner))
	builder.WriteString(fmt.Sprintf("Amount: %s tokens\n", note.Amount.String()))
	builder.WriteString(fmt.Sprintf("Expected payout: %s collateral\n", note.ExpectedPayout.String()))
	if note.TxHash != "" {
		builder.WriteString(fmt.Sprintf("Tx: %s\n", note.TxHash))
	}
	if note.Failed() {
		builder.WriteString(fmt.Sprintf("Cause: %s\n", note.FailureCause))
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
