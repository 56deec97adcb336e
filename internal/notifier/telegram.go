package notifier

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Telegram sends alerts to a Telegram chat. Failed sends are retried a few
// times and then dropped with a log line.
type Telegram struct {
	Token   string
	ChatID  string
	Retries int
	Delay   time.Duration

	client *http.Client
}

func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		Token:   token,
		ChatID:  chatID,
		Retries: 3,
		Delay:   5 * time.Second,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Telegram) send(message string) {
	if t.Token == "" || t.ChatID == "" {
		return
	}
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.Token)
	values := url.Values{
		"chat_id": {t.ChatID},
		"text":    {message},
	}

	var lastErr error
	for attempt := 0; attempt <= t.Retries; attempt++ {
		if attempt > 0 {
			time.Sleep(t.Delay)
		}
		resp, err := t.client.PostForm(apiURL, values)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return
		}
		lastErr = fmt.Errorf("telegram send failed: %s", resp.Status)
	}
	log.Printf("Telegram | Dropping notification after %d attempts: %v", t.Retries+1, lastErr)
}

func (t *Telegram) NotifyOpenPosition(symbol, side string, qty, entryPrice float64, leverage int) {
	lines := []string{
		"POSITION OPENED",
		fmt.Sprintf("Symbol: %s", symbol),
		fmt.Sprintf("Side: %s", strings.ToUpper(side)),
		fmt.Sprintf("Qty: %.6f", qty),
		fmt.Sprintf("Entry: %.4f", entryPrice),
	}
	if leverage > 0 {
		lines = append(lines, fmt.Sprintf("Leverage: %dx", leverage))
	}
	t.send(strings.Join(lines, "\n"))
}

func (t *Telegram) NotifyClosePosition(symbol, side string, qty, entryPrice, exitPrice, pnl, roePct float64, duration time.Duration, reason string) {
	sign := ""
	if pnl > 0 {
		sign = "+"
	}
	lines := []string{
		"POSITION CLOSED",
		fmt.Sprintf("Symbol: %s", symbol),
		fmt.Sprintf("Side: %s", strings.ToUpper(side)),
		fmt.Sprintf("Qty: %.6f", qty),
		fmt.Sprintf("Entry: %.4f", entryPrice),
		fmt.Sprintf("Exit: %.4f", exitPrice),
		fmt.Sprintf("PnL: %s%.4f", sign, pnl),
		fmt.Sprintf("ROE: %+.2f%%", roePct),
	}
	if duration > 0 {
		lines = append(lines, fmt.Sprintf("Duration: %s", FormatDuration(duration)))
	}
	if reason != "" {
		lines = append(lines, fmt.Sprintf("Reason: %s", reason))
	}
	t.send(strings.Join(lines, "\n"))
}

func (t *Telegram) NotifyOrderError(symbol, side string, qty float64, errMsg string) {
	t.send(fmt.Sprintf("ORDER ERROR\nSymbol: %s\nSide: %s\nQty: %.6f\nError: %s",
		symbol, strings.ToUpper(side), qty, errMsg))
}

func (t *Telegram) NotifyHeartbeat(equity float64, openPositions int) {
	t.send(fmt.Sprintf("HEARTBEAT equity: %.2f, open positions: %d", equity, openPositions))
}

func (t *Telegram) NotifyError(context, errMsg string) {
	t.send(fmt.Sprintf("ERROR %s\n%s", context, errMsg))
}

func (t *Telegram) NotifyBotStopped(openPositions int) {
	t.send(fmt.Sprintf("BOT STOPPED\nOpen positions at shutdown: %d", openPositions))
}
