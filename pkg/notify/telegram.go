package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTelegramAPI is the Telegram Bot API base URL.
	DefaultTelegramAPI = "https://api.telegram.org"

	// TelegramMaxMessage is the sendMessage text limit.
	TelegramMaxMessage = 4096
)

// ErrMissingCredentials is returned by Telegram.Deliver when the token or
// chat id is empty.
var ErrMissingCredentials = errors.New("notify: telegram token or chat id is empty")

// Telegram delivers messages through the Bot API sendMessage method using
// Markdown parse mode.
type Telegram struct {
	Token  string
	ChatID string

	// APIURL overrides DefaultTelegramAPI.
	APIURL string
	// Client defaults to an http.Client with a 10s timeout.
	Client *http.Client
}

var defaultTelegramClient = &http.Client{Timeout: 10 * time.Second}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// MaxMessageBytes returns TelegramMaxMessage. The API counts characters,
// so a byte cap never lets an oversized message through.
func (t *Telegram) MaxMessageBytes() int {
	return TelegramMaxMessage
}

// Deliver sends text to the configured chat.
func (t *Telegram) Deliver(ctx context.Context, text string) error {
	var missing []string
	if t.Token == "" {
		missing = append(missing, "token")
	}
	if t.ChatID == "" {
		missing = append(missing, "chat id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w (missing %s)", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	if text == "" {
		return nil
	}

	base := t.APIURL
	if base == "" {
		base = DefaultTelegramAPI
	}
	endpoint := strings.TrimRight(base, "/") + "/bot" + t.Token + "/sendMessage"

	form := url.Values{}
	form.Set("chat_id", t.ChatID)
	form.Set("text", text)
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telegram: could not build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := t.Client
	if client == nil {
		client = defaultTelegramClient
	}
	resp, err := client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var tr telegramResponse
	if jerr := json.Unmarshal(body, &tr); jerr != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("telegram: unexpected status %d", resp.StatusCode)
		}
		return fmt.Errorf("telegram: could not decode response: %w", jerr)
	}
	if resp.StatusCode != http.StatusOK || !tr.OK {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode, tr.Description)
	}
	return nil
}
