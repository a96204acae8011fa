// Package telegram is the send-only Bot API client behind the operator log
// sink and the daily-report notice.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "immowatch/pkg/logx"
)

// textLimit is the Bot API message size cap, in runes.
const textLimit = 4096

type Config struct {
	Token  string
	ChatID int64
	// URL overrides https://api.telegram.org (tests).
	URL     string
	Timeout time.Duration
}

// Client sends plain-text messages. It never polls for updates.
type Client struct {
	cfg Config
	bot *tele.Bot
	log logx.Logger
}

var ErrNotConfigured = errors.New("telegram not configured")

// New returns (nil, ErrNotConfigured) when no token is set.
func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrNotConfigured
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.URL,
		Offline: true,
		Client:  &http.Client{Timeout: cfg.Timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, bot: b, log: log}, nil
}

// SendText implements logx.Sender. Long text is split on line breaks.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	if chatID == 0 {
		return ErrNotConfigured
	}
	chat := tele.ChatID(chatID)
	for _, chunk := range split(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.bot.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
			return err
		}
	}
	return nil
}

// Notify sends text to the configured chat.
func (c *Client) Notify(ctx context.Context, text string) error {
	return c.SendText(ctx, c.cfg.ChatID, text)
}

// split cuts s into chunks of at most limit runes, preferring a newline
// in the last two thirds of each window.
func split(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	for start := 0; start < len(rs); {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i-start >= limit/3; i-- {
				if rs[i] == '\n' {
					end = i + 1
					break
				}
			}
		}
		out = append(out, string(rs[start:end]))
		start = end
	}
	return out
}
