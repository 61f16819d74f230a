// Package notify delivers formatted signal messages to chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"FinSignal/internal/domain/models"
	domsvc "FinSignal/internal/domain/service"
	pkghttp "FinSignal/pkg/http"
)

var _ domsvc.Notifier = (*Telegram)(nil)

// ErrNotConfigured is returned by a channel missing its credentials.
var ErrNotConfigured = errors.New("notifier not configured")

type TelegramConfig struct {
	APIURL   string
	BotToken string
	ChatID   string
}

// Telegram posts messages through the Bot API sendMessage method.
type Telegram struct {
	cfg    TelegramConfig
	client *pkghttp.Client
}

func NewTelegram(cfg TelegramConfig, client *pkghttp.Client) *Telegram {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.telegram.org"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if client == nil {
		client = pkghttp.NewClient()
	}
	return &Telegram{cfg: cfg, client: client}
}

func (t *Telegram) Name() string { return "telegram" }

type sendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
}

func (t *Telegram) Notify(ctx context.Context, sig *models.ConsolidatedSignal, text string) error {
	if t.cfg.BotToken == "" || t.cfg.ChatID == "" {
		return ErrNotConfigured
	}
	var resp sendMessageResponse
	err := t.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    fmt.Sprintf("%s/bot%s/sendMessage", t.cfg.APIURL, t.cfg.BotToken),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: sendMessageRequest{
			ChatID:                t.cfg.ChatID,
			Text:                  text,
			ParseMode:             "HTML",
			DisableWebPagePreview: true,
		},
	}, &resp)
	if err != nil {
		return fmt.Errorf("telegram send %s: %w", sig.Symbol, err)
	}
	if !resp.OK {
		return fmt.Errorf("telegram rejected %s: %d %s", sig.Symbol, resp.ErrorCode, resp.Description)
	}
	return nil
}
