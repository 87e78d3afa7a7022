package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"bandwatch/internal/config"
	"bandwatch/internal/model"
)

type telegramRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

type TelegramChannel struct {
	cfg    config.TelegramConfig
	client *http.Client
}

func NewTelegramChannel(cfg config.TelegramConfig) *TelegramChannel {
	cfg.ChatIDs = cfg.ChatIDs.Clean()
	if cfg.APIBase == "" {
		cfg.APIBase = config.DefaultTelegramAPI
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &TelegramChannel{cfg: cfg, client: newHTTPClient(cfg.Timeout)}
}

func (c *TelegramChannel) Kind() model.ChannelKind { return model.ChannelTelegram }
func (c *TelegramChannel) Style() Style            { return StylePlain }

func (c *TelegramChannel) Validate() error {
	if !c.cfg.Enabled {
		return ErrNotEnabled
	}
	if strings.TrimSpace(c.cfg.BotToken) == "" {
		return missing("bot_token")
	}
	if len(c.cfg.ChatIDs) == 0 {
		return missing("chat_ids")
	}
	return nil
}

// Send posts the message to every chat. The detail names chats, never the
// token-bearing API URL.
func (c *TelegramChannel) Send(ctx context.Context, msg Message) (bool, string) {
	if err := c.Validate(); err != nil {
		return false, err.Error()
	}
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.cfg.APIBase, c.cfg.BotToken)
	text := fmt.Sprintf("*%s*\n\n%s", escapeMarkdown(msg.Subject), escapeMarkdown(msg.Body))
	return fanOut(ctx, "chats", c.cfg.ChatIDs, func(ctx context.Context, chatID string) error {
		status, body, err := postJSON(ctx, c.client, endpoint, nil, telegramRequest{
			ChatID:    chatID,
			Text:      text,
			ParseMode: "Markdown",
		})
		if err != nil {
			// the transport error embeds the URL, and with it the token
			var urlErr *url.Error
			if errors.As(err, &urlErr) {
				return urlErr.Err
			}
			return errors.New("request failed")
		}
		var resp telegramResponse
		if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
			return fmt.Errorf("http %d: decode response: %w", status, jsonErr)
		}
		if !resp.OK {
			return fmt.Errorf("http %d: %s", status, resp.Description)
		}
		return nil
	})
}

// telegramEscaper escapes the entity markers of Telegram's legacy Markdown mode.
var telegramEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

func escapeMarkdown(s string) string {
	return telegramEscaper.Replace(s)
}
