package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bandwatch/internal/config"
	"bandwatch/internal/model"
)

type webhookPayload struct {
	Message   string           `json:"message"`
	Subject   string           `json:"subject"`
	Timestamp string           `json:"timestamp"`
	Alert     model.AlertEvent `json:"alert"`
}

type WebhookChannel struct {
	cfg    config.WebhookConfig
	client *http.Client
	now    func() time.Time
}

func NewWebhookChannel(cfg config.WebhookConfig) *WebhookChannel {
	cfg.URLs = cfg.URLs.Clean()
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	cfg.Headers = headers
	return &WebhookChannel{cfg: cfg, client: newHTTPClient(cfg.Timeout), now: time.Now}
}

func (c *WebhookChannel) Kind() model.ChannelKind { return model.ChannelWebhook }
func (c *WebhookChannel) Style() Style            { return StylePlain }

func (c *WebhookChannel) Validate() error {
	if !c.cfg.Enabled {
		return ErrNotEnabled
	}
	if len(c.cfg.URLs) == 0 {
		return missing("urls")
	}
	return nil
}

func (c *WebhookChannel) Send(ctx context.Context, msg Message) (bool, string) {
	if err := c.Validate(); err != nil {
		return false, err.Error()
	}
	payload := webhookPayload{
		Message:   msg.Body,
		Subject:   msg.Subject,
		Timestamp: c.now().UTC().Format(time.RFC3339),
		Alert:     msg.Event,
	}
	return fanOut(ctx, "webhooks", c.cfg.URLs, func(ctx context.Context, url string) error {
		status, _, err := postJSON(ctx, c.client, url, c.cfg.Headers, payload)
		if err != nil {
			return err
		}
		if status >= http.StatusBadRequest {
			return fmt.Errorf("http %d", status)
		}
		return nil
	})
}
