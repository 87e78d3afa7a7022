package notify

import (
	"context"
	"net/http"

	"bandwatch/internal/config"
	"bandwatch/internal/model"
)

type markdownContent struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Text    string `json:"text,omitempty"`
}

type robotMessage struct {
	MsgType  string          `json:"msgtype"`
	Markdown markdownContent `json:"markdown"`
}

// robot is the shared part of the enterprise IM webhook robots.
type robot struct {
	cfg    config.BotConfig
	client *http.Client
}

func newRobot(cfg config.BotConfig) robot {
	cfg.WebhookURLs = cfg.WebhookURLs.Clean()
	return robot{cfg: cfg, client: newHTTPClient(cfg.Timeout)}
}

func (r robot) Style() Style { return StyleMarkdown }

func (r robot) Validate() error {
	if !r.cfg.Enabled {
		return ErrNotEnabled
	}
	if len(r.cfg.WebhookURLs) == 0 {
		return missing("webhook_urls")
	}
	return nil
}

func (r robot) send(ctx context.Context, payload robotMessage) (bool, string) {
	if err := r.Validate(); err != nil {
		return false, err.Error()
	}
	return fanOut(ctx, "robots", r.cfg.WebhookURLs, func(ctx context.Context, url string) error {
		status, body, err := postJSON(ctx, r.client, url, nil, payload)
		if err != nil {
			return err
		}
		return checkRobotResponse(status, body)
	})
}

// WeComChannel posts to WeCom group robots.
type WeComChannel struct {
	robot
}

func NewWeComChannel(cfg config.BotConfig) *WeComChannel {
	return &WeComChannel{robot: newRobot(cfg)}
}

func (c *WeComChannel) Kind() model.ChannelKind { return model.ChannelWeCom }

func (c *WeComChannel) Send(ctx context.Context, msg Message) (bool, string) {
	return c.send(ctx, robotMessage{
		MsgType:  "markdown",
		Markdown: markdownContent{Content: "## " + msg.Subject + "\n\n" + msg.Body},
	})
}

// DingTalkChannel posts to DingTalk custom robots.
type DingTalkChannel struct {
	robot
}

func NewDingTalkChannel(cfg config.BotConfig) *DingTalkChannel {
	return &DingTalkChannel{robot: newRobot(cfg)}
}

func (c *DingTalkChannel) Kind() model.ChannelKind { return model.ChannelDingTalk }

func (c *DingTalkChannel) Send(ctx context.Context, msg Message) (bool, string) {
	return c.send(ctx, robotMessage{
		MsgType: "markdown",
		Markdown: markdownContent{
			Title: msg.Subject,
			Text:  "## " + msg.Subject + "\n\n" + msg.Body,
		},
	})
}
