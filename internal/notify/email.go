package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"bandwatch/internal/config"
	"bandwatch/internal/model"
)

const implicitTLSPort = 465

type tlsMode string

const (
	tlsImplicit tlsMode = "ssl"
	tlsStartTLS tlsMode = "starttls"
	tlsNone     tlsMode = "none"
)

// emailTLSMode picks implicit TLS for port 465, otherwise STARTTLS when enabled.
func emailTLSMode(port int, useTLS bool) tlsMode {
	switch {
	case port == implicitTLSPort:
		return tlsImplicit
	case useTLS:
		return tlsStartTLS
	}
	return tlsNone
}

type EmailChannel struct {
	cfg config.EmailConfig
}

func NewEmailChannel(cfg config.EmailConfig) *EmailChannel {
	cfg.To = cfg.To.Clean()
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultSMTPTimeout
	}
	return &EmailChannel{cfg: cfg}
}

func (c *EmailChannel) Kind() model.ChannelKind { return model.ChannelEmail }
func (c *EmailChannel) Style() Style            { return StyleHTML }

func (c *EmailChannel) Validate() error {
	if !c.cfg.Enabled {
		return ErrNotEnabled
	}
	if strings.TrimSpace(c.cfg.SMTPHost) == "" {
		return missing("smtp_host")
	}
	if c.cfg.SMTPPort <= 0 {
		return missing("smtp_port")
	}
	if strings.TrimSpace(c.cfg.From) == "" {
		return missing("from")
	}
	if len(c.cfg.To) == 0 {
		return missing("to")
	}
	return nil
}

// Send delivers one message to all recipients in a single SMTP session.
// Any session error fails the whole send.
func (c *EmailChannel) Send(ctx context.Context, msg Message) (bool, string) {
	if err := c.Validate(); err != nil {
		return false, err.Error()
	}
	m, err := c.message(msg)
	if err != nil {
		return false, err.Error()
	}

	client, err := mail.NewClient(c.cfg.SMTPHost, c.clientOptions()...)
	if err != nil {
		return false, fmt.Sprintf("smtp client: %v", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return false, fmt.Sprintf("smtp %s:%d: %v", c.cfg.SMTPHost, c.cfg.SMTPPort, err)
	}
	return true, fmt.Sprintf("sent to %d recipients", len(c.cfg.To))
}

// message builds an HTML body with a plain text alternative.
func (c *EmailChannel) message(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(c.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(c.cfg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.Body)
	m.AddAlternativeString(mail.TypeTextPlain, Format(msg.Event, StylePlain))
	return m, nil
}

func (c *EmailChannel) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(c.cfg.SMTPPort),
		mail.WithTimeout(c.cfg.Timeout),
	}
	switch emailTLSMode(c.cfg.SMTPPort, c.cfg.UseTLS) {
	case tlsImplicit:
		opts = append(opts, mail.WithSSL())
	case tlsStartTLS:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if c.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(c.cfg.Username),
			mail.WithPassword(c.cfg.Password),
		)
	}
	return opts
}
