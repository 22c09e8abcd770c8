package alert

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/ftahirops/sqlsentinel/config"
)

// EmailChannel sends plain-text mail through an SMTP relay. net/smtp
// suffices here; the payload is a short plain-text digest with no
// attachments or HTML.
type EmailChannel struct {
	cfg  config.EmailChannelConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailChannel(cfg config.EmailChannelConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg, send: smtp.SendMail}
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Title)
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	return e.send(addr, auth, e.cfg.From, e.cfg.To, []byte(b.String()))
}
