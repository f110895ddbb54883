package notify

import (
	"context"
	"fmt"
	"net/smtp"
)

// SMTPConfig holds the parameters needed to construct an SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPNotifier is the default email channel, built on net/smtp.
type SMTPNotifier struct {
	cfg  SMTPConfig
	auth smtp.Auth
}

// NewSMTPNotifier builds an SMTPNotifier. Auth is PLAIN against cfg.Host.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, auth: smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)}
}

// Send delivers req as a plain-text email. ctx is accepted for interface
// symmetry with Notifier but net/smtp.SendMail has no context-aware
// variant; callers needing a hard deadline should wrap Send in their own
// goroutine+select.
func (n *SMTPNotifier) Send(ctx context.Context, req Request) (Response, error) {
	addr := fmt.Sprintf("%s:%s", n.cfg.Host, n.cfg.Port)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", n.cfg.From, req.To, req.Subject, req.Body)

	if err := smtp.SendMail(addr, n.auth, n.cfg.From, []string{req.To}, []byte(msg)); err != nil {
		return Response{}, fmt.Errorf("notify: smtp send failed: %w", err)
	}
	return Response{OK: true, ProviderResponse: "sent"}, nil
}
