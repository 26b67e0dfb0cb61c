package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"

	"gopkg.in/gomail.v2"

	"noorulfityan_backend/internals/configs"
)

// Sender delivers one email. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, recipient, subject, htmlBody, textBody string) error
}

// SMTPSender sends through gomail. Without SMTP_USER it only logs, like a
// development mailbox.
type SMTPSender struct {
	dialer   *gomail.Dialer
	from     string
	disabled bool
}

func NewSMTPSender(cfg configs.SMTPConfig, orgName string) *SMTPSender {
	if cfg.User == "" {
		log.Println("[WARN] SMTP_USER empty, emails will only be logged")
		return &SMTPSender{disabled: true}
	}

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.SSL = cfg.Secure
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}

	return &SMTPSender{
		dialer: d,
		from:   fmt.Sprintf("%q <%s>", orgName, cfg.User),
	}
}

func (s *SMTPSender) Send(ctx context.Context, recipient, subject, htmlBody, textBody string) error {
	if s.disabled {
		log.Printf("[INFO] email not configured, would send to=%s subject=%q", recipient, subject)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	if textBody != "" {
		m.SetBody("text/plain", textBody)
		m.AddAlternative("text/html", htmlBody)
	} else {
		m.SetBody("text/html", htmlBody)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email to %s: %w", recipient, err)
	}
	log.Printf("[INFO] email sent to=%s subject=%q", recipient, subject)
	return nil
}
