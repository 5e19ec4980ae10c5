// Package email delivers signal notifications over SMTP.
package email

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"trade-signal-engine/config"
	"trade-signal-engine/internal/notification"
)

// Notifier sends notifications by email. Port 465 uses implicit TLS;
// 587 and 25 go through smtp.SendMail which negotiates STARTTLS itself.
type Notifier struct {
	cfg config.EmailConfig
}

func NewNotifier(cfg config.EmailConfig) *Notifier {
	return &Notifier{cfg: cfg}
}

// Name returns the notifier name
func (n *Notifier) Name() string {
	return "email"
}

// IsEnabled returns whether the notifier is enabled
func (n *Notifier) IsEnabled() bool {
	return n.cfg.Enabled && n.cfg.Host != "" && n.cfg.From != "" && n.cfg.To != ""
}

// Send delivers one notification
func (n *Notifier) Send(msg *notification.Notification) error {
	from := n.cfg.From
	if n.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", n.cfg.FromName, n.cfg.From)
	}

	message := []byte(
		"From: " + from + "\r\n" +
			"To: " + n.cfg.To + "\r\n" +
			"Subject: " + msg.Title + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n" +
			"\r\n" +
			msg.Message + "\r\n",
	)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	recipients := strings.Split(n.cfg.To, ",")
	for i := range recipients {
		recipients[i] = strings.TrimSpace(recipients[i])
	}

	var err error
	if n.cfg.Port == 465 {
		err = n.sendTLS(addr, auth, recipients, message)
	} else {
		err = smtp.SendMail(addr, auth, n.cfg.From, recipients, message)
	}
	if err != nil {
		return fmt.Errorf("SMTP error: %w", err)
	}
	return nil
}

// sendTLS sends over an implicit TLS connection (port 465)
func (n *Notifier) sendTLS(addr string, auth smtp.Auth, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: n.cfg.Host})
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err = client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, recipient := range to {
		if err = client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to add recipient: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return client.Quit()
}
