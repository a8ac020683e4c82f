package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SMTPConfig holds mail delivery settings. Port 465 uses implicit TLS; other ports use
// STARTTLS when the server offers it.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string // defaults to User
	To       []string
}

// EmailNotifier sends plain-text mail.
type EmailNotifier struct {
	cfg SMTPConfig
	log *zap.Logger

	send func(ctx context.Context, cfg SMTPConfig, msg []byte) error
}

// smtpTimeout bounds one delivery when ctx carries no earlier deadline.
const smtpTimeout = 30 * time.Second

// NewEmailNotifier creates an EmailNotifier. From defaults to the SMTP user.
func NewEmailNotifier(cfg SMTPConfig, log *zap.Logger) *EmailNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &EmailNotifier{cfg: cfg, log: log.Named("email"), send: deliver}
}

func (e *EmailNotifier) Notify(ctx context.Context, subject, body string) bool {
	if e.cfg.Host == "" || len(e.cfg.To) == 0 {
		e.log.Error("smtp settings incomplete, mail dropped", zap.String("subject", subject))
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	msg := buildMessage(e.cfg.From, e.cfg.To, subject, body, time.Now())
	if err := e.send(ctx, e.cfg, msg); err != nil {
		e.log.Error("mail delivery failed", zap.String("subject", subject), zap.Error(err))
		return false
	}
	e.log.Debug("mail sent", zap.String("subject", subject))
	return true
}

func buildMessage(from string, to []string, subject, body string, now time.Time) []byte {
	if subject == "" {
		subject = "TriggerBot"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// deliver speaks SMTP over a connection whose deadline is the earlier of ctx's and
// smtpTimeout; cancelling ctx closes the connection.
func deliver(ctx context.Context, cfg SMTPConfig, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port))
	deadline := time.Now().Add(smtpTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	tlsConfig := &tls.Config{ServerName: cfg.Host}

	dialer := &net.Dialer{Deadline: deadline}
	var conn net.Conn
	var err error
	if cfg.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()
	if cfg.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if cfg.User != "" {
		if err := c.Auth(smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(cfg.From); err != nil {
		return err
	}
	for _, rcpt := range cfg.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
