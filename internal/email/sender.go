// Package email delivers transactional mail over SMTP.
package email

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"attendance/internal/config"
)

var ErrNotConfigured = errors.New("email is not configured")

type Address struct {
	Name  string
	Email string
}

func (a Address) String() string {
	return (&mail.Address{Name: a.Name, Address: a.Email}).String()
}

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Message is the single transport contract used by every caller.
type Message struct {
	From        Address
	To          []Address
	Subject     string
	HTML        string
	Attachments []Attachment
}

// Receipt describes an accepted delivery.
type Receipt struct {
	MessageID string
	Accepted  []string
	SentAt    time.Time
}

type Mailer interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

type Sender struct {
	cfg  config.EmailConfig
	dial func(ctx context.Context, addr string) (net.Conn, error)
	now  func() time.Time
}

func NewSender(cfg config.EmailConfig) *Sender {
	return &Sender{cfg: cfg, now: time.Now}
}

// DefaultFrom is the configured sender identity.
func (s *Sender) DefaultFrom() Address {
	return Address{Name: s.cfg.FromName, Email: s.cfg.From}
}

func (s *Sender) Send(ctx context.Context, msg Message) (Receipt, error) {
	if !s.cfg.Enabled() {
		return Receipt{}, ErrNotConfigured
	}
	if len(msg.To) == 0 {
		return Receipt{}, fmt.Errorf("email has no recipients")
	}
	if msg.From.Email == "" {
		msg.From = s.DefaultFrom()
	}

	messageID := newMessageID(msg.From.Email)
	raw, err := buildMIME(msg, messageID, s.now())
	if err != nil {
		return Receipt{}, err
	}

	recipients := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		recipients = append(recipients, to.Email)
	}

	if err := s.deliver(ctx, msg.From.Email, recipients, raw); err != nil {
		return Receipt{}, err
	}
	return Receipt{MessageID: messageID, Accepted: recipients, SentAt: s.now()}, nil
}

func (s *Sender) deliver(ctx context.Context, from string, to []string, raw []byte) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))

	conn, err := s.dialContext(ctx, addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if !s.cfg.Secure {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if s.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (s *Sender) dialContext(ctx context.Context, addr string) (net.Conn, error) {
	if s.dial != nil {
		return s.dial(ctx, addr)
	}
	dialer := &net.Dialer{Timeout: 15 * time.Second}
	if s.cfg.Secure {
		td := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: s.cfg.Host}}
		return td.DialContext(ctx, "tcp", addr)
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

func buildMIME(msg Message, messageID string, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	to := make([]string, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, a.String())
	}

	fmt.Fprintf(&buf, "From: %s\r\n", msg.From.String())
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", now.UTC().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", messageID)
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(msg.Attachments) == 0 {
		buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
		buf.WriteString(msg.HTML)
		return buf.Bytes(), nil
	}

	mw := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mw.Boundary())

	body, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html; charset=\"UTF-8\""}})
	if err != nil {
		return nil, err
	}
	if _, err := body.Write([]byte(msg.HTML)); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		ct := att.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {ct},
			"Content-Transfer-Encoding": {"base64"},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename})},
		})
		if err != nil {
			return nil, err
		}
		enc := base64.NewEncoder(base64.StdEncoding, part)
		if _, err := enc.Write(att.Data); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newMessageID(from string) string {
	domain := "localhost"
	if at := strings.LastIndex(from, "@"); at >= 0 && at < len(from)-1 {
		domain = from[at+1:]
	}
	var b [12]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("<%s@%s>", hex.EncodeToString(b[:]), domain)
}
