package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"internwatch/internal/domain"
)

type MailConfig struct {
	Server   string
	Port     int // 465 implicit TLS (default), 587 STARTTLS
	StartTLS bool
	Username string
	Password string
	From     string // defaults to Username
	To       []string
	Timeout  time.Duration

	SourceURL string // linked in the footer
}

// Mailer sends the HTML+text alert over SMTP.
type Mailer struct {
	cfg  MailConfig
	send func(ctx context.Context, cfg MailConfig, from string, to []string, msg []byte) error
}

func NewMailer(cfg MailConfig) (*Mailer, error) {
	var missing []string
	if strings.TrimSpace(cfg.Server) == "" {
		missing = append(missing, "server")
	}
	if strings.TrimSpace(cfg.Username) == "" {
		missing = append(missing, "username")
	}
	if cfg.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: email missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}

	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if cfg.Port == 587 {
		cfg.StartTLS = true
	}
	if strings.TrimSpace(cfg.From) == "" {
		cfg.From = cfg.Username
	}
	if len(cfg.To) == 0 {
		cfg.To = []string{cfg.From}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Mailer{cfg: cfg, send: smtpSend}, nil
}

func (m *Mailer) Name() string { return "email" }

func (m *Mailer) Notify(ctx context.Context, listings []domain.Listing) error {
	msg, err := Render(listings, m.cfg.SourceURL)
	if err != nil {
		return err
	}
	raw, err := m.compose(msg, time.Now())
	if err != nil {
		return err
	}

	from, err := mail.ParseAddress(m.cfg.From)
	if err != nil {
		return fmt.Errorf("parse from %q: %w", m.cfg.From, err)
	}
	to, err := parseAddresses(m.cfg.To)
	if err != nil {
		return err
	}
	rcpts := make([]string, 0, len(to))
	for _, a := range to {
		rcpts = append(rcpts, a.Address)
	}
	return m.send(ctx, m.cfg, from.Address, rcpts, raw)
}

// compose builds a multipart/alternative RFC 5322 message.
func (m *Mailer) compose(msg Message, now time.Time) ([]byte, error) {
	from, err := mail.ParseAddress(m.cfg.From)
	if err != nil {
		return nil, fmt.Errorf("parse from %q: %w", m.cfg.From, err)
	}
	to, err := parseAddresses(m.cfg.To)
	if err != nil {
		return nil, err
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", to)
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mail writer: %w", err)
	}
	alt, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("create alternative: %w", err)
	}
	if err := writePart(alt, "text/plain", msg.Text); err != nil {
		return nil, err
	}
	if err := writePart(alt, "text/html", msg.HTML); err != nil {
		return nil, err
	}
	if err := alt.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePart(alt *mail.InlineWriter, contentType, body string) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	ph.Set("Content-Transfer-Encoding", "quoted-printable")

	w, err := alt.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s part: %w", contentType, err)
	}
	return w.Close()
}

func parseAddresses(in []string) ([]*mail.Address, error) {
	out := make([]*mail.Address, 0, len(in))
	for _, s := range in {
		a, err := mail.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("parse recipient %q: %w", s, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func smtpSend(ctx context.Context, cfg MailConfig, from string, to []string, msg []byte) error {
	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.Port))
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: cfg.Server}

	dctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var conn net.Conn
	var err error
	if cfg.StartTLS {
		conn, err = (&net.Dialer{}).DialContext(dctx, "tcp", addr)
	} else {
		conn, err = (&tls.Dialer{Config: tlsCfg}).DialContext(dctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(cfg.Timeout))

	// Best-effort close on context cancel.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, cfg.Server)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if cfg.StartTLS {
		if err := c.StartTLS(tlsCfg); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if err := c.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Server)); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end data: %w", err)
	}
	return c.Quit()
}
