// Package mailer delivers the post-purchase welcome message over SMTP.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// ErrNotConfigured is returned when no SMTP credentials are set.
var ErrNotConfigured = errors.New("smtp not configured")

// sendMail is a seam for tests. smtp.SendMail upgrades with STARTTLS when
// the server offers it.
var sendMail = smtp.SendMail

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type SMTPMailer struct {
	cfg Config
	now func() time.Time
}

func NewSMTPMailer(cfg Config) *SMTPMailer {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &SMTPMailer{cfg: cfg, now: time.Now}
}

func (m *SMTPMailer) Enabled() bool {
	return m.cfg.Host != "" && m.cfg.User != "" && m.cfg.Password != ""
}

var welcomeBody = template.Must(template.New("welcome").Parse(`Hi {{.Name}},

Thank you for purchasing ProfitPal!

Your license key: {{.License}}

To activate, open ProfitPal and sign in with your email address,
your full name and the license key above.
{{if .Link}}
Share your referral link and get a free month for every friend who joins:
{{.Link}}
{{end}}
The ProfitPal team
`))

// SendWelcome sends the license to a new customer. It honours ctx only
// before the SMTP exchange starts.
func (m *SMTPMailer) SendWelcome(ctx context.Context, to, name, license, referralLink string) error {
	if !m.Enabled() {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := m.compose(to, name, license, referralLink)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	if err := sendMail(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (m *SMTPMailer) compose(to, name, license, link string) ([]byte, error) {
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(name, "\r\n") {
		return nil, errors.New("invalid header value")
	}

	var body bytes.Buffer
	data := struct{ Name, License, Link string }{name, license, link}
	if err := welcomeBody.Execute(&body, data); err != nil {
		return nil, fmt.Errorf("render welcome: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", "Your ProfitPal license key"))
	fmt.Fprintf(&buf, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	buf.WriteString(strings.ReplaceAll(body.String(), "\n", "\r\n"))
	return buf.Bytes(), nil
}
