// Package mailer sends the HTML digest over SMTP with implicit TLS.
package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	logx "immowatch/pkg/logx"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	FromName string
	Timeout  time.Duration
}

// SMTP implements the digest mailer. It is disabled until both user and
// password are set.
type SMTP struct {
	cfg Config
	log logx.Logger
	// dial is swapped in tests.
	dial func(ctx context.Context, m *mail.Msg) error
}

func New(cfg Config, log logx.Logger) *SMTP {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Port == 0 {
		cfg.Port = 465
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &SMTP{cfg: cfg, log: log}
	s.dial = s.dialAndSend
	return s
}

func (s *SMTP) Enabled() bool {
	return strings.TrimSpace(s.cfg.User) != "" && s.cfg.Password != "" && s.cfg.Host != ""
}

// Send delivers one HTML message to every recipient. It reports success
// and logs the reason for any failure.
func (s *SMTP) Send(ctx context.Context, to []string, subject, html string) bool {
	if !s.Enabled() {
		s.log.Info("mail not configured; skipping send", logx.Int("recipients", len(to)))
		return false
	}
	if len(to) == 0 {
		return false
	}
	m, err := s.build(to, subject, html)
	if err != nil {
		s.log.Warn("mail build failed", logx.Err(err))
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	if err := s.dial(ctx, m); err != nil {
		s.log.Warn("mail send failed", logx.String("host", s.cfg.Host), logx.Int("port", s.cfg.Port), logx.Err(err))
		return false
	}
	s.log.Info("mail sent", logx.Int("recipients", len(to)), logx.Duration("took", time.Since(start)))
	return true
}

func (s *SMTP) build(to []string, subject, html string) (*mail.Msg, error) {
	m := mail.NewMsg()
	name := s.cfg.FromName
	if name == "" {
		name = "Immowatch"
	}
	if err := m.FromFormat(name, s.cfg.User); err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if err := m.To(to...); err != nil {
		return nil, fmt.Errorf("to: %w", err)
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextHTML, html)
	return m, nil
}

func (s *SMTP) dialAndSend(ctx context.Context, m *mail.Msg) error {
	c, err := mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.User),
		mail.WithPassword(s.cfg.Password),
		mail.WithTimeout(s.cfg.Timeout),
	)
	if err != nil {
		return err
	}
	return c.DialAndSendWithContext(ctx, m)
}
