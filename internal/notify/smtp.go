package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/go-mail"
)

// SMTPConfig holds the mail server settings.
type SMTPConfig struct {
	Host string
	Port int
	// Username is the display name of the sender.
	Username string
	// Address is the sender address and the login.
	Address  string
	Password string
	// Admins receive messages without recipients and blind copies of the
	// others.
	Admins []string
	// DryRun logs messages instead of sending them.
	DryRun  bool
	Timeout time.Duration
}

// SMTP delivers messages over SMTP with implicit TLS.
type SMTP struct {
	cfg    SMTPConfig
	logger *slog.Logger
	send   func(ctx context.Context, msg *mail.Msg) error
}

// NewSMTP returns a notifier for cfg. No connection is made until the
// first message.
func NewSMTP(cfg SMTPConfig, logger *slog.Logger) (*SMTP, error) {
	if cfg.Address == "" {
		return nil, errors.New("mail sender address is required")
	}
	if len(cfg.Admins) == 0 {
		return nil, errors.New("at least one admin receiver is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &SMTP{cfg: cfg, logger: logger}
	s.send = s.dialAndSend
	return s, nil
}

func (s *SMTP) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(s.cfg.Address),
		mail.WithPassword(s.cfg.Password),
		mail.WithTimeout(s.cfg.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create mail client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// sender formats the From header as "username <address>".
func (s *SMTP) sender() string {
	if s.cfg.Username == "" {
		return s.cfg.Address
	}
	return fmt.Sprintf("%s <%s>", s.cfg.Username, s.cfg.Address)
}

func (s *SMTP) build(m Message) (*mail.Msg, []string, []string, error) {
	to := m.To
	if len(to) == 0 {
		to = s.cfg.Admins
	}
	var bcc []string
	if m.CCAdmin {
		bcc = s.cfg.Admins
	}

	msg := mail.NewMsg()
	if err := msg.From(s.sender()); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid sender: %w", err)
	}
	if err := msg.To(to...); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid recipient: %w", err)
	}
	if len(bcc) > 0 {
		if err := msg.Bcc(bcc...); err != nil {
			return nil, nil, nil, fmt.Errorf("invalid admin receiver: %w", err)
		}
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(mail.TypeTextPlain, m.Body)
	return msg, to, bcc, nil
}

// Notify sends m, or only logs it in dry-run mode.
func (s *SMTP) Notify(ctx context.Context, m Message) error {
	msg, to, bcc, err := s.build(m)
	if err != nil {
		return err
	}

	if !s.cfg.DryRun {
		if err := s.send(ctx, msg); err != nil {
			s.logger.Error("cannot send email", "subject", m.Subject, "error", err)
			return fmt.Errorf("failed to send %q: %w", m.Subject, err)
		}
	}

	s.logger.Info("email sent",
		"from", s.sender(),
		"to", strings.Join(to, ","),
		"bcc", strings.Join(bcc, ","),
		"subject", m.Subject,
		"dry_run", s.cfg.DryRun)
	s.logger.Debug("email body", "text", m.Body)
	return nil
}
