package notifications

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"time"

	"go.uber.org/zap"
)

const defaultSMTPTimeout = 30 * time.Second

// ErrStartTLSUnavailable is returned when RequireTLS is set and the relay
// does not advertise STARTTLS
var ErrStartTLSUnavailable = errors.New("smtp relay does not support STARTTLS")

// SMTPSender submits mail to a relay, upgrading the connection with STARTTLS
// before authenticating
type SMTPSender struct {
	config    SMTPConfig
	tlsConfig *tls.Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewSMTPSender creates an SMTP sender
func NewSMTPSender(config SMTPConfig, logger *zap.Logger) (*SMTPSender, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if config.Port == 0 {
		config.Port = 587
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultSMTPTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPSender{
		config:    config,
		tlsConfig: &tls.Config{ServerName: config.Host, MinVersion: tls.VersionTLS12},
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Send delivers email in a single SMTP session
func (s *SMTPSender) Send(ctx context.Context, email *Email) error {
	msg, err := buildMessage(email, s.now())
	if err != nil {
		return err
	}

	from, err := mail.ParseAddress(email.From)
	if err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}

	dialer := &net.Dialer{Timeout: s.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to connect to smtp relay: %w", err)
	}

	deadline := time.Now().Add(s.config.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to start smtp session: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(s.tlsConfig); err != nil {
			return fmt.Errorf("failed to negotiate STARTTLS: %w", err)
		}
	} else if s.config.RequireTLS {
		return ErrStartTLSUnavailable
	}

	if s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp authentication failed: %w", err)
		}
	}

	if err := client.Mail(from.Address); err != nil {
		return fmt.Errorf("smtp MAIL FROM rejected: %w", err)
	}
	for _, to := range email.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("smtp RCPT TO %s rejected: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA rejected: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp message rejected: %w", err)
	}

	if err := client.Quit(); err != nil {
		s.logger.Warn("SMTP QUIT failed", zap.Error(err))
	}
	return nil
}
