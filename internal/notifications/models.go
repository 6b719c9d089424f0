package notifications

import (
	"context"
	"fmt"
	"time"
)

// Transport names accepted by NewSender
const (
	TransportSMTP   = "smtp"
	TransportSES    = "ses"
	TransportResend = "resend"
)

// Config configures the certificate mailer
type Config struct {
	Transport    string
	FromAddress  string
	FromName     string
	Organization string
	SMTP         SMTPConfig
	SES          SESConfig
	Resend       ResendConfig
}

// SMTPConfig configures submission over SMTP with STARTTLS
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// RequireTLS fails delivery when the relay does not offer STARTTLS
	RequireTLS bool
	Timeout    time.Duration
}

// Addr returns host:port
func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SESConfig configures the SES v2 transport
type SESConfig struct {
	Region string
}

// ResendConfig configures the Resend transport
type ResendConfig struct {
	APIKey string
}

// Email is a fully composed message
type Email struct {
	From        string
	To          []string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Attachment is a file attached to an email
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Sender delivers a composed email
type Sender interface {
	Send(ctx context.Context, email *Email) error
}
