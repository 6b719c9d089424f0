// Package notifications emails issued certificates to their recipients.
package notifications

import (
	"context"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"certificate-portal/certificate-portal-backend/internal/certificates"
)

var attachmentTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// NewSender builds the transport named by config.Transport
func NewSender(ctx context.Context, config Config, logger *zap.Logger) (Sender, error) {
	switch strings.ToLower(config.Transport) {
	case "", TransportSMTP:
		return NewSMTPSender(config.SMTP, logger)
	case TransportSES:
		return NewSESSenderFromConfig(ctx, config.SES)
	case TransportResend:
		return NewResendSender(config.Resend)
	default:
		return nil, fmt.Errorf("unknown mail transport %q", config.Transport)
	}
}

// Mailer composes certificate emails and hands them to a Sender
type Mailer struct {
	sender Sender
	config Config
	body   *BodyRenderer
	logger *zap.Logger
}

// NewMailer creates a mailer
func NewMailer(sender Sender, config Config, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{
		sender: sender,
		config: config,
		body:   NewBodyRenderer(),
		logger: logger,
	}
}

// Subject returns the subject line for a certificate email
func Subject(rec *certificates.Record) string {
	return "Completion Certificate - " + rec.Name
}

// Notify emails the artifact at artifactPath to the record's address
func (m *Mailer) Notify(ctx context.Context, rec *certificates.Record, artifactPath string) error {
	email, err := m.Compose(rec, artifactPath)
	if err != nil {
		return err
	}

	m.logger.Info("Sending email",
		zap.String("certificate_id", rec.ID),
		zap.String("to", rec.Email),
		zap.String("attachment", email.Attachments[0].Filename),
	)

	if err := m.sender.Send(ctx, email); err != nil {
		m.logger.Error("Failed to send email",
			zap.String("certificate_id", rec.ID),
			zap.Error(err),
		)
		return err
	}

	m.logger.Info("Email sent", zap.String("certificate_id", rec.ID))
	return nil
}

// Compose builds the email for rec with the artifact attached
func (m *Mailer) Compose(rec *certificates.Record, artifactPath string) (*Email, error) {
	content, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(artifactPath))
	contentType, ok := attachmentTypes[ext]
	if !ok {
		contentType = "application/octet-stream"
	}

	subject := Subject(rec)
	html, text, err := m.body.Render(subject, BodyData{
		Name:          rec.Name,
		Organization:  m.config.Organization,
		Domain:        rec.Domain,
		Months:        rec.Months,
		StartDate:     rec.FormattedStart(),
		EndDate:       rec.FormattedEnd(),
		Grade:         rec.Grade,
		CertificateID: rec.ID,
	})
	if err != nil {
		return nil, err
	}

	from := (&mail.Address{Name: m.config.FromName, Address: m.config.FromAddress}).String()

	return &Email{
		From:    from,
		To:      []string{rec.Email},
		Subject: subject,
		HTML:    html,
		Text:    text,
		Attachments: []Attachment{{
			Filename:    rec.ArtifactName(ext),
			ContentType: contentType,
			Content:     content,
		}},
	}, nil
}
