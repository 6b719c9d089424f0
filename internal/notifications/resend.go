package notifications

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v3"
)

// ResendSender delivers through the Resend API
type ResendSender struct {
	client *resend.Client
}

// NewResendSender creates a Resend sender
func NewResendSender(config ResendConfig) (*ResendSender, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	return &ResendSender{client: resend.NewClient(config.APIKey)}, nil
}

// Send implements Sender
func (s *ResendSender) Send(ctx context.Context, email *Email) error {
	req := &resend.SendEmailRequest{
		From:    email.From,
		To:      email.To,
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
	}
	for _, a := range email.Attachments {
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Filename:    a.Filename,
			Content:     a.Content,
			ContentType: a.ContentType,
		})
	}

	if _, err := s.client.Emails.SendWithContext(ctx, req); err != nil {
		return fmt.Errorf("resend: failed to send email: %w", err)
	}
	return nil
}
