package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the subset of the SES v2 client used for delivery
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends the raw MIME message through SES v2
type SESSender struct {
	client SESAPI
	now    func() time.Time
}

// NewSESSender creates a sender over client
func NewSESSender(client SESAPI) *SESSender {
	return &SESSender{client: client, now: time.Now}
}

// NewSESSenderFromConfig loads the default AWS configuration for region
func NewSESSenderFromConfig(ctx context.Context, config SESConfig) (*SESSender, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewSESSender(sesv2.NewFromConfig(cfg)), nil
}

// Send submits email as a raw message
func (s *SESSender) Send(ctx context.Context, email *Email) error {
	raw, err := buildMessage(email, s.now())
	if err != nil {
		return err
	}

	_, err = s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(email.From),
		Destination:      &types.Destination{ToAddresses: email.To},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return fmt.Errorf("ses: failed to send email: %w", err)
	}
	return nil
}
