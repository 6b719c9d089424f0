package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"certificate-portal/certificate-portal-backend/internal/certificates"
)

// SNSAPI is the part of the SNS client used for alerts
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// AlertConfig configures failure alerts
type AlertConfig struct {
	TopicARN string
	Region   string
}

// SNSAlerter publishes a summary of failed workflows to an SNS topic
type SNSAlerter struct {
	client   SNSAPI
	topicARN string
}

type alertMessage struct {
	RequestID     string            `json:"request_id"`
	CertificateID string            `json:"certificate_id,omitempty"`
	Name          string            `json:"name,omitempty"`
	Email         string            `json:"email,omitempty"`
	Status        string            `json:"status,omitempty"`
	State         string            `json:"state"`
	Failures      map[string]string `json:"failures"`
}

// NewSNSAlerter creates an alerter for topicARN
func NewSNSAlerter(client SNSAPI, topicARN string) (*SNSAlerter, error) {
	if topicARN == "" {
		return nil, errors.New("sns topic arn is required")
	}
	return &SNSAlerter{client: client, topicARN: topicARN}, nil
}

// NewSNSAlerterFromConfig builds the SNS client from the default AWS chain
func NewSNSAlerterFromConfig(ctx context.Context, config AlertConfig) (*SNSAlerter, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return NewSNSAlerter(sns.NewFromConfig(awsCfg), config.TopicARN)
}

// Alert publishes the failed steps of out
func (a *SNSAlerter) Alert(ctx context.Context, out *certificates.WorkflowOutcome) error {
	msg := alertMessage{
		RequestID: out.RequestID,
		State:     out.State,
		Failures:  make(map[string]string),
	}
	subject := "Certificate workflow failed"
	if rec := out.Record; rec != nil {
		msg.CertificateID = rec.ID
		msg.Name = rec.Name
		msg.Email = rec.Email
		msg.Status = rec.Status
		subject += ": " + rec.ID
	}
	for _, step := range out.Steps {
		if step.Status == certificates.StepFailed && step.Err != nil {
			msg.Failures[step.Step] = step.Err.Error()
		}
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	_, err = a.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sns: failed to publish alert: %w", err)
	}
	return nil
}
