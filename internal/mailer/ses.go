package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/newsly/newsly/internal/config"
	"github.com/newsly/newsly/internal/domain"
	"github.com/newsly/newsly/internal/pkg/logger"
)

// SendEmailAPI is the slice of the SES v2 client we use.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends emails via AWS SES using the SDK v2.
type SESSender struct {
	api       SendEmailAPI
	configSet string
	now       func() time.Time
}

// NewSESSender creates an SES sender from static credentials.
func NewSESSender(ctx context.Context, cfg config.SESConfig) (*SESSender, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("ses: AWS_SES_ACCESS_KEY and AWS_SES_SECRET_KEY are required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("ses: load AWS config: %w", err)
	}
	logger.Info("mailer: ses initialized", "region", cfg.Region)
	return NewSESSenderWithAPI(sesv2.NewFromConfig(awsCfg), cfg.ConfigSet), nil
}

// NewSESSenderWithAPI builds a sender over an existing SES client.
func NewSESSenderWithAPI(api SendEmailAPI, configSet string) *SESSender {
	return &SESSender{api: api, configSet: configSet, now: time.Now}
}

// Name implements Sender.
func (s *SESSender) Name() string { return "ses" }

// Send delivers a single email through AWS SES.
func (s *SESSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromHeader(msg)),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("newsletter_id"), Value: aws.String(msg.NewsletterID)},
			{Name: aws.String("subscriber_id"), Value: aws.String(msg.SubscriberID)},
		},
	}
	if msg.TextContent != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String("UTF-8")}
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	for name, value := range msg.Headers {
		input.Content.Simple.Headers = append(input.Content.Simple.Headers, types.MessageHeader{
			Name: aws.String(name), Value: aws.String(value),
		})
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}

	out, err := s.api.SendEmail(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("ses: %w", err)
	}
	return &domain.SendResult{
		MessageID: aws.ToString(out.MessageId),
		Provider:  s.Name(),
		SentAt:    s.now().UTC(),
	}, nil
}
