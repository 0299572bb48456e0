package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dietlog/internal/config"
	"dietlog/internal/middleware"
	"dietlog/internal/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.opentelemetry.io/otel/attribute"
)

// SESAPI is the part of the SES v2 client the mailer uses.
type SESAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

var loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

// SESMailer sends verification emails through Amazon SES v2.
type SESMailer struct {
	client SESAPI
	from   string
}

// NewSESMailer builds an SES client for cfg.AWSRegion. Static credentials are used when both keys are set;
// otherwise the default AWS credential chain applies.
func NewSESMailer(ctx context.Context, cfg *config.Config) (*SESMailer, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESMailerWithClient(sesv2.NewFromConfig(awsCfg), cfg.SESFromEmail), nil
}

// NewSESMailerWithClient wraps an existing client.
func NewSESMailerWithClient(client SESAPI, from string) *SESMailer {
	return &SESMailer{client: client, from: from}
}

func (m *SESMailer) SendVerificationCode(ctx context.Context, to, name, code string) (err error) {
	ctx, span := observability.StartClientSpan(ctx, "ses", "SendEmail")
	span.SetAttributes(attribute.String("email.to_domain", domainOf(to)))
	defer func() {
		observability.RecordEmail(config.MailDriverSES, err)
		observability.EndSpan(span, err)
	}()

	msg, err := RenderVerification(to, name, code)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, SendTimeout)
	defer cancel()

	_, err = m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
					Text: &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		middleware.Logger.ErrorContext(ctx, "failed to send verification email", slog.String("error", err.Error()))
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 {
		return addr[i+1:]
	}
	return ""
}
