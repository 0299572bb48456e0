package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"dietlog/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSES struct {
	mock.Mock
}

func (m *mockSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sesv2.SendEmailOutput)
	return out, args.Error(1)
}

func TestRenderVerification_EscapesName(t *testing.T) {
	msg, err := RenderVerification("a@example.com", "<script>x</script>", "123456")
	require.NoError(t, err)

	assert.Equal(t, "Verify your email address", msg.Subject)
	assert.Contains(t, msg.HTML, "<h2>123456</h2>")
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.Text, "123456")
}

func TestSESMailer_SendVerificationCode(t *testing.T) {
	client := &mockSES{}
	client.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
		return aws.ToString(in.FromEmailAddress) == "no-reply@dietlog.dev" &&
			len(in.Destination.ToAddresses) == 1 &&
			in.Destination.ToAddresses[0] == "ana@example.com" &&
			aws.ToString(in.Content.Simple.Subject.Data) == verificationSubject
	})).Return(&sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil).Once()

	m := NewSESMailerWithClient(client, "no-reply@dietlog.dev")
	require.NoError(t, m.SendVerificationCode(context.Background(), "ana@example.com", "Ana", "654321"))
	client.AssertExpectations(t)
}

func TestSESMailer_SetsDeadline(t *testing.T) {
	client := &mockSES{}
	client.On("SendEmail", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= SendTimeout
	}), mock.Anything).Return(&sesv2.SendEmailOutput{}, nil).Once()

	m := NewSESMailerWithClient(client, "no-reply@dietlog.dev")
	require.NoError(t, m.SendVerificationCode(context.Background(), "b@example.com", "Bea", "111111"))
	client.AssertExpectations(t)
}

func TestSESMailer_ProviderError(t *testing.T) {
	client := &mockSES{}
	client.On("SendEmail", mock.Anything, mock.Anything).Return(nil, errors.New("throttled")).Once()

	m := NewSESMailerWithClient(client, "no-reply@dietlog.dev")
	err := m.SendVerificationCode(context.Background(), "c@example.com", "Cam", "222222")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestNewSESMailer_UsesRegionAndStaticCredentials(t *testing.T) {
	prev := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = prev })

	var loaded awsconfig.LoadOptions
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		for _, fn := range optFns {
			require.NoError(t, fn(&loaded))
		}
		return aws.Config{Region: loaded.Region}, nil
	}

	cfg := &config.Config{
		MailDriver:         config.MailDriverSES,
		AWSRegion:          "eu-west-1",
		AWSAccessKeyID:     "AKIA",
		AWSSecretAccessKey: "secret",
		SESFromEmail:       "no-reply@dietlog.dev",
	}
	m, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &SESMailer{}, m)
	assert.Equal(t, "eu-west-1", loaded.Region)
	assert.NotNil(t, loaded.Credentials)
}

func TestNew_DefaultsToLogMailer(t *testing.T) {
	m, err := New(context.Background(), &config.Config{MailDriver: config.MailDriverLog})
	require.NoError(t, err)
	assert.IsType(t, &LogMailer{}, m)
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, m.SendVerificationCode(context.Background(), "d@example.com", "Dee", "999000"))
	assert.Contains(t, buf.String(), "to=d@example.com")
	assert.Contains(t, buf.String(), "code=999000")
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", domainOf("x@example.com"))
	assert.Equal(t, "", domainOf("nobody"))
}
