package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/charlesng35/bloggers/pkg/mail"
)

type recordingMailer struct {
	err  error
	sent []mail.Message
}

func (m *recordingMailer) Send(ctx context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func TestMailGatewaySendsConfirmationLink(t *testing.T) {
	mailer := &recordingMailer{}
	gateway, err := NewMailGateway(mailer,
		WithConfirmationURL("https://blog.example.com/confirm-registration"),
		WithSender("no-reply@blog.example.com"),
	)
	require.NoError(t, err)

	ok, err := gateway.SendConfirmationCode(context.Background(), "alice@example.com", "a1b2c3")
	require.NoError(t, err)
	require.True(t, ok)

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	require.Equal(t, []string{"alice@example.com"}, msg.To)
	require.Equal(t, "no-reply@blog.example.com", msg.From)
	require.Equal(t, subjectConfirm, msg.Subject)
	require.True(t, msg.HTML)
	require.Contains(t, msg.Body, "https://blog.example.com/confirm-registration?code=a1b2c3")
	require.Contains(t, msg.Body, "<b>a1b2c3</b>")
}

func TestMailGatewayResendUsesOwnSubject(t *testing.T) {
	mailer := &recordingMailer{}
	gateway, err := NewMailGateway(mailer)
	require.NoError(t, err)

	ok, err := gateway.ResendConfirmationCode(context.Background(), "alice@example.com", "ffff00")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, subjectResend, mailer.sent[0].Subject)
}

func TestMailGatewayRejectedRecipientIsNotAnError(t *testing.T) {
	core, recorded := observer.New(zap.WarnLevel)
	mailer := &recordingMailer{err: fmt.Errorf("%w: rcpt to", mail.ErrRecipientRejected)}
	gateway, err := NewMailGateway(mailer, WithGatewayLogger(zap.New(core)))
	require.NoError(t, err)

	ok, err := gateway.SendConfirmationCode(context.Background(), "ghost@example.com", "123456")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, recorded.FilterMessage("confirmation email rejected").Len())
}

func TestMailGatewayTransportFailureIsAnError(t *testing.T) {
	transport := errors.New("dial tcp: connection refused")
	gateway, err := NewMailGateway(&recordingMailer{err: transport})
	require.NoError(t, err)

	ok, err := gateway.SendConfirmationCode(context.Background(), "alice@example.com", "123456")
	require.ErrorIs(t, err, transport)
	require.False(t, ok)
}

func TestNewMailGatewayRequiresMailer(t *testing.T) {
	_, err := NewMailGateway(nil)
	require.Error(t, err)
}

func TestLogGatewayLogsCode(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	gateway := NewLogGateway(zap.New(core))

	ok, err := gateway.SendConfirmationCode(context.Background(), "alice@example.com", "abcdef")
	require.NoError(t, err)
	require.True(t, ok)

	entries := recorded.All()
	require.Len(t, entries, 1)
	require.Equal(t, "abcdef", entries[0].ContextMap()["code"])
	require.Equal(t, "send", entries[0].ContextMap()["kind"])
}

func TestLogGatewayHonoursCancelledContext(t *testing.T) {
	gateway := NewLogGateway(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := gateway.ResendConfirmationCode(ctx, "alice@example.com", "abcdef")
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, ok)
}
