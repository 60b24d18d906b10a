package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"
	"time"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

type fakeClient struct {
	rcptErr error
	from    string
	rcpts   []string
	body    bytes.Buffer
	quit    bool
}

func (f *fakeClient) Mail(from string) error { f.from = from; return nil }
func (f *fakeClient) Rcpt(to string) error {
	if f.rcptErr != nil {
		return f.rcptErr
	}
	f.rcpts = append(f.rcpts, to)
	return nil
}
func (f *fakeClient) Data() (io.WriteCloser, error)   { return nopCloser{&f.body}, nil }
func (f *fakeClient) Quit() error                     { f.quit = true; return nil }
func (f *fakeClient) Close() error                    { return nil }
func (f *fakeClient) StartTLS(*tls.Config) error      { return nil }
func (f *fakeClient) Auth(smtp.Auth) error            { return nil }
func (f *fakeClient) Extension(string) (bool, string) { return false, "" }

func newFakeMailer(t *testing.T, client *fakeClient) *smtpMailer {
	t.Helper()

	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	sm := mailer.(*smtpMailer)
	sm.dialFn = func(context.Context, SMTPSettings) (net.Conn, smtpClient, error) {
		server, conn := net.Pipe()
		t.Cleanup(func() { _ = server.Close() })
		return conn, client, nil
	}
	sm.authFn = func(smtpClient, SMTPSettings) error { return nil }
	return sm
}

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
	})
	if err == nil || !strings.Contains(err.Error(), "host is required") {
		t.Fatalf("expected host validation error, got %v", err)
	}

	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("expected disabled configuration to succeed: %v", err)
	}

	if mailer == nil {
		t.Fatal("expected mailer to be returned")
	}
}

func TestSMTPMailerSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		To:      []string{"test@example.com"},
		Subject: "Test",
		Body:    "Hello",
	})
	if err != ErrSMTPDisabled {
		t.Fatalf("expected ErrSMTPDisabled, got %v", err)
	}
}

func TestSMTPMailerSendDelivers(t *testing.T) {
	client := &fakeClient{}
	mailer := newFakeMailer(t, client)

	err := mailer.Send(context.Background(), Message{
		To:      []string{"user@example.com"},
		Subject: "Confirm",
		Body:    "<a>code</a>",
		HTML:    true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.from != "no-reply@example.com" {
		t.Fatalf("expected default sender, got %q", client.from)
	}
	if len(client.rcpts) != 1 || client.rcpts[0] != "user@example.com" {
		t.Fatalf("unexpected recipients: %v", client.rcpts)
	}
	if !strings.Contains(client.body.String(), "Content-Type: text/html") {
		t.Fatalf("expected html content type, got %q", client.body.String())
	}
	if !client.quit {
		t.Fatal("expected QUIT to be sent")
	}
}

func TestSMTPMailerPermanentRcptFailureIsRejection(t *testing.T) {
	client := &fakeClient{rcptErr: &textproto.Error{Code: 550, Msg: "mailbox unavailable"}}
	mailer := newFakeMailer(t, client)

	err := mailer.Send(context.Background(), Message{To: []string{"ghost@example.com"}})
	if !errors.Is(err, ErrRecipientRejected) {
		t.Fatalf("expected ErrRecipientRejected, got %v", err)
	}
}

func TestSMTPMailerTransientRcptFailureIsFault(t *testing.T) {
	client := &fakeClient{rcptErr: &textproto.Error{Code: 451, Msg: "try again later"}}
	mailer := newFakeMailer(t, client)

	err := mailer.Send(context.Background(), Message{To: []string{"user@example.com"}})
	if err == nil || errors.Is(err, ErrRecipientRejected) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestFormatMessage(t *testing.T) {
	content := formatMessage("from@example.com", []string{"to@example.com"}, Message{Subject: "Subject\r\nBreak", Body: "Body"})
	if !strings.Contains(content, "From: from@example.com") {
		t.Fatalf("expected from header, got %q", content)
	}
	if !strings.Contains(content, "Subject: Subject  Break") {
		t.Fatalf("expected sanitised subject, got %q", content)
	}
	if !strings.Contains(content, "Content-Type: text/plain") {
		t.Fatalf("expected plain content type, got %q", content)
	}
	if !strings.HasSuffix(content, "Body") {
		t.Fatalf("expected body suffix, got %q", content)
	}
}

func TestSMTPMailerDefaultTimeout(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
		UseTLS:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	sm, ok := mailer.(*smtpMailer)
	if !ok {
		t.Fatalf("expected smtpMailer type")
	}

	if sm.cfg.Timeout != 10*time.Second {
		t.Fatalf("expected timeout to be 10s, got %v", sm.cfg.Timeout)
	}
}

func TestSMTPMailerSendRequiresRecipients(t *testing.T) {
	mailer := newFakeMailer(t, &fakeClient{})

	err := mailer.Send(context.Background(), Message{
		To:      []string{"   ", "\t"},
		Subject: "No recipients",
		Body:    "Body",
	})
	if err == nil || !strings.Contains(err.Error(), "at least one recipient") {
		t.Fatalf("expected missing recipient error, got %v", err)
	}
}

func TestSMTPMailerSendValidatesFromAddress(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "",
	})
	if err != nil {
		t.Fatalf("unexpected error creating mailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		From: "invalid-from",
		To:   []string{"user@example.com"},
	})
	if err == nil || !strings.Contains(err.Error(), "invalid from address") {
		t.Fatalf("expected invalid from error, got %v", err)
	}
}

func TestSMTPMailerSendValidatesRecipientAddresses(t *testing.T) {
	mailer := newFakeMailer(t, &fakeClient{})

	err := mailer.Send(context.Background(), Message{
		To: []string{"user@example.com", "bad-address"},
	})
	if !errors.Is(err, ErrRecipientRejected) || !strings.Contains(err.Error(), "invalid recipient address") {
		t.Fatalf("expected invalid recipient error, got %v", err)
	}
}

func TestUniqueAddresses(t *testing.T) {
	addresses := []string{"alice@example.com", "bob@example.com", " alice@example.com ", "", "bob@example.com"}
	result := uniqueAddresses(addresses)
	if len(result) != 2 {
		t.Fatalf("expected 2 unique addresses, got %d: %v", len(result), result)
	}
	if result[0] != "alice@example.com" || result[1] != "bob@example.com" {
		t.Fatalf("unexpected result order/content: %v", result)
	}
}
