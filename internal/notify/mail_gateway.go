package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/bloggers/pkg/logger"
	"github.com/charlesng35/bloggers/pkg/mail"
)

const (
	subjectConfirm = "Confirm your registration"
	subjectResend  = "Your new confirmation code"
)

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<h1>{{.Heading}}</h1>
<p>To finish registration please follow the link below:
<a href="{{.Link}}">complete registration</a>
</p>
<p>Or enter this code: <b>{{.Code}}</b></p>
`))

type confirmationView struct {
	Heading string
	Link    string
	Code    string
}

// MailOption customises the MailGateway.
type MailOption func(*MailGateway)

// WithConfirmationURL sets the page that receives the code as ?code=<code>.
func WithConfirmationURL(raw string) MailOption {
	return func(g *MailGateway) {
		g.confirmURL = strings.TrimSpace(raw)
	}
}

// WithSender overrides the From address; the mailer default applies otherwise.
func WithSender(from string) MailOption {
	return func(g *MailGateway) {
		g.from = strings.TrimSpace(from)
	}
}

// WithGatewayLogger injects the logger used for rejected deliveries.
func WithGatewayLogger(log *zap.Logger) MailOption {
	return func(g *MailGateway) {
		if log != nil {
			g.log = log
		}
	}
}

// MailGateway renders confirmation emails and hands them to a mail.Mailer.
type MailGateway struct {
	mailer     mail.Mailer
	confirmURL string
	from       string
	log        *zap.Logger
}

// NewMailGateway constructs a gateway around the supplied mailer.
func NewMailGateway(mailer mail.Mailer, opts ...MailOption) (*MailGateway, error) {
	if mailer == nil {
		return nil, errors.New("notify: mailer is required")
	}

	g := &MailGateway{
		mailer:     mailer,
		confirmURL: "http://localhost:8000/confirm-registration",
		log:        logger.WithModule("notify"),
	}
	for _, opt := range opts {
		opt(g)
	}

	if _, err := url.Parse(g.confirmURL); err != nil {
		return nil, fmt.Errorf("notify: invalid confirmation url: %w", err)
	}
	return g, nil
}

func (g *MailGateway) SendConfirmationCode(ctx context.Context, email, code string) (bool, error) {
	return g.deliver(ctx, subjectConfirm, "Thank you for your registration", email, code)
}

func (g *MailGateway) ResendConfirmationCode(ctx context.Context, email, code string) (bool, error) {
	return g.deliver(ctx, subjectResend, "Here is your new confirmation code", email, code)
}

func (g *MailGateway) deliver(ctx context.Context, subject, heading, email, code string) (bool, error) {
	body, err := g.render(heading, code)
	if err != nil {
		return false, err
	}

	err = g.mailer.Send(ctx, mail.Message{
		From:    g.from,
		To:      []string{email},
		Subject: subject,
		Body:    body,
		HTML:    true,
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, mail.ErrRecipientRejected):
		g.log.Warn("confirmation email rejected", zap.String("email", email), zap.Error(err))
		return false, nil
	default:
		return false, fmt.Errorf("notify: send confirmation: %w", err)
	}
}

func (g *MailGateway) render(heading, code string) (string, error) {
	link, err := url.Parse(g.confirmURL)
	if err != nil {
		return "", fmt.Errorf("notify: confirmation url: %w", err)
	}
	query := link.Query()
	query.Set("code", code)
	link.RawQuery = query.Encode()

	var buf bytes.Buffer
	if err := confirmationTemplate.Execute(&buf, confirmationView{
		Heading: heading,
		Link:    link.String(),
		Code:    code,
	}); err != nil {
		return "", fmt.Errorf("notify: render confirmation: %w", err)
	}
	return buf.String(), nil
}
