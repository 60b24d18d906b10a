// Package notify delivers confirmation codes to account holders.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/charlesng35/bloggers/pkg/logger"
)

// Gateway delivers confirmation codes. A false result with a nil error means the
// recipient was refused; an error means the transport itself failed.
type Gateway interface {
	SendConfirmationCode(ctx context.Context, email, code string) (bool, error)
	ResendConfirmationCode(ctx context.Context, email, code string) (bool, error)
}

// LogGateway writes codes to the application log instead of sending email.
// It is wired when SMTP delivery is disabled so local setups can still confirm accounts.
type LogGateway struct {
	log *zap.Logger
}

// NewLogGateway constructs a LogGateway writing through the supplied logger.
func NewLogGateway(log *zap.Logger) *LogGateway {
	if log == nil {
		log = logger.WithModule("notify")
	}
	return &LogGateway{log: log}
}

func (g *LogGateway) SendConfirmationCode(ctx context.Context, email, code string) (bool, error) {
	return g.emit(ctx, "send", email, code)
}

func (g *LogGateway) ResendConfirmationCode(ctx context.Context, email, code string) (bool, error) {
	return g.emit(ctx, "resend", email, code)
}

func (g *LogGateway) emit(ctx context.Context, kind, email, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	g.log.Warn("smtp disabled, confirmation code logged instead of emailed",
		zap.String("kind", kind),
		zap.String("email", email),
		zap.String("code", code),
	)
	return true, nil
}
