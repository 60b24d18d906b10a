package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/bloggers/internal/directory"
	"github.com/charlesng35/bloggers/internal/models"
	"github.com/charlesng35/bloggers/pkg/crypto"
	"github.com/charlesng35/bloggers/pkg/logger"
	"github.com/charlesng35/bloggers/pkg/metrics"
)

// ErrInvalidCredentials is returned when the supplied identity/password pair is invalid.
// Unknown accounts, wrong passwords and unreadable hashes all collapse into it.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// LocalConfig defines tunable behaviour for the local provider.
type LocalConfig struct {
	Logger *zap.Logger
	// HashPassword builds the decoy hash compared for unknown accounts. It should be the
	// hasher new accounts are stored with so both paths cost the same; bcrypt by default.
	HashPassword func(password string) (string, error)
}

// AuthenticateInput contains metadata required to authenticate a local user.
type AuthenticateInput struct {
	Identifier string
	Password   string
	IPAddress  string
	UserAgent  string
}

// LocalProvider implements login-or-email/password authentication against the directory.
type LocalProvider struct {
	directory    directory.Directory
	log          *zap.Logger
	hashPassword func(password string) (string, error)

	decoyOnce sync.Once
	decoyHash string
}

// NewLocalProvider builds a provider reading accounts from dir.
func NewLocalProvider(dir directory.Directory, cfg LocalConfig) (*LocalProvider, error) {
	if dir == nil {
		return nil, errors.New("local provider: directory is required")
	}

	log := cfg.Logger
	if log == nil {
		log = logger.WithModule("auth")
	}

	hash := cfg.HashPassword
	if hash == nil {
		hash = crypto.HashPassword
	}

	return &LocalProvider{directory: dir, log: log, hashPassword: hash}, nil
}

// Authenticate verifies the supplied credentials and returns the matching identity.
func (p *LocalProvider) Authenticate(ctx context.Context, input AuthenticateInput) (*models.Identity, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" || input.Password == "" {
		return nil, p.reject("empty credentials", input)
	}

	user, err := p.directory.FindByLoginOrEmail(ctx, identifier)
	if errors.Is(err, directory.ErrNotFound) {
		// Spend a hash comparison anyway so response time does not reveal unknown accounts.
		crypto.VerifyPassword(p.decoy(), input.Password)
		return nil, p.reject("unknown account", input)
	}
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("local provider: query user: %w", err)
	}

	ok, err := crypto.CheckPassword(user.PasswordHash, input.Password)
	if err != nil {
		p.log.Error("stored password hash is unreadable", zap.String("user_id", user.ID), zap.Error(err))
		return nil, p.reject("malformed hash", input)
	}
	if !ok {
		return nil, p.reject("password mismatch", input)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	identity := user.Identity()
	return &identity, nil
}

func (p *LocalProvider) reject(reason string, input AuthenticateInput) error {
	metrics.AuthAttempts.WithLabelValues("failure").Inc()
	p.log.Debug("authentication rejected",
		zap.String("reason", reason),
		zap.String("ip", input.IPAddress),
		zap.String("user_agent", input.UserAgent),
	)
	return ErrInvalidCredentials
}

func (p *LocalProvider) decoy() string {
	p.decoyOnce.Do(func() {
		hash, err := p.hashPassword("decoy-password-for-timing")
		if err != nil {
			p.log.Warn("decoy hash with configured hasher failed, using bcrypt", zap.Error(err))
			hash, _ = crypto.HashPassword("decoy-password-for-timing")
		}
		p.decoyHash = hash
	})
	return p.decoyHash
}
