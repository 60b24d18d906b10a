package app

import (
	"strings"

	"github.com/charlesng35/bloggers/internal/auth"
	"github.com/charlesng35/bloggers/internal/services"
	"github.com/charlesng35/bloggers/pkg/crypto"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// RegistrationOptions converts the registration settings into service options.
// Zero values keep the service defaults.
func (c AuthConfig) RegistrationOptions() []services.RegistrationOption {
	r := c.Registration
	opts := []services.RegistrationOption{
		services.WithPasswordHasher(c.PasswordHasher()),
	}
	if r.CodeLength > 0 {
		opts = append(opts, services.WithCodeLength(r.CodeLength))
	}
	if r.CodeExpiry > 0 {
		opts = append(opts, services.WithCodeExpiry(r.CodeExpiry))
	}
	if r.DispatchTimeout > 0 {
		opts = append(opts, services.WithDispatchTimeout(r.DispatchTimeout))
	}
	if r.CompensationAttempts > 0 {
		opts = append(opts, services.WithCompensationAttempts(r.CompensationAttempts))
	}
	if r.CompensationBackoff > 0 {
		opts = append(opts, services.WithCompensationBackoff(r.CompensationBackoff))
	}
	return opts
}

// PasswordHasher returns the hash function used for new accounts.
func (c AuthConfig) PasswordHasher() services.PasswordHasher {
	if strings.ToLower(c.Password.Algorithm) != "argon2id" {
		return crypto.HashPassword
	}

	params := crypto.DefaultArgon2Params()
	if c.Password.Argon2.Time > 0 {
		params.Time = c.Password.Argon2.Time
	}
	if c.Password.Argon2.Memory > 0 {
		params.Memory = c.Password.Argon2.Memory
	}
	if c.Password.Argon2.Threads > 0 {
		params.Threads = c.Password.Argon2.Threads
	}
	return func(password string) (string, error) {
		return crypto.HashPasswordArgon2id(password, params)
	}
}
