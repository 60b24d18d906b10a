package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/bloggers/internal/directory"
	"github.com/charlesng35/bloggers/internal/models"
	"github.com/charlesng35/bloggers/internal/notify"
	"github.com/charlesng35/bloggers/pkg/crypto"
	"github.com/charlesng35/bloggers/pkg/logger"
	"github.com/charlesng35/bloggers/pkg/metrics"
)

const (
	defaultCodeLength           = 6
	defaultCodeExpiry           = 24 * time.Hour
	defaultDispatchTimeout      = 15 * time.Second
	defaultCompensationAttempts = 3
	defaultCompensationBackoff  = 200 * time.Millisecond

	// A collision with another user's code or with the previous code triggers a redraw.
	maxCodeDraws = 5

	dispatchSend   = "send"
	dispatchResend = "resend"
)

// RegistrationState names a step of the registration saga.
type RegistrationState string

const (
	StateCreated    RegistrationState = "created"
	StateCodeIssued RegistrationState = "code_issued"
	StateEmailSent  RegistrationState = "email_sent"
	StateRolledBack RegistrationState = "rolled_back"
)

// RegistrationInput is the transient payload of a sign-up request.
type RegistrationInput struct {
	Login    string
	Email    string
	Password string
}

// CodeGenerator returns a random confirmation code of the requested length.
type CodeGenerator func(length int) (string, error)

// PasswordHasher turns a plaintext password into its stored encoding.
type PasswordHasher func(password string) (string, error)

// RegistrationOption customises the RegistrationService.
type RegistrationOption func(*RegistrationService)

// WithRegistrationClock injects a custom time source.
func WithRegistrationClock(clock func() time.Time) RegistrationOption {
	return func(s *RegistrationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithCodeLength sets the number of characters in generated codes. Lengths the
// directory cannot store are ignored.
func WithCodeLength(length int) RegistrationOption {
	return func(s *RegistrationService) {
		if length > 0 && length <= models.MaxConfirmationCodeLength {
			s.codeLength = length
		}
	}
}

// WithCodeExpiry overrides how long a confirmation code stays redeemable.
func WithCodeExpiry(d time.Duration) RegistrationOption {
	return func(s *RegistrationService) {
		if d > 0 {
			s.codeExpiry = d
		}
	}
}

// WithDispatchTimeout bounds each gateway call.
func WithDispatchTimeout(d time.Duration) RegistrationOption {
	return func(s *RegistrationService) {
		if d > 0 {
			s.dispatchTimeout = d
		}
	}
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(gen CodeGenerator) RegistrationOption {
	return func(s *RegistrationService) {
		if gen != nil {
			s.generateCode = gen
		}
	}
}

// WithPasswordHasher replaces the bcrypt default.
func WithPasswordHasher(hasher PasswordHasher) RegistrationOption {
	return func(s *RegistrationService) {
		if hasher != nil {
			s.hashPassword = hasher
		}
	}
}

// WithCompensationAttempts sets how many times the rollback delete is tried.
func WithCompensationAttempts(attempts int) RegistrationOption {
	return func(s *RegistrationService) {
		if attempts > 0 {
			s.compensationAttempts = attempts
		}
	}
}

// WithCompensationBackoff sets the pause between rollback delete attempts.
func WithCompensationBackoff(d time.Duration) RegistrationOption {
	return func(s *RegistrationService) {
		if d >= 0 {
			s.compensationBackoff = d
		}
	}
}

// WithRegistrationLogger injects the logger used for state transitions.
func WithRegistrationLogger(log *zap.Logger) RegistrationOption {
	return func(s *RegistrationService) {
		if log != nil {
			s.log = log
		}
	}
}

// RegistrationService creates accounts, issues confirmation codes and redeems them.
// Registration either leaves an unconfirmed account whose code was delivered, or no account at all.
type RegistrationService struct {
	directory directory.Directory
	gateway   notify.Gateway

	now                  func() time.Time
	generateCode         CodeGenerator
	hashPassword         PasswordHasher
	codeLength           int
	codeExpiry           time.Duration
	dispatchTimeout      time.Duration
	compensationAttempts int
	compensationBackoff  time.Duration
	log                  *zap.Logger
}

// NewRegistrationService constructs the workflow over its two collaborators.
func NewRegistrationService(dir directory.Directory, gateway notify.Gateway, opts ...RegistrationOption) (*RegistrationService, error) {
	if dir == nil {
		return nil, errors.New("registration service: directory is required")
	}
	if gateway == nil {
		return nil, errors.New("registration service: gateway is required")
	}

	service := &RegistrationService{
		directory:            dir,
		gateway:              gateway,
		now:                  time.Now,
		generateCode:         crypto.GenerateCode,
		hashPassword:         crypto.HashPassword,
		codeLength:           defaultCodeLength,
		codeExpiry:           defaultCodeExpiry,
		dispatchTimeout:      defaultDispatchTimeout,
		compensationAttempts: defaultCompensationAttempts,
		compensationBackoff:  defaultCompensationBackoff,
		log:                  logger.WithModule("registration"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Register creates an unconfirmed account and emails it a confirmation code.
// A failed dispatch deletes the account again and returns ErrDispatchFailure.
func (s *RegistrationService) Register(ctx context.Context, input RegistrationInput) (*models.User, error) {
	login := strings.TrimSpace(input.Login)
	email := models.NormalizeEmail(input.Email)
	if login == "" || email == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}

	if err := s.ensureAvailable(ctx, "login", login); err != nil {
		return nil, err
	}
	if err := s.ensureAvailable(ctx, "email", email); err != nil {
		return nil, err
	}

	hash, err := s.hashPassword(input.Password)
	if err != nil {
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("registration: hash password: %w", err)
	}

	user := &models.User{
		Login:        login,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.directory.Create(ctx, user); err != nil {
		if errors.Is(err, directory.ErrDuplicate) {
			return nil, s.duplicateFromStore(ctx, err, login)
		}
		metrics.Registrations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("registration: create user: %w", err)
	}
	s.transition(StateCreated, user)

	// Past this point the workflow must finish in EmailSent or RolledBack,
	// so caller cancellation no longer applies.
	sagaCtx := context.WithoutCancel(ctx)

	code, err := s.issueCode(sagaCtx, user.ID, "")
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			s.log.Error("user vanished before confirmation code was stored",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
			metrics.Registrations.WithLabelValues("inconsistent").Inc()
			return nil, fmt.Errorf("%w: user %s missing after create: %w", ErrInternalInconsistency, user.ID, err)
		}
		return nil, s.rollback(sagaCtx, user, err)
	}
	s.transition(StateCodeIssued, user)

	if err := s.dispatch(sagaCtx, dispatchSend, user.Email, code); err != nil {
		return nil, s.rollback(sagaCtx, user, err)
	}

	user.EmailConfirmation.Code = &code
	s.transition(StateEmailSent, user)
	metrics.Registrations.WithLabelValues("success").Inc()
	return user, nil
}

// ResendCode replaces the outstanding code of an unconfirmed account and delivers the new one.
// The account is never removed here since it existed before the call.
func (s *RegistrationService) ResendCode(ctx context.Context, loginOrEmail string) error {
	user, err := s.directory.FindByLoginOrEmail(ctx, loginOrEmail)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("registration: find user: %w", err)
	}
	if user.EmailConfirmation.IsConfirmed {
		return ErrAlreadyConfirmed
	}

	previous := ""
	if user.EmailConfirmation.Code != nil {
		previous = *user.EmailConfirmation.Code
	}

	code, err := s.issueCode(ctx, user.ID, previous)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := s.dispatch(ctx, dispatchResend, user.Email, code); err != nil {
		return err
	}

	s.log.Info("confirmation code reissued", zap.String("user_id", user.ID))
	return nil
}

// Confirm redeems a confirmation code. A code works once; later attempts report ErrNotFound.
func (s *RegistrationService) Confirm(ctx context.Context, code string) (*models.User, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrNotFound
	}

	user, err := s.directory.FindByConfirmationCode(ctx, code)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("registration: find code: %w", err)
	}
	if user.EmailConfirmation.IsConfirmed {
		return nil, ErrNotFound
	}

	now := s.now().UTC()
	if expires := user.EmailConfirmation.ExpiresAt; expires != nil && !now.Before(*expires) {
		return nil, ErrCodeExpired
	}

	if err := s.directory.MarkConfirmed(ctx, user.ID, now); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("registration: mark confirmed: %w", err)
	}

	user.EmailConfirmation = models.EmailConfirmation{IsConfirmed: true, ConfirmedAt: &now}
	s.log.Info("account confirmed", zap.String("user_id", user.ID))
	return user, nil
}

func (s *RegistrationService) ensureAvailable(ctx context.Context, field, value string) error {
	_, err := s.directory.FindByLoginOrEmail(ctx, value)
	switch {
	case err == nil:
		metrics.Registrations.WithLabelValues("duplicate").Inc()
		return &DuplicateIdentityError{Field: field}
	case errors.Is(err, directory.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("registration: check %s: %w", field, err)
	}
}

// duplicateFromStore resolves which field lost a create race when the backend did not say.
func (s *RegistrationService) duplicateFromStore(ctx context.Context, cause error, login string) error {
	metrics.Registrations.WithLabelValues("duplicate").Inc()

	field := directory.DuplicateField(cause)
	if field != "login" && field != "email" {
		field = "email"
		if existing, err := s.directory.FindByLoginOrEmail(ctx, login); err == nil && strings.EqualFold(existing.Login, login) {
			field = "login"
		}
	}
	return &DuplicateIdentityError{Field: field}
}

func (s *RegistrationService) issueCode(ctx context.Context, userID, previous string) (string, error) {
	for draw := 0; draw < maxCodeDraws; draw++ {
		code, err := s.generateCode(s.codeLength)
		if err != nil {
			return "", fmt.Errorf("registration: generate code: %w", err)
		}
		if code == previous {
			continue
		}

		expiresAt := s.now().UTC().Add(s.codeExpiry)
		err = s.directory.SetConfirmationCode(ctx, userID, code, expiresAt)
		switch {
		case err == nil:
			return code, nil
		case errors.Is(err, directory.ErrDuplicate):
			continue
		default:
			return "", fmt.Errorf("registration: store code: %w", err)
		}
	}
	return "", fmt.Errorf("registration: no unique confirmation code after %d draws", maxCodeDraws)
}

// dispatch calls the gateway under the dispatch timeout. A gateway that ignores its
// context is abandoned once the deadline passes.
func (s *RegistrationService) dispatch(ctx context.Context, kind, email, code string) error {
	send := s.gateway.SendConfirmationCode
	if kind == dispatchResend {
		send = s.gateway.ResendConfirmationCode
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()

	type outcome struct {
		delivered bool
		err       error
	}
	done := make(chan outcome, 1)
	go func() {
		delivered, err := send(dispatchCtx, email, code)
		done <- outcome{delivered: delivered, err: err}
	}()

	var result outcome
	select {
	case result = <-done:
	case <-dispatchCtx.Done():
		result = outcome{err: fmt.Errorf("gateway did not answer within %s: %w", s.dispatchTimeout, dispatchCtx.Err())}
	}

	switch {
	case result.err != nil:
		metrics.ConfirmationDispatches.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("%w: %w", ErrDispatchFailure, result.err)
	case !result.delivered:
		metrics.ConfirmationDispatches.WithLabelValues(kind, "rejected").Inc()
		return fmt.Errorf("%w: recipient %s refused", ErrDispatchFailure, email)
	default:
		metrics.ConfirmationDispatches.WithLabelValues(kind, "delivered").Inc()
		return nil
	}
}

// rollback deletes the account created by Register and returns cause. When the delete
// keeps failing the account is left behind, which is reported as ErrInternalInconsistency.
func (s *RegistrationService) rollback(ctx context.Context, user *models.User, cause error) error {
	var deleteErr error
	for attempt := 1; attempt <= s.compensationAttempts; attempt++ {
		if attempt > 1 && s.compensationBackoff > 0 {
			time.Sleep(s.compensationBackoff)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
		deleteErr = s.directory.DeleteByID(attemptCtx, user.ID)
		cancel()

		if deleteErr == nil || errors.Is(deleteErr, directory.ErrNotFound) {
			s.transition(StateRolledBack, user, zap.NamedError("cause", cause))
			metrics.Registrations.WithLabelValues("rolled_back").Inc()
			return cause
		}

		s.log.Warn("compensating delete failed",
			zap.String("user_id", user.ID),
			zap.Int("attempt", attempt),
			zap.Error(deleteErr),
		)
	}

	s.log.Error("registration left an undeliverable account behind",
		zap.String("user_id", user.ID),
		zap.String("login", user.Login),
		zap.NamedError("cause", cause),
		zap.NamedError("delete_error", deleteErr),
	)
	metrics.CompensationFailures.Inc()
	metrics.Registrations.WithLabelValues("inconsistent").Inc()

	return multierr.Combine(
		fmt.Errorf("%w: compensating delete of user %s failed", ErrInternalInconsistency, user.ID),
		cause,
		deleteErr,
	)
}

func (s *RegistrationService) transition(state RegistrationState, user *models.User, fields ...zap.Field) {
	base := []zap.Field{
		zap.String("state", string(state)),
		zap.String("user_id", user.ID),
	}
	s.log.Info("registration state changed", append(base, fields...)...)
}
