// Package directory persists user accounts and their confirmation state.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charlesng35/bloggers/internal/models"
)

var (
	// ErrNotFound indicates no account matched the lookup.
	ErrNotFound = errors.New("directory: not found")
	// ErrDuplicate indicates a unique index (login, email or confirmation code) rejected the write.
	ErrDuplicate = errors.New("directory: duplicate")
)

// Directory is the account store used by registration and authentication.
type Directory interface {
	// FindByLoginOrEmail matches the identifier case-insensitively against login or email.
	FindByLoginOrEmail(ctx context.Context, identifier string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	// SetConfirmationCode replaces any outstanding code of the user.
	SetConfirmationCode(ctx context.Context, userID, code string, expiresAt time.Time) error
	FindByConfirmationCode(ctx context.Context, code string) (*models.User, error)
	// MarkConfirmed flips the confirmation flag and clears the code. It reports ErrNotFound
	// when the user is missing or was already confirmed.
	MarkConfirmed(ctx context.Context, userID string, at time.Time) error
	DeleteByID(ctx context.Context, userID string) error
	// DeleteUnconfirmedBefore removes unconfirmed accounts whose code expired before cutoff.
	DeleteUnconfirmedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DuplicateError reports which unique field rejected a write when the backend exposes it.
type DuplicateError struct {
	Field string
	Err   error
}

func (e *DuplicateError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %v", ErrDuplicate, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrDuplicate, e.Field, e.Err)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

func (e *DuplicateError) Unwrap() error {
	return e.Err
}

// DuplicateField extracts the conflicting field from err, or "" when unknown.
func DuplicateField(err error) string {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup.Field
	}
	return ""
}
