package services

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates the registration payload is missing required values.
	ErrInvalidInput = errors.New("registration: login, email and password are required")
	// ErrDuplicateIdentity indicates the login or email already belongs to an account.
	ErrDuplicateIdentity = errors.New("registration: duplicate identity")
	// ErrNotFound indicates the referenced account or confirmation code does not exist.
	ErrNotFound = errors.New("registration: not found")
	// ErrAlreadyConfirmed indicates the account no longer needs a confirmation code.
	ErrAlreadyConfirmed = errors.New("registration: already confirmed")
	// ErrCodeExpired indicates the confirmation code is past its expiry.
	ErrCodeExpired = errors.New("registration: confirmation code expired")
	// ErrDispatchFailure indicates the confirmation code could not be delivered.
	ErrDispatchFailure = errors.New("registration: confirmation dispatch failed")
	// ErrInternalInconsistency indicates the directory no longer matches what the workflow wrote.
	// It is always logged at error level before being returned.
	ErrInternalInconsistency = errors.New("registration: internal inconsistency")
)

// DuplicateIdentityError names the field that collided with an existing account.
type DuplicateIdentityError struct {
	Field string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDuplicateIdentity, e.Field)
}

func (e *DuplicateIdentityError) Is(target error) bool {
	return target == ErrDuplicateIdentity
}

// DuplicateField returns the colliding field carried by err, or "" when err is not a duplicate.
func DuplicateField(err error) string {
	var dup *DuplicateIdentityError
	if errors.As(err, &dup) {
		return dup.Field
	}
	return ""
}
