// Package services defines the business logic of the catalog: categories,
// groups, products and their comments, images, attributes and likes, plus
// account registration and token handling. This file centralizes the
// service-level error values so they can be returned consistently by service
// methods and checked by callers with errors.Is / errors.As.
//
// Translation into user-facing messages and HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tbourn/go-catalog-backend/internal/repo"
)

var (
	// ErrValidation marks malformed or missing input. Concrete failures are
	// reported as *ValidationError, which matches this sentinel.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates an unknown slug or ID.
	ErrNotFound = errors.New("not found")

	// ErrUnauthenticated is returned when an operation needs a principal and
	// the request has none (or presented an invalid or revoked token).
	ErrUnauthenticated = errors.New("authentication required")

	// ErrPermission is returned when the principal is known but may not
	// perform the operation (non-staff writes, deleting someone else's
	// comment).
	ErrPermission = errors.New("permission denied")

	// ErrConflict is returned when a concurrent write won a unique constraint
	// race the pre-checks could not see.
	ErrConflict = errors.New("conflict")

	// ErrInvalidCredentials is returned by Authenticate and Login for an
	// unknown username or a wrong password. The two cases are not
	// distinguished.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// ValidationError names the offending field and why it was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Is makes errors.Is(err, ErrValidation) true for every *ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// notFound maps repository misses to ErrNotFound with the entity named, and
// passes other errors through.
func notFound(err error, entity, id string) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %q: %w", entity, id, ErrNotFound)
	}
	return err
}

// isNotFound treats repo-level not found sentinels as "not found" in a
// driver-agnostic way.
func isNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
