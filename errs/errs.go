// Package errs holds the error taxonomy shared by every module. Services wrap
// these sentinels with %w; handlers match them with errors.Is and turn them
// into user facing notices.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrAccessDenied        = errors.New("access denied")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrPendingApproval     = errors.New("account pending approval")
	ErrDuplicateUsername   = errors.New("username already taken")
	ErrNotFound            = errors.New("not found")
	ErrHasDependentContent = errors.New("user has dependent content")
	ErrSelfDeletion        = errors.New("cannot delete own account")
	ErrMissingField        = errors.New("missing required field")
	ErrUploadTooLarge      = errors.New("upload too large")
)

// DependentContentError blocks deleting a user who still authors posts.
type DependentContentError struct {
	Username string
	Posts    int64
}

func (e *DependentContentError) Error() string {
	return fmt.Sprintf("Cannot delete user %s because they have %d post(s).", e.Username, e.Posts)
}

func (e *DependentContentError) Is(target error) bool {
	return target == ErrHasDependentContent
}

// Notice returns the message shown to the visitor for a known error, or a
// generic one for anything else.
func Notice(err error) string {
	var dependent *DependentContentError
	switch {
	case errors.As(err, &dependent):
		return dependent.Error()
	case errors.Is(err, ErrAccessDenied):
		return "Access denied. Admin privileges required."
	case errors.Is(err, ErrInvalidCredentials):
		return "Login Unsuccessful. Please check username and password"
	case errors.Is(err, ErrPendingApproval):
		return "Your account is pending approval."
	case errors.Is(err, ErrDuplicateUsername):
		return "That username is already taken. Please choose another one."
	case errors.Is(err, ErrNotFound):
		return "The requested item could not be found."
	case errors.Is(err, ErrHasDependentContent):
		return "Cannot delete a user who still has posts."
	case errors.Is(err, ErrSelfDeletion):
		return "You cannot delete your own account."
	case errors.Is(err, ErrMissingField):
		return "Please fill in all required fields."
	case errors.Is(err, ErrUploadTooLarge):
		return "The uploaded image is too large."
	default:
		return "Something went wrong. Please try again."
	}
}
