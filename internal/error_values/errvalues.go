package errorvalues

import (
	"errors"
	"fmt"
)

var (
	// Remote store
	ErrPermission      = errors.New("permission denied by remote store")
	ErrTransient       = errors.New("remote store unavailable")
	ErrProfileNotFound = errors.New("profile doesn't exist")
	ErrLogNotFound     = errors.New("drink log doesn't exist")

	// Authentication
	ErrNetwork             = fmt.Errorf("network failure: %w", ErrTransient)
	ErrUserNotFound        = errors.New("user doesn't exists")
	ErrEmailInUse          = errors.New("email is already in use")
	ErrInvalidCredential   = errors.New("wrong email or password")
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrWeakPassword        = errors.New("password is too weak")
	ErrRequiresRecentLogin = errors.New("operation requires a recent login")
	ErrInvalidToken        = errors.New("invalid session token")

	// Engine
	ErrNotSignedIn  = errors.New("not signed in")
	ErrNoProfile    = errors.New("no current profile")
	ErrInvalidLog   = errors.New("invalid drink log")
	ErrInvalidField = errors.New("invalid profile field")
)

type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPermission
	KindTransient
	KindValidation
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermission:
		return "permission"
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Kind sorts an error into the taxonomy callers branch on.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrPermission):
		return KindPermission
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, ErrInvalidCredential),
		errors.Is(err, ErrInvalidEmail),
		errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrEmailInUse),
		errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrRequiresRecentLogin),
		errors.Is(err, ErrInvalidLog),
		errors.Is(err, ErrInvalidField),
		errors.Is(err, ErrLogNotFound):
		return KindValidation
	case errors.Is(err, ErrNoProfile), errors.Is(err, ErrNotSignedIn):
		return KindFatal
	default:
		return KindUnknown
	}
}
