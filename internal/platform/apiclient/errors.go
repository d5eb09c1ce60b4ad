package apiclient

import (
	"errors"
	"fmt"
)

// Kind classifies a failed remote call.
type Kind int

const (
	KindUnknown Kind = iota
	// KindAuthentication: login or registration was rejected.
	KindAuthentication
	// KindAuthorizationExpired: the credential is missing, expired or was
	// rejected. The session has already been ended when this is returned.
	KindAuthorizationExpired
	// KindFetch: a list or detail read failed for a reason other than 404.
	KindFetch
	// KindNotFound: a detail read returned 404.
	KindNotFound
	// KindSubmission: creating a patient or an authorization request failed.
	KindSubmission
)

var (
	ErrAuthentication       = errors.New("authentication failed")
	ErrAuthorizationExpired = errors.New("authorization expired")
	ErrFetch                = errors.New("fetch failed")
	ErrNotFound             = errors.New("not found")
	ErrSubmission           = errors.New("submission failed")

	// ErrNoCredential means the call was not attempted because the session
	// holds no credential. It is reported with KindAuthorizationExpired.
	ErrNoCredential = errors.New("no credential")
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorizationExpired:
		return "authorization_expired"
	case KindFetch:
		return "fetch"
	case KindNotFound:
		return "not_found"
	case KindSubmission:
		return "submission"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindAuthentication:
		return ErrAuthentication
	case KindAuthorizationExpired:
		return ErrAuthorizationExpired
	case KindFetch:
		return ErrFetch
	case KindNotFound:
		return ErrNotFound
	case KindSubmission:
		return ErrSubmission
	default:
		return nil
	}
}

// Error is returned by every Client method. errors.Is matches both the
// sentinel for Kind and the underlying cause.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the Kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
