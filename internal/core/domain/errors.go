package domain

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies why a snapshot fetch failed.
type FetchErrorKind string

const (
	// FetchErrorUnauthenticated means no usable credential; polling should simply skip.
	FetchErrorUnauthenticated FetchErrorKind = "unauthenticated"
	// FetchErrorStoreUnreachable means the authorization store rejected or could not serve the request.
	FetchErrorStoreUnreachable FetchErrorKind = "store_unreachable"
	// FetchErrorTransient covers every other network or server failure.
	FetchErrorTransient FetchErrorKind = "transient"
)

var (
	// ErrUnauthenticated matches fetch failures of kind FetchErrorUnauthenticated.
	ErrUnauthenticated = errors.New("permissions: unauthenticated")
	// ErrStoreUnreachable matches fetch failures of kind FetchErrorStoreUnreachable.
	ErrStoreUnreachable = errors.New("permissions: authorization store unreachable")
	// ErrTransient matches fetch failures of kind FetchErrorTransient.
	ErrTransient = errors.New("permissions: transient failure")
)

// FetchError is the classified failure returned by snapshot fetchers.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

// NewFetchError wraps cause with a classification.
func NewFetchError(kind FetchErrorKind, status int, cause error) *FetchError {
	return &FetchError{Kind: kind, StatusCode: status, Err: cause}
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("permissions fetch failed (%s", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", status %d", e.StatusCode)
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the kind sentinels.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrUnauthenticated:
		return e.Kind == FetchErrorUnauthenticated
	case ErrStoreUnreachable:
		return e.Kind == FetchErrorStoreUnreachable
	case ErrTransient:
		return e.Kind == FetchErrorTransient
	}
	return false
}

// ClassifyFetchError returns the kind of err. Unclassified errors count as transient.
func ClassifyFetchError(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return FetchErrorUnauthenticated
	case errors.Is(err, ErrStoreUnreachable):
		return FetchErrorStoreUnreachable
	default:
		return FetchErrorTransient
	}
}
