package recordstore

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when a record or collection does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnauthorized is returned when the session is missing, expired or refused.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUnavailable covers transport failures and server errors.
	ErrUnavailable = errors.New("store unavailable")
	// ErrRejected is returned when the store refuses a write as invalid.
	ErrRejected = errors.New("record rejected")
)

// StatusError is a non-successful HTTP response from a remote store.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("record store responded %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("record store responded %d %s: %s", e.Status, http.StatusText(e.Status), e.Body)
}

// Unwrap maps the status onto the package sentinels.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusBadRequest:
		return ErrRejected
	default:
		return ErrUnavailable
	}
}
