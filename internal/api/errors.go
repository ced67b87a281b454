package api

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized indicates the bearer token was rejected (401). The
	// client signs the session out before returning it.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the server refused the action for this identity (403).
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates the requested entity does not exist (404).
	ErrNotFound = errors.New("not found")
)

// ServerError represents a retryable server-side failure (5xx or any
// unexpected status). The store is left untouched when one is returned.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("server error (status %d): %s", e.StatusCode, e.Message)
}
