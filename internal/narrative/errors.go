package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorClass classifies one failed generation attempt
type ErrorClass string

const (
	ClassOK          ErrorClass = "ok"
	ClassAuth        ErrorClass = "auth"
	ClassNotFound    ErrorClass = "not_found"
	ClassRateLimited ErrorClass = "rate_limited"
	ClassBadRequest  ErrorClass = "bad_request"
	ClassServer      ErrorClass = "server"
	ClassCanceled    ErrorClass = "canceled"
	ClassEmpty       ErrorClass = "empty_response"
	ClassOther       ErrorClass = "other"
)

var (
	// ErrAllModelsFailed is returned when every candidate model failed
	ErrAllModelsFailed = errors.New("all candidate models failed")
	// ErrInvalidKey is returned when the provider rejects the credential
	ErrInvalidKey = errors.New("API key was rejected by the provider")
	// ErrNoModels is returned when the candidate list is empty
	ErrNoModels = errors.New("no candidate models configured")
)

// APIError is a provider error reduced to what the fallback logic needs
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

// Classify maps an attempt error to a class
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassOK
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassCanceled
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return ClassAuth
		case apiErr.StatusCode == http.StatusNotFound:
			return ClassNotFound
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ClassRateLimited
		case apiErr.StatusCode >= 500:
			return ClassServer
		case apiErr.StatusCode == http.StatusBadRequest:
			if strings.Contains(strings.ToLower(apiErr.Message), "model") {
				return ClassNotFound
			}
			return ClassBadRequest
		}
	}

	if errors.Is(err, errEmptyResponse) {
		return ClassEmpty
	}
	return ClassOther
}

// Fatal reports whether trying another model cannot help
func (c ErrorClass) Fatal() bool {
	return c == ClassAuth || c == ClassCanceled
}
