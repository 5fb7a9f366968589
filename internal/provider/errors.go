package provider

import (
	"errors"
	"fmt"
)

// Errors for request preconditions. These are configuration failures: the
// request was never sent.
var (
	ErrMissingAPIKey    = errors.New("no API key configured")
	ErrInvalidMeetingID = errors.New("invalid meeting id: expected platform and native meeting id")
)

// Category classifies a non-success provider response.
type Category int

const (
	// CategoryGeneric - any failure not covered by a more specific category.
	CategoryGeneric Category = iota
	// CategoryAuth - the API key was rejected (401).
	CategoryAuth
	// CategoryRateLimit - the provider throttled the request (429).
	CategoryRateLimit
	// CategoryNotFound - the meeting or bot does not exist (404).
	CategoryNotFound
	// CategoryConflict - a bot is already running for the meeting (409).
	CategoryConflict
)

// String returns the string representation of the category.
func (c Category) String() string {
	switch c {
	case CategoryAuth:
		return "AUTHENTICATION"
	case CategoryRateLimit:
		return "RATE_LIMIT"
	case CategoryNotFound:
		return "NOT_FOUND"
	case CategoryConflict:
		return "CONFLICT"
	case CategoryGeneric:
		return "GENERIC"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", c)
	}
}

// APIError is a non-success response from the provider.
type APIError struct {
	StatusCode int
	Category   Category
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("provider API error (%s, status %d): %s", e.Category, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("provider API error (%s, status %d)", e.Category, e.StatusCode)
}

func categorize(status int) Category {
	switch status {
	case 401:
		return CategoryAuth
	case 429:
		return CategoryRateLimit
	case 404:
		return CategoryNotFound
	case 409:
		return CategoryConflict
	default:
		return CategoryGeneric
	}
}

// IsCategory reports whether err is an APIError of the given category.
func IsCategory(err error, c Category) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Category == c
}
