package crossref

import (
	"errors"
	"fmt"
)

// Common errors returned by the Crossref client.
var (
	// ErrNotFound indicates the work was not found.
	ErrNotFound = errors.New("not found in Crossref")

	// ErrRateLimited indicates the rate limit has been exceeded.
	ErrRateLimited = errors.New("Crossref rate limit exceeded")

	// ErrUnavailable indicates the service could not be reached after the
	// bounded retries. Callers treat this as a soft miss, never a job
	// failure.
	ErrUnavailable = errors.New("Crossref unavailable")

	// ErrInvalidResponse indicates an unexpected API response.
	ErrInvalidResponse = errors.New("invalid response from Crossref")
)

// APIError represents an HTTP-level error from the Crossref API.
type APIError struct {
	StatusCode int
	Message    string
	DOI        string // For context in DOI lookups
}

func (e *APIError) Error() string {
	if e.DOI != "" {
		return fmt.Sprintf("Crossref API error (status %d): %s (doi: %s)", e.StatusCode, e.Message, e.DOI)
	}
	return fmt.Sprintf("Crossref API error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound returns true if the error indicates a missing work.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 404
	}
	return false
}

// IsUnavailable returns true if the error indicates the service could not be
// reached or kept failing after retries.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRateLimited)
}
