package scanning

import (
	"errors"
	"fmt"
)

// ErrInvalidResponseFormat is returned when the backend answered but the payload is unusable
var ErrInvalidResponseFormat = errors.New("invalid response format from backend")

// APIError is returned when the agent endpoint answers with a non-2xx status
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: %d - %s", e.Status, e.Body)
}

// EncodingError is returned when a local image cannot be turned into a payload
type EncodingError struct {
	Ref string
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("failed to process image: %v", e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// invalidResponse wraps ErrInvalidResponseFormat with the reason it was rejected
func invalidResponse(reason error) error {
	return fmt.Errorf("%w: %v", ErrInvalidResponseFormat, reason)
}
