package whistle

import "codeberg.org/mutker/whistlectl/internal/errors"

const (
	// Authentication Errors
	ErrInvalidCredentials = errors.ErrorCode("auth_invalid_credentials")

	// Remote Errors
	ErrNonSuccessStatus = errors.ErrorCode("whistle_non_success_status")
	ErrParseFailure     = errors.ErrorCode("whistle_parse_failure")
	ErrTransport        = errors.ErrorCode("whistle_transport_failed")
	ErrInvalidRequest   = errors.ErrorCode("whistle_invalid_request")
)

// StatusError describes a non-200 answer from the API
type StatusError struct {
	Status int
	Path   string
}

// FieldError describes a payload missing a required field
type FieldError struct {
	Path  string
	Field string
}
