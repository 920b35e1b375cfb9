package auth

import (
	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/whistle"
)

const (
	ErrInvalidCredentials = whistle.ErrInvalidCredentials
	ErrCredentialsMissing = errors.ErrorCode("auth_credentials_missing")
	ErrCredentialsLocked  = errors.ErrorCode("auth_credentials_locked")
	ErrWaitCanceled       = errors.ErrorCode("auth_wait_canceled")
)
