package binding

import "codeberg.org/mutker/whistlectl/internal/errors"

const (
	ErrInvalidConfig   = errors.ErrorCode("binding_invalid_config")
	ErrDeviceNotFound  = errors.ErrorCode("binding_device_not_found")
	ErrNotRegistered   = errors.ErrorCode("binding_not_registered")
	ErrReadDefinitions = errors.ErrorCode("binding_read_definitions_failed")
)
