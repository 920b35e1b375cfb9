package extractor

import (
	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/whistle"
)

const (
	ErrUnknownCommand   = errors.ErrorCode("extractor_unknown_command")
	ErrUnknownParameter = errors.ErrorCode("extractor_unknown_parameter")
	ErrInvalidParameter = errors.ErrorCode("extractor_invalid_parameter")
	ErrParseFailure     = whistle.ErrParseFailure
)
