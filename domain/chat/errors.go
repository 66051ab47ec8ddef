package chat

import (
	"errors"
)

// Error kinds shared by every module. Callers match them with errors.Is.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("room not found")
	ErrForbidden          = errors.New("not a participant of this room")
	ErrValidation         = errors.New("validation failed")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrRateLimited        = errors.New("rate limit exceeded")
)

// Error codes carried across module boundaries and in REST error bodies.
const (
	CodeUnauthorized       = "unauthorized"
	CodeNotFound           = "not_found"
	CodeForbidden          = "forbidden"
	CodeValidation         = "validation_error"
	CodeStorageUnavailable = "storage_unavailable"
	CodeRateLimited        = "rate_limited"
	CodeInternal           = "internal_error"
)

var kinds = []struct {
	code string
	err  error
}{
	{CodeUnauthorized, ErrUnauthorized},
	{CodeNotFound, ErrNotFound},
	{CodeForbidden, ErrForbidden},
	{CodeValidation, ErrValidation},
	{CodeStorageUnavailable, ErrStorageUnavailable},
	{CodeRateLimited, ErrRateLimited},
}

// ErrorCode returns the wire code for err, or "" when err is nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return CodeInternal
}

// CodedError restores an error kind received as a code from another module.
type CodedError struct {
	Kind    error
	Message string
}

func (e *CodedError) Error() string { return e.Message }

func (e *CodedError) Unwrap() error { return e.Kind }

// ErrorFromCode rebuilds an error so that errors.Is matches the original kind.
func ErrorFromCode(code, message string) error {
	if code == "" {
		return nil
	}
	for _, k := range kinds {
		if k.code == code {
			return &CodedError{Kind: k.err, Message: message}
		}
	}
	return errors.New(message)
}
