// Package apperr defines the typed error taxonomy shared by the capture,
// transcription, segmentation and suggestion pipeline.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies a class of failure surfaced to callers and the UI.
type Code string

const (
	PermissionDenied        Code = "PermissionDenied"
	DeviceNotFound          Code = "DeviceNotFound"
	CapabilityUnsupported   Code = "CapabilityUnsupported"
	TranscriptionFailed     Code = "TranscriptionFailed"
	MissingCredential       Code = "MissingCredential"
	SuggestionRequestFailed Code = "SuggestionRequestFailed"
	NoSuggestions           Code = "NoSuggestions"
	StorageUnavailable      Code = "StorageUnavailable"
	InvalidArgument         Code = "InvalidArgument"
	Unknown                 Code = "Unknown"
)

// Error is the structured error type carried through the pipeline.
type Error struct {
	Code       Code              `json:"code"`
	Message    string            `json:"message"`
	StatusCode int               `json:"statusCode,omitempty"` // remote HTTP status, when there was one
	Metadata   map[string]string `json:"metadata,omitempty"`
	Cause      error             `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.StatusCode != 0 {
		s += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// New creates a new Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf creates a new Error with formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an Error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// RequestFailed builds a SuggestionRequestFailed error for a non-success HTTP status.
func RequestFailed(statusCode int, msg string) *Error {
	return &Error{Code: SuggestionRequestFailed, Message: msg, StatusCode: statusCode}
}

// WithMetadata adds metadata to an Error.
func (e *Error) WithMetadata(key, value string) *Error {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// CodeOf returns the code of the first Error in err's chain, or Unknown.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// From returns err as an *Error, wrapping foreign errors with the fallback code.
func From(err error, fallback Code) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, fallback, err.Error())
}
