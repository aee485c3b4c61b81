// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides typed error handling with rich context for Noema.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies Noema errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeProviderError indicates a completion provider failure
	// (network, timeout, or malformed response).
	CodeProviderError ErrorCode = "PROVIDER_ERROR"

	// CodeToolFailure indicates a tool body failed during execution.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeToolNotFound indicates a requested tool is not registered.
	CodeToolNotFound ErrorCode = "TOOL_NOT_FOUND"

	// CodeInvalidArguments indicates tool arguments failed schema validation.
	CodeInvalidArguments ErrorCode = "INVALID_ARGUMENTS"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeMemoryError indicates a memory subsystem error.
	CodeMemoryError ErrorCode = "MEMORY_ERROR"

	// CodeEmbeddingFailed indicates text could not be embedded.
	CodeEmbeddingFailed ErrorCode = "EMBEDDING_FAILED"

	// CodeDimensionMismatch indicates a vector does not match the
	// collection dimensionality.
	CodeDimensionMismatch ErrorCode = "DIMENSION_MISMATCH"

	// CodeDimensionInvalid indicates a collection dimension <= 0.
	CodeDimensionInvalid ErrorCode = "DIMENSION_INVALID"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeAlreadyExists indicates a resource already exists.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// CodeCollectionFull indicates an insert was rejected by a capacity limit.
	CodeCollectionFull ErrorCode = "COLLECTION_FULL"

	// CodeMaxStepsExceeded indicates the execution loop hit its step budget.
	// Graceful terminal status, never fatal.
	CodeMaxStepsExceeded ErrorCode = "MAX_STEPS_EXCEEDED"

	// CodeTooManyToolCalls indicates a completion requested more tool calls
	// than the per-step cap. Surfaced as a warning, never fatal.
	CodeTooManyToolCalls ErrorCode = "TOO_MANY_TOOL_CALLS"

	// CodeContextLost indicates context was cancelled mid-operation.
	CodeContextLost ErrorCode = "CONTEXT_LOST"
)

// NoemaError is a typed error with rich context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type NoemaError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
}

// Error implements the error interface.
func (e *NoemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *NoemaError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *NoemaError) MarshalJSON() ([]byte, error) {
	type Alias NoemaError
	return json.Marshal(&struct {
		Message     string `json:"message"`
		Code        string `json:"code"`
		Err         string `json:"error,omitempty"`
		Recoverable bool   `json:"recoverable"`
		*Alias
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Err:         fmt.Sprintf("%v", e.Err),
		Recoverable: e.Recoverable,
		Alias:       (*Alias)(e),
	})
}

// New creates a new NoemaError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *NoemaError {
	return &NoemaError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
	}
}

// WithContext adds a key-value pair to the error context.
// Returns the error for method chaining.
func (e *NoemaError) WithContext(key string, value interface{}) *NoemaError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
// Returns the error for method chaining.
func (e *NoemaError) WithAttribute(key, value string) *NoemaError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
// Returns the error for method chaining.
func (e *NoemaError) WithRecoverable(recoverable bool) *NoemaError {
	e.Recoverable = recoverable
	return e
}

// AsNoemaError attempts to convert an error to a NoemaError.
// Returns the error as NoemaError if it is one, or wraps it otherwise.
func AsNoemaError(err error) *NoemaError {
	if err == nil {
		return nil
	}
	if ne, ok := err.(*NoemaError); ok {
		return ne
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the error code of err, or CodeInternal for untyped errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	if ne, ok := err.(*NoemaError); ok {
		return ne.Code
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *NoemaError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}
