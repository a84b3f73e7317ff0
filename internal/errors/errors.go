// Package errors provides structured error types for sceneforge with
// category, code and component context. Build failures never cross the
// backend boundary as Go errors; they are materialized into BuildResult
// diagnostics. This package serves internal wrapping and log/CLI reporting.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeBuild    ErrorType = "build"
	ErrorTypeNetwork  ErrorType = "network"
	ErrorTypeWorker   ErrorType = "worker"
	ErrorTypeSandbox  ErrorType = "sandbox"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeInternal ErrorType = "internal"
)

// Error codes for the failure taxonomy.
const (
	// ErrCodeInitTimeout: the sandbox or worker never became ready.
	ErrCodeInitTimeout = "INIT_TIMEOUT"
	// ErrCodeWorkerUnavailable: native backend selected but not running.
	ErrCodeWorkerUnavailable = "WORKER_UNAVAILABLE"
	// ErrCodeCompileTimeout: the hard build-call ceiling was exceeded.
	ErrCodeCompileTimeout = "COMPILE_TIMEOUT"
	// ErrCodeCompileError: the compiler reported diagnostics.
	ErrCodeCompileError = "COMPILE_ERROR"
	// ErrCodeNetworkUnavailable: no compiler source reachable; triggers the
	// fallback transform, not a hard error.
	ErrCodeNetworkUnavailable = "NETWORK_UNAVAILABLE"
	// ErrCodeServiceUnavailable: no backend could be constructed at all.
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	// ErrCodeProtocol: a malformed or unmatched worker protocol message.
	ErrCodeProtocol = "PROTOCOL"
)

// SceneforgeError is a structured error type with context.
type SceneforgeError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Component   string
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *SceneforgeError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

// Unwrap returns the underlying cause error.
func (e *SceneforgeError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by type and code.
func (e *SceneforgeError) Is(target error) bool {
	var t *SceneforgeError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// WithContext adds context information to the error.
func (e *SceneforgeError) WithContext(key string, value interface{}) *SceneforgeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithComponent tags the error with the originating component.
func (e *SceneforgeError) WithComponent(component string) *SceneforgeError {
	e.Component = component
	return e
}

// New creates a SceneforgeError without a cause.
func New(errType ErrorType, code, message string) *SceneforgeError {
	return &SceneforgeError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Recoverable: errType == ErrorTypeBuild || errType == ErrorTypeNetwork,
	}
}

// Wrap wraps an error with additional context, creating a SceneforgeError if
// the input is not already one.
func Wrap(err error, errType ErrorType, code, message string) *SceneforgeError {
	if err == nil {
		return nil
	}

	var se *SceneforgeError
	if errors.As(err, &se) {
		return &SceneforgeError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       se,
			Component:   se.Component,
			Context:     se.Context,
			Recoverable: se.Recoverable,
		}
	}

	return &SceneforgeError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeBuild || errType == ErrorTypeNetwork,
	}
}

// WrapBuild wraps an error as a build error with component context.
func WrapBuild(err error, code, message, component string) *SceneforgeError {
	se := Wrap(err, ErrorTypeBuild, code, message)
	if se != nil {
		se.Component = component
	}
	return se
}

// WrapWorker wraps an error as a native-worker error.
func WrapWorker(err error, code, message string) *SceneforgeError {
	return Wrap(err, ErrorTypeWorker, code, message)
}

// WrapSandbox wraps an error as a sandbox-host error.
func WrapSandbox(err error, code, message string) *SceneforgeError {
	return Wrap(err, ErrorTypeSandbox, code, message)
}

// WrapConfig wraps an error as a configuration error (non-recoverable).
func WrapConfig(err error, code, message string) *SceneforgeError {
	se := Wrap(err, ErrorTypeConfig, code, message)
	if se != nil {
		se.Recoverable = false
	}
	return se
}
