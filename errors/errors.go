// Package errors provides standardized error handling patterns for
// neurostream components. It includes error classification, standard error
// variables, and helper functions for consistent error wrapping and
// classification across the toolkit.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorAcquisition represents runtime failures inside an acquisition
	// step. They are recovered by default: the stream resets to
	// disconnected and the error is logged rather than propagated.
	ErrorAcquisition ErrorClass = iota
	// ErrorConfiguration represents construction-time errors due to an
	// invalid configuration. They are fatal and never retried.
	ErrorConfiguration
	// ErrorState represents call-time misuse of a component, such as
	// operating on a disconnected stream. Fatal to the call only.
	ErrorState
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorAcquisition:
		return "acquisition"
	case ErrorConfiguration:
		return "configuration"
	case ErrorState:
		return "state"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Lifecycle errors
	ErrNotConnected       = errors.New("stream not connected")
	ErrAlreadyStarted     = errors.New("component already started")
	ErrAlreadyStopped     = errors.New("component already stopped")
	ErrShuttingDown       = errors.New("component is shutting down")
	ErrManualWhilePolling = errors.New("manual acquisition while background polling is active")

	// Connection and transport errors
	ErrNoConnection       = errors.New("no connection available")
	ErrConnectionLost     = errors.New("connection lost")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrSourceDisconnected = errors.New("source stream disconnected")

	// Configuration errors
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidWindow    = errors.New("invalid epoch window")
	ErrInvalidBaseline  = errors.New("invalid baseline window")
	ErrInvalidEventID   = errors.New("invalid event id mapping")
	ErrInvalidCapacity  = errors.New("invalid buffer capacity")
	ErrUnknownChannel   = errors.New("unknown channel")
	ErrBadChannel       = errors.New("channel marked as bad")
	ErrWrongChannelType = errors.New("wrong channel type")
	ErrBufferTooShort   = errors.New("stream buffer shorter than one epoch")
	ErrStreamEpoched    = errors.New("stream has epoch consumers attached")

	// Data errors
	ErrInvalidData   = errors.New("invalid data format")
	ErrParsingFailed = errors.New("parsing failed")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsConfiguration checks if an error is a construction-time configuration error
func IsConfiguration(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorConfiguration
	}

	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrInvalidBaseline) ||
		errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidCapacity) ||
		errors.Is(err, ErrUnknownChannel) ||
		errors.Is(err, ErrBadChannel) ||
		errors.Is(err, ErrWrongChannelType) ||
		errors.Is(err, ErrBufferTooShort)
}

// IsState checks if an error is a call-time misuse error
func IsState(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorState
	}

	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrManualWhilePolling) ||
		errors.Is(err, ErrAlreadyStarted) ||
		errors.Is(err, ErrAlreadyStopped) ||
		errors.Is(err, ErrStreamEpoched)
}

// IsAcquisition checks if an error is a recoverable runtime acquisition error
func IsAcquisition(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorAcquisition
	}

	return errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrSourceDisconnected) ||
		errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrParsingFailed)
}

// Classify returns the error class for an error. Unknown errors default to
// the acquisition class so that runtime surprises fail soft.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorAcquisition
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	if IsConfiguration(err) {
		return ErrorConfiguration
	}
	if IsState(err) {
		return ErrorState
	}
	return ErrorAcquisition
}

// newClassified creates a new classified error.
// This is an internal helper - use WrapConfiguration(), WrapState(), or
// WrapAcquisition() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapConfiguration wraps an error as a configuration error with context
func WrapConfiguration(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorConfiguration, wrappedErr, component, method, wrappedErr.Error())
}

// WrapState wraps an error as a state error with context
func WrapState(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorState, wrappedErr, component, method, wrappedErr.Error())
}

// WrapAcquisition wraps an error as an acquisition error with context
func WrapAcquisition(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorAcquisition, wrappedErr, component, method, wrappedErr.Error())
}
