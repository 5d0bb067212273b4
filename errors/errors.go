// Package errors provides standardized error handling for FloorLink
// components. It includes error classification, standard error variables,
// and helper functions for consistent error wrapping across the system.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorAuthentication represents credential failures at connect time.
	// Fatal to the attempted connection, never to the process.
	ErrorAuthentication ErrorClass = iota
	// ErrorProtocol represents malformed or unknown inbound messages.
	// Reported to the sender; the connection stays open.
	ErrorProtocol
	// ErrorValidation represents well-formed commands with missing or
	// invalid fields. Reported to the sender with a specific code.
	ErrorValidation
	// ErrorDelivery represents transport write failures to a specific
	// connection. Recovered locally via the connection's error counter.
	ErrorDelivery
	// ErrorInternal represents unexpected faults in broadcast or index
	// logic. Logged, never propagated to unrelated connections.
	ErrorInternal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorAuthentication:
		return "authentication"
	case ErrorProtocol:
		return "protocol"
	case ErrorValidation:
		return "validation"
	case ErrorDelivery:
		return "delivery"
	case ErrorInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Authentication errors
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrVerifierFailure   = errors.New("token verifier failure")

	// Connection lifecycle errors
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrAlreadyStarted     = errors.New("component already started")
	ErrNotStarted         = errors.New("component not started")
	ErrShuttingDown       = errors.New("component is shutting down")

	// Protocol and validation errors
	ErrInvalidJSON             = errors.New("payload is not valid JSON")
	ErrUnknownMessageType      = errors.New("unknown message type")
	ErrMissingSubscriptionType = errors.New("missing subscription type")
	ErrMissingTargetID         = errors.New("missing target id")
	ErrUnknownSubscriptionType = errors.New("unknown subscription type")

	// Delivery errors
	ErrQueueFull    = errors.New("outbound queue full")
	ErrWriteFailed  = errors.New("transport write failed")
	ErrWriteTimeout = errors.New("transport write timeout")
	ErrQueueClosed  = errors.New("outbound queue closed")
	ErrRateLimited  = errors.New("rate limited")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
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

// Is reports whether any error in the chain matches target
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in the chain matching target
func As(err error, target any) bool { return errors.As(err, target) }

// New returns an error with the supplied text
func New(text string) error { return errors.New(text) }

// ClassOf returns the error class for an error. Unclassified errors
// default to internal.
func ClassOf(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	switch {
	case errors.Is(err, ErrMissingCredential),
		errors.Is(err, ErrInvalidCredential):
		return ErrorAuthentication
	case errors.Is(err, ErrInvalidJSON),
		errors.Is(err, ErrUnknownMessageType):
		return ErrorProtocol
	case errors.Is(err, ErrMissingSubscriptionType),
		errors.Is(err, ErrMissingTargetID),
		errors.Is(err, ErrUnknownSubscriptionType):
		return ErrorValidation
	case errors.Is(err, ErrQueueFull),
		errors.Is(err, ErrWriteFailed),
		errors.Is(err, ErrWriteTimeout):
		return ErrorDelivery
	}
	return ErrorInternal
}

// IsAuthentication checks if an error is an authentication failure
func IsAuthentication(err error) bool {
	return err != nil && ClassOf(err) == ErrorAuthentication
}

// IsProtocol checks if an error is a protocol violation
func IsProtocol(err error) bool {
	return err != nil && ClassOf(err) == ErrorProtocol
}

// IsValidation checks if an error is a validation failure
func IsValidation(err error) bool {
	return err != nil && ClassOf(err) == ErrorValidation
}

// IsDelivery checks if an error is a delivery failure
func IsDelivery(err error) bool {
	return err != nil && ClassOf(err) == ErrorDelivery
}

// newClassified creates a new classified error.
// Internal helper - use the Wrap* functions instead.
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

// WrapAuthentication wraps an error as an authentication failure with context
func WrapAuthentication(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorAuthentication, wrappedErr, component, method, wrappedErr.Error())
}

// WrapProtocol wraps an error as a protocol violation with context
func WrapProtocol(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorProtocol, wrappedErr, component, method, wrappedErr.Error())
}

// WrapValidation wraps an error as a validation failure with context
func WrapValidation(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorValidation, wrappedErr, component, method, wrappedErr.Error())
}

// WrapDelivery wraps an error as a delivery failure with context
func WrapDelivery(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorDelivery, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInternal wraps an error as an internal fault with context
func WrapInternal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInternal, wrappedErr, component, method, wrappedErr.Error())
}
