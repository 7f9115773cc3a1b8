package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the core.
type ErrorKind string

const (
	// KindValidation: malformed zip, coordinates or settings. No I/O happened.
	KindValidation ErrorKind = "validation"
	// KindResolution: geocoding exhausted or calculator unavailable.
	KindResolution ErrorKind = "resolution"
	// KindPartialComputation: one zman failed; the batch continued.
	KindPartialComputation ErrorKind = "partial_computation"
	// KindPersistence: the key-value store could not be read or written.
	KindPersistence ErrorKind = "persistence"
	// KindDeviceLocation: the positioner failed; see DeviceErrorCode.
	KindDeviceLocation ErrorKind = "device_location"
)

// Error is the structured error returned across package boundaries.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, &model.Error{Kind: ...}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NewResolutionError(msg string, err error) *Error {
	return &Error{Kind: KindResolution, Message: msg, Err: err}
}

func NewPersistenceError(msg string, err error) *Error {
	return &Error{Kind: KindPersistence, Message: msg, Err: err}
}

// ErrCalculatorUnavailable is returned when zman computation is requested
// before the calculator became ready or after it failed to load.
var ErrCalculatorUnavailable = &Error{Kind: KindResolution, Message: "zmanim calculator unavailable"}

// KindOf returns the kind of err, or "" if it is not a *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// DeviceErrorCode mirrors the categories of a platform location API.
type DeviceErrorCode int

const (
	DeviceErrUnknown DeviceErrorCode = iota
	DeviceErrPermissionDenied
	DeviceErrPositionUnavailable
	DeviceErrTimeout
)

// Message is the user-facing text for the code.
func (c DeviceErrorCode) Message() string {
	switch c {
	case DeviceErrPermissionDenied:
		return "Location access denied by user"
	case DeviceErrPositionUnavailable:
		return "Location information unavailable"
	case DeviceErrTimeout:
		return "Location request timed out"
	default:
		return "Unknown location error"
	}
}

// DeviceLocationError is the categorized failure of a device fix.
type DeviceLocationError struct {
	Code DeviceErrorCode
	Err  error
}

func (e *DeviceLocationError) Error() string {
	return e.Code.Message()
}

func (e *DeviceLocationError) Unwrap() error { return e.Err }

// AsError converts to the generic structured error.
func (e *DeviceLocationError) AsError() *Error {
	return &Error{Kind: KindDeviceLocation, Message: e.Code.Message(), Err: e}
}
