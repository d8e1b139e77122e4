// Package errors provides the sentinel error taxonomy for the beamstore
// persistence engine.
//
// Every failure surfaced by the engine wraps one of the sentinels below, so
// callers can classify errors with errors.Is without string matching:
//
//	_, _, err := mgr.Read(req)
//	if errors.Is(err, ErrNotFound) { ... }
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a container, batch or dataset that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIntegrity indicates a container whose root metadata record is
	// missing mandatory fields or whose on-disk structures fail validation.
	// Integrity failures are never auto-repaired.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrUnsupported indicates an operation the target format does not
	// support, such as appending to a correlation container.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrShapeMismatch indicates a producer array whose dimensions do not
	// match the format's configured layout.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrIO indicates an underlying container open/read/write failure.
	ErrIO = errors.New("i/o failure")
)

// Notfoundf returns an error wrapping ErrNotFound with a formatted message.
func Notfoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Integrityf returns an error wrapping ErrIntegrity with a formatted message.
func Integrityf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrIntegrity)...)
}

// Unsupportedf returns an error wrapping ErrUnsupported with a formatted message.
func Unsupportedf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrUnsupported)...)
}

// Shapef returns an error wrapping ErrShapeMismatch with a formatted message.
func Shapef(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrShapeMismatch)...)
}

// IOf returns an error wrapping ErrIO with a formatted message.
func IOf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrIO)...)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsIntegrity reports whether err wraps ErrIntegrity.
func IsIntegrity(err error) bool { return errors.Is(err, ErrIntegrity) }

// IsUnsupported reports whether err wraps ErrUnsupported.
func IsUnsupported(err error) bool { return errors.Is(err, ErrUnsupported) }

// IsShapeMismatch reports whether err wraps ErrShapeMismatch.
func IsShapeMismatch(err error) bool { return errors.Is(err, ErrShapeMismatch) }

// IsIO reports whether err wraps ErrIO.
func IsIO(err error) bool { return errors.Is(err, ErrIO) }
