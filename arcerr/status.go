// Package arcerr defines the single unified status kind returned across the
// page, sub-table, WAL, and transaction layers.
//
// The engine deliberately does not scatter per-package sentinel errors the
// way a typical Go library would (one errors.New per failure mode); every
// layer speaks the same small vocabulary of outcomes so a caller three
// layers up can inspect a Status without importing three packages' error
// types.
package arcerr

import "fmt"

// Kind is one of the outcomes a Status can carry.
type Kind uint8

const (
	// Ok indicates success.
	Ok Kind = iota
	// NotFound indicates the key is absent, or tombstoned, at the
	// requested read timestamp.
	NotFound
	// Conflict indicates an intent from another transaction is present.
	Conflict
	// Serialization indicates a write below the latest committed
	// timestamp was rejected by a write-write safety check.
	Serialization
	// Abort indicates a transaction aborted during commit.
	Abort
	// Commit indicates a transaction committed.
	Commit
	// Io indicates a durable-store I/O failure.
	Io
	// Err is a generic failure, e.g. during construction or open.
	Err
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "Ok"
	case NotFound:
		return "NotFound"
	case Conflict:
		return "Conflict"
	case Serialization:
		return "Serialization"
	case Abort:
		return "Abort"
	case Commit:
		return "Commit"
	case Io:
		return "Io"
	case Err:
		return "Err"
	default:
		return "Unknown"
	}
}

// Status is the value every fallible operation in this module returns.
type Status struct {
	kind    Kind
	msg     string
	wrapped error
}

// New constructs a Status of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Status {
	return &Status{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Io/Err-kind Status that carries an underlying error.
func Wrap(kind Kind, err error) *Status {
	if err == nil {
		return nil
	}
	return &Status{kind: kind, msg: err.Error(), wrapped: err}
}

// OkStatus is the shared success value.
var OkStatus = &Status{kind: Ok}

// Kind returns the status's kind.
func (s *Status) Kind() Kind {
	if s == nil {
		return Ok
	}
	return s.kind
}

// Ok reports whether the status represents success.
func (s *Status) Ok() bool {
	return s.Kind() == Ok
}

// IsNotFound reports whether the status is NotFound.
func (s *Status) IsNotFound() bool {
	return s.Kind() == NotFound
}

// Is reports whether the status carries the given kind.
func (s *Status) Is(kind Kind) bool {
	return s.Kind() == kind
}

// Error implements the error interface.
func (s *Status) Error() string {
	if s == nil {
		return "Ok"
	}
	if s.msg == "" {
		return s.kind.String()
	}
	return fmt.Sprintf("%s: %s", s.kind, s.msg)
}

// Unwrap supports errors.Is/errors.As against a wrapped cause.
func (s *Status) Unwrap() error {
	if s == nil {
		return nil
	}
	return s.wrapped
}
