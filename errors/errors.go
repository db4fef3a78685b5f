package errors

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

var (
	// ErrUnauthorized is returned whenever a caller does not hold the
	// permission required for the requested operation. It is never safe
	// to retry.
	ErrUnauthorized = Register(2, "unauthorized")

	// ErrNotFound is returned when a requested entity (proposal,
	// registry, transaction) does not exist.
	ErrNotFound = Register(3, "not found")

	// ErrDuplicate is returned when there is a record already that has
	// the same unique key/index.
	ErrDuplicate = Register(4, "duplicate")

	// ErrState is returned when an entity is in the wrong state for the
	// requested transition. Callers must re-read the state and decide.
	ErrState = Register(5, "invalid state")

	// ErrConfig is returned on invalid configuration, for example a
	// threshold that exceeds the member count. Fatal at construction
	// time, never retried.
	ErrConfig = Register(6, "invalid configuration")

	// ErrInput stands for general input problems indication.
	ErrInput = Register(7, "invalid input")

	// ErrEmpty is returned when a value fails a not-empty assertion.
	ErrEmpty = Register(8, "value is empty")

	// ErrSigning is returned when a signing backend refused or failed
	// to produce a signature, including session establishment failures.
	ErrSigning = Register(9, "signing failed")

	// ErrSubmission is returned when the ledger permanently rejected a
	// submitted transaction. The submitting operation must not be
	// retried without operator intervention.
	ErrSubmission = Register(10, "submission rejected")

	// ErrNetwork is returned on transport level failures. Transient,
	// safe to retry.
	ErrNetwork = Register(11, "network")

	// ErrTimeout is returned when an operation did not complete in
	// time. Transient, safe to retry.
	ErrTimeout = Register(12, "timeout")

	// ErrOverflow is returned when a computation cannot be completed
	// because the result value exceeds the type.
	ErrOverflow = Register(13, "overflow")

	// ErrHuman is returned when the application reaches a code path
	// which should not ever be reached if the code was written as
	// expected.
	ErrHuman = Register(14, "coding error")

	// ErrPanic is only set when we recover from a panic, so we know to
	// redact potentially sensitive system info.
	ErrPanic = Register(111222, "panic")
)

// Register returns an error instance that should be used as the base for
// creating error instances during runtime.
//
// Popular root errors are declared in this package, but extensions may want
// to declare custom codes. This function ensures that no error code is used
// twice. Attempt to reuse an error code results in panic.
//
// Use this function only during a program startup phase.
func Register(code uint32, description string) *Error {
	if e, ok := usedCodes[code]; ok {
		panic(fmt.Sprintf("error with code %d is already registered: %q", code, e.desc))
	}
	err := &Error{
		code: code,
		desc: description,
	}
	usedCodes[err.code] = err
	return err
}

// usedCodes is keeping track of used codes to ensure their uniqueness. No
// two error instances should share the same error code.
var usedCodes = map[uint32]*Error{
	1: nil, // Error code 1 is restricted for non-registered errors and must not be used.
}

// Error represents a root error.
//
// Each error instance created during the runtime should wrap one of the
// declared root errors. This allows error tests and returning all errors to
// the client in a safe manner.
//
// If an extension has to declare a custom root error, always use Register
// function to ensure error code uniqueness.
type Error struct {
	code uint32
	desc string
}

func (e Error) Error() string {
	return e.desc
}

// Code returns the error class identifier of this error.
func (e Error) Code() uint32 {
	return e.code
}

// New returns a new error. Returned instance is having the root cause set
// to this error. Below two lines are equal
//   e.New("my description")
//   Wrap(e, "my description")
func (e *Error) New(description string) error {
	return Wrap(e, description)
}

// Newf is basically New with formatting capabilities.
func (e *Error) Newf(description string, args ...interface{}) error {
	return e.New(fmt.Sprintf(description, args...))
}

// Is checks if given error instance is of a given kind/type. This involves
// unwrapping given error using the Cause method if available.
func (kind *Error) Is(err error) bool {
	// Reflect usage is necessary to correctly compare with
	// a nil implementation of an error.
	if kind == nil {
		if err == nil {
			return true
		}
		return reflect.ValueOf(err).IsNil()
	}

	for {
		if err == kind {
			return true
		}

		if c, ok := err.(causer); ok {
			err = c.Cause()
		} else {
			return false
		}
	}
}

// IsTransient returns true if the given failure is temporary and the
// operation that produced it is safe to retry. This is the transport level
// classification, permission and state errors are never transient.
func IsTransient(err error) bool {
	return ErrNetwork.Is(err) || ErrTimeout.Is(err)
}

// Wrap extends given error with an additional information.
//
// If the wrapped error does not provide a Code method (ie. stdlib errors),
// it will be labeled as internal error.
//
// If err is nil, this returns nil, avoiding the need for an if statement
// when wrapping a error returned at the end of a function.
func Wrap(err error, description string) error {
	if err == nil {
		return nil
	}

	// If this error does not carry the stacktrace information yet,
	// attach one. This should be done only once per error at the lowest
	// frame possible (most inner wrap).
	if stackTrace(err) == nil {
		err = errors.WithStack(err)
	}

	return &wrappedError{
		parent: err,
		msg:    description,
	}
}

// Wrapf extends given error with an additional information.
//
// This function works like Wrap function with additional functionality of
// formatting the input as specified.
func Wrapf(err error, format string, args ...interface{}) error {
	desc := fmt.Sprintf(format, args...)
	return Wrap(err, desc)
}

type wrappedError struct {
	// This error layer description.
	msg string
	// The underlying error that triggered this one.
	parent error
}

func (e *wrappedError) Error() string {
	return fmt.Sprintf("%s: %s", e.msg, e.parent.Error())
}

func (e *wrappedError) Cause() error {
	return e.parent
}

// Code returns the code of the deepest registered error in the chain, or
// the internal error code if no registered error is found.
func Code(err error) uint32 {
	if err == nil {
		return 0
	}
	for {
		if c, ok := err.(coder); ok {
			return c.Code()
		}
		if c, ok := err.(causer); ok {
			err = c.Cause()
		} else {
			return 1
		}
	}
}

// Recover captures a panic and stop its propagation. If panic happens it is
// transformed into a ErrPanic instance and assigned to given error. Call
// this function using defer in order to work as expected.
func Recover(err *error) {
	if r := recover(); r != nil {
		*err = Wrapf(ErrPanic, "%v", r)
	}
}

// WithType is a helper to augment an error with a corresponding type
// message.
func WithType(err error, obj interface{}) error {
	return Wrap(err, fmt.Sprintf("%T", obj))
}

// causer is an interface implemented by an error that supports wrapping.
// Use it to test if an error wraps another error instance.
type causer interface {
	Cause() error
}

type coder interface {
	Code() uint32
}

// stackTracer is the interface attached by pkg/errors WithStack.
type stackTracer interface {
	error
	StackTrace() errors.StackTrace
}

func stackTrace(err error) errors.StackTrace {
	for {
		if st, ok := err.(stackTracer); ok {
			return st.StackTrace()
		}
		if c, ok := err.(causer); ok {
			err = c.Cause()
		} else {
			return nil
		}
	}
}
