package errors

import (
	stderrors "errors"
	"fmt"
)

type fundamental struct {
	msg string
	*stack
}

func (f *fundamental) Error() string { return f.msg }

// New returns an error annotated with the call stack at the point it was created.
func New(message string) error {
	return &fundamental{msg: message, stack: callers()}
}

// Errorf formats according to a format specifier and returns it as an error
// annotated with the call stack.
func Errorf(format string, args ...interface{}) error {
	return &fundamental{msg: fmt.Sprintf(format, args...), stack: callers()}
}

type withMessage struct {
	cause error
	msg   string
}

func (w *withMessage) Error() string { return w.msg + ": " + w.cause.Error() }
func (w *withMessage) Unwrap() error { return w.cause }

type withStack struct {
	error
	*stack
}

func (w *withStack) Unwrap() error { return w.error }

// Wrap annotates err with message and the call stack. Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &withStack{&withMessage{cause: err, msg: message}, callers()}
}

// Wrapf annotates err with a formatted message and the call stack.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &withStack{&withMessage{cause: err, msg: fmt.Sprintf(format, args...)}, callers()}
}

// WithStack annotates err with the call stack, without extra message.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &withStack{err, callers()}
}

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// NewWithReport builds the error and submits it to the configured reporters.
func NewWithReport(message string) error {
	err := New(message)
	report(err)
	return err
}

// ErrorfAndReport builds the formatted error and submits it to the configured reporters.
func ErrorfAndReport(format string, args ...interface{}) error {
	err := Errorf(format, args...)
	report(err)
	return err
}

// WrapAndReport wraps err and submits the result to the configured reporters.
// Returns nil if err is nil.
func WrapAndReport(err error, message string) error {
	wrapped := Wrap(err, message)
	report(wrapped)
	return wrapped
}

// WrapfAndReport wraps err with a formatted message and submits the result to
// the configured reporters. Returns nil if err is nil.
func WrapfAndReport(err error, format string, args ...interface{}) error {
	wrapped := Wrapf(err, format, args...)
	report(wrapped)
	return wrapped
}
