// Package apperrors classifies analysis failures so the command can choose an
// exit status and the scheduler can tell a bad setup from a flaky dependency.
package apperrors

import "errors"

// Code is the failure category carried by an *Error.
type Code uint8

const (
	CodeInternal Code = iota
	CodeInvalidInput
	CodeNotFound
	CodeUnavailable
)

var codeNames = [...]string{
	CodeInternal:     "internal",
	CodeInvalidInput: "invalid_input",
	CodeNotFound:     "not_found",
	CodeUnavailable:  "unavailable",
}

func (c Code) String() string {
	if int(c) < len(codeNames) {
		return codeNames[c]
	}
	return "unknown"
}

// ExitStatus follows sysexits.h: EX_USAGE, EX_NOINPUT and EX_UNAVAILABLE.
func (c Code) ExitStatus() int {
	switch c {
	case CodeInvalidInput:
		return 64
	case CodeNotFound:
		return 66
	case CodeUnavailable:
		return 69
	}
	return 1
}

// Error is a failed step of a run, for example "ping mysql" or "customer export telco.csv".
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "":
		return e.Code.String()
	case e.Err == nil:
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New reports a failed step with no underlying cause.
func New(code Code, op string) error {
	return &Error{Code: code, Op: op}
}

// Wrap records err as the cause of a failed step. When err is already
// classified its code is kept and code is ignored.
func Wrap(err error, code Code, op string) error {
	if have, ok := CodeOf(err); ok {
		code = have
	}
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf returns the code of the outermost *Error in err's chain.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return CodeInternal, false
	}
	return e.Code, true
}

// HasCode reports whether err was classified as code.
func HasCode(err error, code Code) bool {
	have, ok := CodeOf(err)
	return ok && have == code
}

// Retryable reports whether a later run could succeed without a config change.
func Retryable(err error) bool {
	return HasCode(err, CodeUnavailable)
}

// ExitStatus is the process exit status for err; 0 for nil, 1 when unclassified.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	code, _ := CodeOf(err)
	return code.ExitStatus()
}
