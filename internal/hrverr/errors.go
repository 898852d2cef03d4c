// Package hrverr defines the error kinds shared by the analysis pipeline and the
// parity validator.
package hrverr

import (
	"errors"
	"fmt"
)

// #region kinds
var (
	// ErrInvalidParameter marks a bad configuration value (filter cutoffs, sample rate).
	// Fatal for the record being analyzed.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInsufficientData marks input with too few beats or intervals.
	// The record is skipped, not failed.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrNumericDegenerate marks a clamped or undefined numeric result.
	ErrNumericDegenerate = errors.New("numeric degenerate")

	// ErrExternalProcess marks a candidate that crashed, timed out or returned
	// malformed output.
	ErrExternalProcess = errors.New("external process failure")
)
// #endregion kinds

// #region error
// Error carries a kind, the failing operation and a detail message.
type Error struct {
	Kind error
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Op != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind.Error(), e.Msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind.Error())
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Kind }
// #endregion error

// #region constructors
// InvalidParameter builds an ErrInvalidParameter error.
func InvalidParameter(op, format string, args ...any) error {
	return &Error{Kind: ErrInvalidParameter, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// InsufficientData builds an ErrInsufficientData error.
func InsufficientData(op, format string, args ...any) error {
	return &Error{Kind: ErrInsufficientData, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NumericDegenerate builds an ErrNumericDegenerate error.
func NumericDegenerate(op, format string, args ...any) error {
	return &Error{Kind: ErrNumericDegenerate, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// ExternalProcess builds an ErrExternalProcess error.
func ExternalProcess(op, format string, args ...any) error {
	return &Error{Kind: ErrExternalProcess, Op: op, Msg: fmt.Sprintf(format, args...)}
}
// #endregion constructors

// KindOf returns the taxonomy kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, k := range []error{ErrInvalidParameter, ErrInsufficientData, ErrNumericDegenerate, ErrExternalProcess} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName returns a short stable name for err's kind, used in reports and storage.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrInvalidParameter:
		return "invalid_parameter"
	case ErrInsufficientData:
		return "insufficient_data"
	case ErrNumericDegenerate:
		return "numeric_degenerate"
	case ErrExternalProcess:
		return "external_process"
	}
	if err == nil {
		return ""
	}
	return "error"
}

// ByName is the inverse of KindName. It returns nil for "" and for names that
// carry no taxonomy kind.
func ByName(name string) error {
	switch name {
	case "invalid_parameter":
		return ErrInvalidParameter
	case "insufficient_data":
		return ErrInsufficientData
	case "numeric_degenerate":
		return ErrNumericDegenerate
	case "external_process":
		return ErrExternalProcess
	}
	return nil
}
