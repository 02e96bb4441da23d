// Package fault defines the closed error taxonomy shared by every layer
// of the client. Errors cross package boundaries as *Fault values so
// callers can branch on the code without string matching.
package fault

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeAgentUnavailable    Code = "agent_unavailable"
	CodeAuthorizationDenied Code = "authorization_denied"
	CodeValidation          Code = "validation_error"
	CodeRejected            Code = "rejected"
	CodeNetwork             Code = "network_error"
	CodeProtocol            Code = "protocol_error"
	CodeOperationInProgress Code = "operation_in_progress"
	CodePartialReadFailure  Code = "partial_read_failure"
	CodeTimeout             Code = "timeout"
	CodeConfiguration       Code = "configuration_error"
)

type Fault struct {
	Code   Code
	Field  string // set for validation faults only
	Reason string
	Err    error
}

func (f *Fault) Error() string {
	switch {
	case f.Field != "" && f.Err != nil:
		return fmt.Sprintf("%s (%s): %s: %v", f.Code, f.Field, f.Reason, f.Err)
	case f.Field != "":
		return fmt.Sprintf("%s (%s): %s", f.Code, f.Field, f.Reason)
	case f.Err != nil && f.Reason != "":
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Reason, f.Err)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Code, f.Err)
	default:
		return fmt.Sprintf("%s: %s", f.Code, f.Reason)
	}
}

func (f *Fault) Unwrap() error {
	return f.Err
}

func New(code Code, reason string) *Fault {
	return &Fault{Code: code, Reason: reason}
}

func Wrap(code Code, reason string, err error) *Fault {
	return &Fault{Code: code, Reason: reason, Err: err}
}

// Validation builds a field-scoped validation fault. The field name is
// the input field as it appears on the request payload.
func Validation(field, reason string) *Fault {
	return &Fault{Code: CodeValidation, Field: field, Reason: reason}
}

// CodeOf extracts the taxonomy code from err, unwrapping as needed.
func CodeOf(err error) (Code, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code, true
	}
	return "", false
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}
