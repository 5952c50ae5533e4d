package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for user-facing handling.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindTransport
	KindToolExecution
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindToolExecution:
		return "tool execution"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is a classified error. Msg is safe to show to the user.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports bad user input (empty prompt, oversized attachment...).
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Configuration reports missing or invalid settings.
func Configuration(op, format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Transport wraps a network, timeout or HTTP status failure.
func Transport(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Msg: "backend request failed", Err: err}
}

// ToolExecution wraps a failure inside a tool handler.
func ToolExecution(op string, err error) *Error {
	return &Error{Kind: KindToolExecution, Op: op, Msg: "tool failed", Err: err}
}

// KindOf returns the kind of the first classified error in err's chain.
// Errors from other packages can take part by implementing Kind() Kind.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var k interface{ Kind() Kind }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the user-facing text for err.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) && (fe.Kind == KindValidation || fe.Kind == KindConfiguration) {
		return fe.Msg
	}
	return err.Error()
}
