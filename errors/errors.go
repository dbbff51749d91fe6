package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseEncode   Phase = "encode"   // host value to tagged value
	PhaseDecode   Phase = "decode"   // tagged value to host value
	PhaseRegistry Phase = "registry" // function metadata construction
	PhaseInit     Phase = "init"     // instance creation
	PhaseLoad     Phase = "load"     // script unit loading
	PhaseDispatch Phase = "dispatch" // call routing and invocation
	PhaseArena    Phase = "arena"    // parameter list handles
	PhaseEngine   Phase = "engine"   // inside an execution engine
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch  Kind = "type_mismatch"
	KindOutOfBounds   Kind = "out_of_bounds"
	KindStaleHandle   Kind = "stale_handle"
	KindUnregistered  Kind = "unregistered_callback"
	KindInitFailure   Kind = "init_failure"
	KindLoadFailure   Kind = "load_failure"
	KindNotFound      Kind = "not_found"
	KindSignature     Kind = "signature_mismatch"
	KindReentrancy    Kind = "reentrancy_violation"
	KindInvalidInput  Kind = "invalid_input"
	KindInvalidData   Kind = "invalid_data"
	KindNotLoaded     Kind = "not_loaded"
	KindClosed        Kind = "closed"
	KindUnsupported   Kind = "unsupported"
	KindQueueOrder    Kind = "queue_order"
	KindCalleeFailure Kind = "callee_failure"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err is an *Error of the given kind, any phase.
func IsKind(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, expected, actual string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Detail: fmt.Sprintf("expected %s, got %s", expected, actual),
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// StaleHandle creates a stale handle error
func StaleHandle(phase Phase, handle uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindStaleHandle,
		Detail: fmt.Sprintf("handle %d is destroyed or was never issued", handle),
		Value:  handle,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Signature creates a signature mismatch error for a named function
func Signature(name string, detail string) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindSignature,
		Path:   []string{name},
		Detail: detail,
	}
}

// Reentrancy creates a reentrancy violation error
func Reentrancy(name string) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindReentrancy,
		Path:   []string{name},
		Detail: "nested call through an instance already on the call stack",
	}
}

// Load creates a script loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindLoadFailure,
		Detail: detail,
		Cause:  cause,
	}
}

// Init creates an instance initialization error
func Init(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseInit,
		Kind:   KindInitFailure,
		Detail: detail,
		Cause:  cause,
	}
}

// NotLoaded creates an error for operations that need an active script unit
func NotLoaded(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotLoaded,
		Detail: "no script unit is loaded",
	}
}

// Callee wraps an error raised inside the active engine's callee
func Callee(name string, cause error) *Error {
	return &Error{
		Phase: PhaseEngine,
		Kind:  KindCalleeFailure,
		Path:  []string{name},
		Cause: cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
