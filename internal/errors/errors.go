package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig ErrorType = iota
	// Validation errors - malformed input data (tables, change-sets, files)
	ErrorTypeValidation
	// FileSystem errors - file I/O failures
	ErrorTypeFileSystem
	// Internal errors - unexpected internal state
	ErrorTypeInternal
	// UnsupportedQueryLanguage - a query tagged with a dialect nobody speaks
	ErrorTypeUnsupportedQueryLanguage
	// UnsupportedView - an unknown output projection was requested
	ErrorTypeUnsupportedView
	// Precondition - caller passed something the operation cannot accept
	// (logical id where a store id is required, unregistered class, unexecuted operand)
	ErrorTypePrecondition
	// Store - network or transaction failure surfaced from the graph store
	ErrorTypeStore
	// NotFound - zero matches where exactly one was required
	ErrorTypeNotFound
	// Duplicate - more than one match where exactly one was required
	ErrorTypeDuplicate
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - can continue with degraded functionality
	SeverityLow Severity = iota
	// SeverityMedium - should be addressed but not fatal
	SeverityMedium
	// SeverityHigh - significant issue, may impact functionality
	SeverityHigh
	// SeverityCritical - must be addressed, stops execution
	SeverityCritical
)

// Sentinels for errors.Is matching. Matching compares Type only.
var (
	ErrUnsupportedQueryLanguage = &Error{Type: ErrorTypeUnsupportedQueryLanguage, Message: "unsupported query language"}
	ErrUnsupportedView          = &Error{Type: ErrorTypeUnsupportedView, Message: "unsupported view"}
	ErrPrecondition             = &Error{Type: ErrorTypePrecondition, Message: "precondition violated"}
	ErrStore                    = &Error{Type: ErrorTypeStore, Message: "store error"}
	ErrNotFound                 = &Error{Type: ErrorTypeNotFound, Message: "not found"}
	ErrDuplicate                = &Error{Type: ErrorTypeDuplicate, Message: "duplicate"}
	ErrValidation               = &Error{Type: ErrorTypeValidation, Message: "validation failed"}
	ErrConfig                   = &Error{Type: ErrorTypeConfig, Message: "configuration error"}
	ErrFileSystem               = &Error{Type: ErrorTypeFileSystem, Message: "file system error"}
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType
	Severity   Severity
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Is checks if this error matches the target error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop execution
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// Retryable reports whether a caller may retry the failed operation.
// Precondition, dialect and view errors never are.
func (e *Error) Retryable() bool {
	return e.Type == ErrorTypeStore
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		typeString(e.Type),
		e.Message))

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		sb.WriteString("Context:\n")
		for k, v := range e.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeFileSystem:
		return "FILESYSTEM"
	case ErrorTypeInternal:
		return "INTERNAL"
	case ErrorTypeUnsupportedQueryLanguage:
		return "UNSUPPORTED_QUERY_LANGUAGE"
	case ErrorTypeUnsupportedView:
		return "UNSUPPORTED_VIEW"
	case ErrorTypePrecondition:
		return "PRECONDITION"
	case ErrorTypeStore:
		return "STORE"
	case ErrorTypeNotFound:
		return "NOT_FOUND"
	case ErrorTypeDuplicate:
		return "DUPLICATE"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(3),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(3),
	}
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// ValidationErrorf creates a validation error with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

// FileSystemErrorf wraps a filesystem error with formatting
func FileSystemErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeFileSystem, SeverityHigh, fmt.Sprintf(format, args...))
}

// InternalErrorf creates an internal error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// UnsupportedQueryLanguage reports a dialect tag that no adapter or store handles
func UnsupportedQueryLanguage(lang string) *Error {
	return New(ErrorTypeUnsupportedQueryLanguage, SeverityHigh,
		fmt.Sprintf("unsupported query language %q", lang)).WithContext("language", lang)
}

// UnsupportedView reports an unknown output projection
func UnsupportedView(view string) *Error {
	return New(ErrorTypeUnsupportedView, SeverityHigh,
		fmt.Sprintf("unsupported view %q", view)).WithContext("view", view)
}

// PreconditionErrorf creates a precondition violation
func PreconditionErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypePrecondition, SeverityHigh, fmt.Sprintf(format, args...))
}

// StoreError wraps a store failure. The driver error stays reachable through
// Unwrap. A nil err still yields a store error carrying only message.
func StoreError(err error, message string) *Error {
	if err == nil {
		return New(ErrorTypeStore, SeverityHigh, message)
	}
	return Wrap(err, ErrorTypeStore, SeverityHigh, message)
}

// StoreErrorf wraps a store failure with formatting
func StoreErrorf(err error, format string, args ...interface{}) *Error {
	return StoreError(err, fmt.Sprintf(format, args...))
}

// NotFoundErrorf creates a not-found error
func NotFoundErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeNotFound, SeverityMedium, fmt.Sprintf(format, args...))
}

// DuplicateErrorf creates a duplicate-match error
func DuplicateErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeDuplicate, SeverityMedium, fmt.Sprintf(format, args...))
}

// IsFatal checks if an error is fatal (should stop execution)
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsFatal()
	}
	return false
}

// GetSeverity returns the severity of an error
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityLow
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Severity
	}

	return SeverityMedium
}

// GetType returns the type of an error
func GetType(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// Is forwards to the standard library so callers need a single errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

// As forwards to the standard library.
func As(err error, target any) bool { return errors.As(err, target) }

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}
