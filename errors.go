package exposuregraph

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for common failure conditions.
// These errors can be used with errors.Is() for error checking.
var (
	// ErrQueryRejected indicates a query failed guard validation and was
	// never sent to the graph store.
	ErrQueryRejected = errors.New("query rejected by guard")

	// ErrUntranslatable indicates a natural-language question could not be
	// turned into a valid graph query within the retry budget.
	ErrUntranslatable = errors.New("question is untranslatable")

	// ErrStoreUnavailable indicates the graph store could not be reached.
	ErrStoreUnavailable = errors.New("graph store unavailable")

	// ErrUnauthorizedTarget indicates a scan target is not on the
	// authorized allow-list. This is a policy rejection, not a fault.
	ErrUnauthorizedTarget = errors.New("target not authorized for scanning")

	// ErrToolNotFound indicates the requested gateway tool does not exist
	// in the catalogue.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidConfig indicates the provided configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Error kinds categorize errors by their type.
const (
	// KindValidation marks queries that violate the read-only, row-cap, or
	// timeout contract. Always raised before execution, never partially applied.
	KindValidation = "validation"

	// KindTranslation marks failures to turn a question into a query:
	// model unreachable, unparseable output, or exhausted retry budget.
	KindTranslation = "translation"

	// KindExecution marks failures while running a validated query:
	// store unreachable or a store-level fault.
	KindExecution = "execution"

	// KindConfiguration marks policy rejections such as an unauthorized
	// scan target or a malformed configuration file.
	KindConfiguration = "configuration"

	// KindTimeout marks operations that exceeded their deadline.
	KindTimeout = "timeout"

	// KindNetwork marks errors related to network operations.
	KindNetwork = "network"

	// KindNotFound marks errors where a resource was not found.
	KindNotFound = "not_found"

	// KindInternal marks internal errors.
	KindInternal = "internal"
)

// Error is a structured error type that wraps underlying errors with
// additional context about the operation that failed and the category of error.
//
// Error implements the error interface and supports error unwrapping,
// making it compatible with errors.Is() and errors.As().
//
// Example usage:
//
//	err := &Error{
//		Op:   "Guard.Validate",
//		Kind: KindValidation,
//		Err:  ErrQueryRejected,
//	}
type Error struct {
	// Op is the operation that failed (e.g., "Store.RunRead", "Executor.Answer").
	Op string

	// Kind categorizes the error (e.g., KindValidation, KindExecution).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional context about the error (optional).
	// This can include query text, target names, or other debugging information.
	Context map[string]any
}

// Error implements the error interface, returning a formatted error message
// that includes the operation, kind, and underlying error.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exposuregraph: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("exposuregraph: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("exposuregraph: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and errors.As()
// to work correctly with wrapped errors.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching for Error, allowing comparison based on
// the underlying error or a kind-only target Error.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a new Error with the provided context added.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	if newErr.Context == nil {
		newErr.Context = make(map[string]any)
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// KindOf returns the kind of an error if it is (or wraps) an *Error,
// or KindInternal otherwise. Callers use this to translate failures into
// user-visible reasons without inspecting error strings.
func KindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// NewValidationError creates a new Error with KindValidation.
func NewValidationError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindValidation,
		Err:  err,
	}
}

// NewTranslationError creates a new Error with KindTranslation.
func NewTranslationError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindTranslation,
		Err:  err,
	}
}

// NewExecutionError creates a new Error with KindExecution.
func NewExecutionError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindExecution,
		Err:  err,
	}
}

// NewConfigurationError creates a new Error with KindConfiguration.
func NewConfigurationError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindConfiguration,
		Err:  err,
	}
}

// NewTimeoutError creates a new Error with KindTimeout.
func NewTimeoutError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindTimeout,
		Err:  err,
	}
}

// NewNetworkError creates a new Error with KindNetwork.
func NewNetworkError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindNetwork,
		Err:  err,
	}
}

// NewNotFoundError creates a new Error with KindNotFound.
func NewNotFoundError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindNotFound,
		Err:  err,
	}
}

// NewInternalError creates a new Error with KindInternal.
func NewInternalError(op string, err error) *Error {
	return &Error{
		Op:   op,
		Kind: KindInternal,
		Err:  err,
	}
}

// CloseWithLog attempts to close the provided resource and logs any error
// at warning level. This is intended for use in defer statements to ensure
// cleanup errors are not silently ignored.
//
// The name parameter should describe the resource being closed (e.g.,
// "graph store", "redis connection"). If logger is nil, slog.Default() is used.
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource",
			"resource", name,
			"error", err)
	}
}
