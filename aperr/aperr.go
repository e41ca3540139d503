// Package aperr defines the closed error taxonomy shared by every layer of
// the CLI. Each error carries a Kind used for exit-path decisions and for the
// structured JSON emitted under --json-errors.
package aperr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind identifies a class of failure. The set is closed: downstream code
// switches exhaustively on these values.
type Kind string

const (
	// Load is an I/O or parse failure reading a spec or config file.
	Load Kind = "load"
	// RemoteFetch is a network, timeout, oversized-body, or HTTP failure
	// while fetching a spec from a URL.
	RemoteFetch Kind = "remote_fetch"
	// Validation is a structural problem in an OpenAPI document.
	Validation Kind = "validation"
	// Configuration covers config-store problems: duplicate or unknown spec
	// names, malformed TOML, invalid setting keys or values.
	Configuration Kind = "configuration"
	// InvalidArgument is malformed command-line input.
	InvalidArgument Kind = "invalid_argument"
	// SecretNotSet means a referenced environment variable is missing.
	SecretNotSet Kind = "secret_not_set"
	// HTTP is a non-success status from the target server.
	HTTP Kind = "http"
	// Transport is a connection, TLS, or timeout failure at request time.
	Transport Kind = "transport"
	// CaptureFailed means a JQ capture query did not apply to a response.
	CaptureFailed Kind = "capture_failed"
	// InvalidInterpolation is a malformed {{...}} token in a batch argument.
	InvalidInterpolation Kind = "invalid_interpolation"
	// UnresolvedVariable is a {{name}} reference with no captured value.
	UnresolvedVariable Kind = "unresolved_variable"
	// CycleDetected means the batch dependency graph contains a cycle.
	CycleDetected Kind = "cycle_detected"
	// MissingDependency is a depends_on reference to an unknown operation id.
	MissingDependency Kind = "missing_dependency"
	// CacheUnavailable is a non-fatal response-cache failure, treated as a miss.
	CacheUnavailable Kind = "cache_unavailable"
	// InvalidServerVarValue is a server variable value outside its enum.
	InvalidServerVarValue Kind = "invalid_server_var_value"
	// UnknownServerVariable is a key=value argument naming no declared variable.
	UnknownServerVariable Kind = "unknown_server_variable"
	// UnresolvedTemplateVariable is a {x} token left after substitution.
	UnresolvedTemplateVariable Kind = "unresolved_template_variable"
)

// Error is the concrete error type for the taxonomy. Details holds the
// structured fields rendered under --json-errors.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// With attaches a detail field and returns the error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// KindOf returns the taxonomy kind of err, or the empty string when err is
// not (and does not wrap) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// jsonError is the wire shape emitted to stderr under --json-errors.
type jsonError struct {
	ErrorType string         `json:"error_type"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// ToJSON renders err as the structured error document. Errors outside the
// taxonomy are reported as "internal".
func ToJSON(err error) []byte {
	doc := jsonError{ErrorType: "internal", Message: err.Error()}
	var e *Error
	if errors.As(err, &e) {
		doc.ErrorType = string(e.Kind)
		doc.Message = e.Error()
		doc.Details = e.Details
	}
	out, marshalErr := json.Marshal(doc)
	if marshalErr != nil {
		return []byte(`{"error_type":"internal","message":"failed to encode error"}`)
	}
	return out
}

// NewSecretNotSet reports a missing secret environment variable.
func NewSecretNotSet(scheme, envVar string) *Error {
	return New(SecretNotSet, "environment variable %s for security scheme %q is not set", envVar, scheme).
		With("scheme", scheme).
		With("env_var", envVar)
}

// NewHTTP reports a non-success response from the target API.
func NewHTTP(status int, body, apiName, operationID string, schemes []string) *Error {
	e := New(HTTP, "HTTP %d from %s %s", status, apiName, operationID).
		With("status", status).
		With("api_name", apiName).
		With("operation_id", operationID)
	if body != "" {
		e.With("body", body)
	}
	if len(schemes) > 0 {
		e.With("security_schemes", schemes)
	}
	return e
}

// NewUnresolvedVariable reports an interpolation reference with no value.
func NewUnresolvedVariable(name, operationID string) *Error {
	return New(UnresolvedVariable, "operation %q references undefined variable {{%s}}", operationID, name).
		With("name", name).
		With("operation_id", operationID)
}

// NewCaptureFailed reports a capture query that did not apply.
func NewCaptureFailed(operationID, query, reason string) *Error {
	return New(CaptureFailed, "operation %q: capture query %q failed: %s", operationID, query, reason).
		With("operation_id", operationID).
		With("query", query).
		With("reason", reason)
}

// NewMissingDependency reports a depends_on id that matches no operation.
func NewMissingDependency(operationID, dependencyID string) *Error {
	return New(MissingDependency, "operation %q depends on unknown operation %q", operationID, dependencyID).
		With("operation_id", operationID).
		With("dependency_id", dependencyID)
}

// NewCycleDetected reports one concrete dependency cycle. The ids trace the
// cycle with the starting id repeated at the end.
func NewCycleDetected(ids []string) *Error {
	return New(CycleDetected, "dependency cycle detected among batch operations: %v", ids).
		With("cycle", ids)
}
