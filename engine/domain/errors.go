package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation and retry policy (spec §7).
type Kind string

const (
	// KindInputInvalid: bad file type/size/duplicate at upload, malformed
	// query, unknown group. Never retried.
	KindInputInvalid Kind = "input_invalid"
	// KindAccessDenied: caller lacks group membership. Never retried.
	KindAccessDenied Kind = "access_denied"
	// KindTransientExternal: network, timeout, 5xx, broker unreachable.
	// Retried with bounded backoff.
	KindTransientExternal Kind = "transient_external"
	// KindPermanentExternal: 4xx (excluding rate limits), malformed
	// response, extraction gave zero pages. Not retried.
	KindPermanentExternal Kind = "permanent_external"
	// KindDataConsistency: document record missing, object missing when key
	// present. Not retried; logged as error-level event.
	KindDataConsistency Kind = "data_consistency"
	// KindServiceUnavailable: TransientExternal whose retry bound was
	// exceeded.
	KindServiceUnavailable Kind = "service_unavailable"
	// KindInternal: unexpected. Logged with stack at the outermost handler.
	KindInternal Kind = "internal"
)

// Sentinel reasons wrapped by Error; compare with errors.Is.
var (
	ErrDuplicateUpload     = errors.New("duplicate upload for group")
	ErrUnsupportedFileKind = errors.New("unsupported file kind")
	ErrFileTooLarge        = errors.New("file exceeds maximum size")
	ErrUnknownGroup        = errors.New("unknown group")
	ErrMalformedQuery      = errors.New("malformed query")
	ErrGroupMembership     = errors.New("caller lacks group membership")
	ErrDocumentMissing     = errors.New("document record missing")
	ErrObjectMissing       = errors.New("object missing for key")
	ErrZeroPages           = errors.New("extraction produced zero pages")
	ErrNoFileSource        = errors.New("no file source")
)

// Error is the single typed error wrapper used across the pipeline. Every
// component catches the narrowest Kind it can map and re-raises; only the
// outer request/task boundary converts it to a user-visible failure.
type Error struct {
	Kind    Kind
	Field   string
	Value   string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s: %s (value=%q)", e.Kind, e.Wrapped, e.Field, e.Value)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New wraps a sentinel reason under a Kind with no field context.
func New(kind Kind, wrapped error) *Error {
	return &Error{Kind: kind, Wrapped: wrapped}
}

// NewField wraps a sentinel reason under a Kind with field/value context;
// it accepts any of the Kind values above.
func NewField(kind Kind, field, value string, wrapped error) *Error {
	return &Error{Kind: kind, Field: field, Value: value, Wrapped: wrapped}
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err does
// not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether the propagation rule (spec §7) allows retrying
// an error of this kind.
func Retryable(err error) bool {
	return KindOf(err) == KindTransientExternal
}
