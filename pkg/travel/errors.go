package travel

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the core can observe. The set is
// closed; callers switch on it, never on error strings.
type ErrorKind string

const (
	// ErrInvalidInput marks a request the core refuses to process, such as
	// an empty utterance or a missing user id.
	ErrInvalidInput ErrorKind = "invalid_input"

	// ErrRateLimited marks exhaustion of a provider bucket. It is handled
	// inside the limiter by waiting and never escapes to callers.
	ErrRateLimited ErrorKind = "rate_limited"

	// ErrTimeout marks a spec or request that exceeded its deadline.
	ErrTimeout ErrorKind = "timeout"

	// ErrCanceled marks caller-initiated cancellation.
	ErrCanceled ErrorKind = "canceled"

	// ErrUpstream marks a non-retryable error reported by the upstream API.
	ErrUpstream ErrorKind = "upstream"

	// ErrTransport marks a network-level failure below the API layer.
	ErrTransport ErrorKind = "transport"

	// ErrParse marks a malformed response that could not be salvaged.
	ErrParse ErrorKind = "parse"

	// ErrInternal marks an assertion violation inside the core.
	ErrInternal ErrorKind = "internal"
)

// Error is the structured error carried through the core. Provider is set
// when the failure is attributable to one upstream account.
type Error struct {
	Kind     ErrorKind `json:"kind"`
	Provider Provider  `json:"provider,omitempty"`
	Detail   string    `json:"detail"`
	Err      error     `json:"-"`
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Provider != "" {
		msg += " (" + string(e.Provider) + ")"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two taxonomy errors by kind, so errors.Is(err, &Error{Kind: k})
// works without comparing details.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// E builds a taxonomy error.
func E(kind ErrorKind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Ef builds a taxonomy error with a formatted detail.
func Ef(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and detail to an underlying error. A nil err yields
// nil so call sites can wrap unconditionally.
func Wrap(kind ErrorKind, detail string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// WithProvider returns a copy of e attributed to p.
func (e *Error) WithProvider(p Provider) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Provider = p
	return &clone
}

// Classify folds an arbitrary error into the taxonomy. Taxonomy errors pass
// through; context errors map to Canceled and Timeout; everything else is
// Transport, the conservative default for failures crossing an I/O boundary.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Kind: ErrCanceled, Detail: "request canceled", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: ErrTimeout, Detail: "deadline exceeded", Err: err}
	}
	return &Error{Kind: ErrTransport, Detail: "transport failure", Err: err}
}

// KindOf reports the taxonomy kind of err, or ErrInternal for nil-safe use
// on unexpected values.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return Classify(err).Kind
}

// IsCanceled reports whether err is, or wraps, a cancellation.
func IsCanceled(err error) bool {
	return KindOf(err) == ErrCanceled
}

// Aborts reports whether kind must abort the whole request instead of
// degrading it. Partial upstream failures never abort.
func (k ErrorKind) Aborts() bool {
	switch k {
	case ErrInvalidInput, ErrCanceled, ErrInternal:
		return true
	}
	return false
}
