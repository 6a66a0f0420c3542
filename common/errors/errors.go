package errors

import (
	pkgerrors "github.com/pkg/errors"
)

// Kind classifies a broker error for client-facing response mapping. The
// classification decides the HTTP status only; the detailed message stays in
// the logs and is never returned to the caller.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInactive
	KindMalformedProof
	KindVerificationFailed
	KindUpstreamUnavailable
	KindConfigurationMissing
	KindAdmissionDenied
	KindValidationFailed
)

// Error carries a kind alongside the underlying cause. The cause is for
// logging; Response only ever exposes the generic message of the kind.
type Error struct {
	Kind       Kind
	RetryAfter int
	err        error
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return clientMessage(e.Kind)
}

func (e *Error) Unwrap() error { return e.err }

// WithKind attaches a classification to err.
func WithKind(err error, kind Kind) error {
	if err == nil {
		err = pkgerrors.New(clientMessage(kind))
	}
	return &Error{Kind: kind, err: err}
}

// NotFound marks err as an unknown-resource failure.
func NotFound(err error) error { return WithKind(err, KindNotFound) }

// Inactive marks err as a disabled-service failure.
func Inactive(err error) error { return WithKind(err, KindInactive) }

// MalformedProof marks err as an undecodable payment header.
func MalformedProof(err error) error { return WithKind(err, KindMalformedProof) }

// VerificationFailed marks err as a failed payment check. The specific check
// that failed must never reach the client.
func VerificationFailed(err error) error { return WithKind(err, KindVerificationFailed) }

// UpstreamUnavailable marks err as a forwarding failure.
func UpstreamUnavailable(err error) error { return WithKind(err, KindUpstreamUnavailable) }

// ConfigurationMissing marks err as absent signer/network configuration.
func ConfigurationMissing(err error) error { return WithKind(err, KindConfigurationMissing) }

// AdmissionDenied marks err as an abuse-prevention rejection carrying a
// retry-after hint in seconds.
func AdmissionDenied(err error, retryAfter int) error {
	if err == nil {
		err = pkgerrors.New(clientMessage(KindAdmissionDenied))
	}
	return &Error{Kind: KindAdmissionDenied, RetryAfter: retryAfter, err: err}
}

// ValidationFailed marks err as an engine-level failure during a run.
func ValidationFailed(err error) error { return WithKind(err, KindValidationFailed) }

// KindOf extracts the classification of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// RetryAfterOf extracts the retry-after hint of an admission denial.
func RetryAfterOf(err error) int {
	var e *Error
	if As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

func clientMessage(kind Kind) string {
	switch kind {
	case KindNotFound:
		return "service not found"
	case KindInactive:
		return "service unavailable"
	case KindMalformedProof:
		return "invalid payment header format"
	case KindVerificationFailed:
		return "payment verification failed"
	case KindUpstreamUnavailable:
		return "upstream service unavailable"
	case KindConfigurationMissing:
		return "service misconfigured"
	case KindAdmissionDenied:
		return "rate limit exceeded"
	case KindValidationFailed:
		return "validation failed"
	default:
		return "internal server error"
	}
}

// New, Wrap, Wrapf, Cause, Is and As re-export pkg/errors so callers use a
// single errors package.
func New(message string) error { return pkgerrors.New(message) }

func Errorf(format string, args ...interface{}) error {
	return pkgerrors.Errorf(format, args...)
}

func Wrap(err error, message string) error { return pkgerrors.Wrap(err, message) }

func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

func Cause(err error) error { return pkgerrors.Cause(err) }

func Is(err, target error) bool { return pkgerrors.Is(err, target) }

func As(err error, target interface{}) bool { return pkgerrors.As(err, target) }
