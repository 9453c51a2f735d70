package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrUnconfigured means no credential or endpoint was supplied for the provider.
var ErrUnconfigured = errors.New("llm provider not configured")

// Kind classifies a failed submit.
type Kind int

const (
	KindServer Kind = iota
	KindTimeout
	KindAuth
	// KindRequest is a rejected request (4xx other than auth); retrying cannot help.
	KindRequest
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "Timeout"
	case KindAuth:
		return "AuthError"
	case KindRequest:
		return "RequestError"
	default:
		return "ServerError"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind   Kind
	Vendor string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s (status %d): %v", e.Vendor, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Vendor, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether the call site may retry.
func (e *Error) Transient() bool {
	return e.Kind == KindTimeout || e.Kind == KindServer
}

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Transient()
	}
	return false
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindAuth
}

// KindOf returns the classified kind, or KindServer for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServer
}

func kindForStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 408:
		return KindTimeout
	case status == 429 || status >= 500:
		return KindServer
	default:
		return KindRequest
	}
}

// classify wraps a raw transport error that the SDK did not type.
func classify(vendor string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Vendor: vendor, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Vendor: vendor, Err: err}
	}
	return &Error{Kind: KindServer, Vendor: vendor, Err: err}
}
