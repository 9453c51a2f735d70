package publisher

import (
	"errors"
	"fmt"
)

// ErrPublishFailed matches every error returned by Agent.Publish.
var ErrPublishFailed = errors.New("publish failed")

// Kind classifies a publish target failure.
type Kind string

const (
	KindAuthExpired Kind = "AuthExpired"
	KindServer      Kind = "ServerError"
	KindValidation  Kind = "ValidationError"
)

// Error carries the target's failure detail verbatim.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s(%q, %q)", ErrPublishFailed, string(e.Kind), e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrPublishFailed }

// KindOf returns the failure kind, or "" if err is not a publish error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

func parseKind(s string) Kind {
	switch s {
	case "AuthExpired", "auth_expired", "unauthorized", "not_logged_in":
		return KindAuthExpired
	case "ValidationError", "validation", "invalid":
		return KindValidation
	default:
		return KindServer
	}
}
