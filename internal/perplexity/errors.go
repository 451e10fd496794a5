package perplexity

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed API call.
type ErrorKind int

const (
	KindTransport ErrorKind = iota + 1
	KindAuth
	KindAPI
	KindParse
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindAPI:
		return "api"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

const authHint = "check PERPLEXITY_API_KEY: pplx-... key from https://www.perplexity.ai/settings/api"

// Error is returned by every Client call that fails.
type Error struct {
	Kind   ErrorKind
	Op     string // "search" or "completions"
	Status int    // HTTP status, zero for transport errors
	Body   string // first line of the response body
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindAuth:
		return fmt.Sprintf("perplexity %s: authentication failed (%d): %s; %s", e.Op, e.Status, e.Body, authHint)
	case KindAPI:
		return fmt.Sprintf("perplexity %s: api error %d: %s", e.Op, e.Status, e.Body)
	default:
		return fmt.Sprintf("perplexity %s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a perplexity error, or zero for other errors.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return KindOf(err) == KindAuth
}
