package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// Kind classifies why an invocation failed.
type Kind string

const (
	KindTimeout         Kind = "timeout"
	KindUnavailable     Kind = "provider_unavailable"
	KindInvalidResponse Kind = "invalid_response"
	KindRateLimited     Kind = "rate_limited"
	KindUnknown         Kind = "unknown"
	// KindCanceled marks attempts cut short by the caller, not the provider.
	KindCanceled Kind = "canceled"
)

// Neutral reports whether the kind says nothing about provider health.
func (k Kind) Neutral() bool {
	return k == KindRateLimited || k == KindCanceled
}

// Error wraps provider errors with kind and status metadata.
type Error struct {
	Provider string
	Kind     Kind
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return "adapter error"
	}
	prefix := string(e.Kind)
	if e.Provider != "" {
		prefix = e.Provider + ": " + prefix
	}
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (status=%d)", prefix, e.Status)
	}
	return prefix
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds an *Error of the given kind.
func NewError(provider string, kind Kind, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// Classify converts an arbitrary error returned by an SDK into an *Error.
// Errors that already carry a kind keep it.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var adapterErr *Error
	if errors.As(err, &adapterErr) {
		return err
	}
	status := statusOf(err)
	return &Error{Provider: provider, Kind: kindOf(err, status), Status: status, Err: err}
}

// KindOf returns the failure kind for err, or "" when err is nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var adapterErr *Error
	if errors.As(err, &adapterErr) && adapterErr.Kind != "" {
		return adapterErr.Kind
	}
	return kindOf(err, statusOf(err))
}

// KindForStatus maps an HTTP status code to a failure kind.
func KindForStatus(status int) Kind {
	switch {
	case status == 429:
		return KindRateLimited
	case status == 408 || status == 504:
		return KindTimeout
	case status == 401 || status == 403 || status == 404:
		return KindUnavailable
	case status >= 500 && status <= 599:
		return KindUnavailable
	case status == 400 || status == 422:
		return KindInvalidResponse
	default:
		return KindUnknown
	}
}

// IsTransient reports whether an error is worth retrying against the same provider.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindUnavailable:
		return true
	default:
		return false
	}
}

func kindOf(err error, status int) Kind {
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if status != 0 {
		return KindForStatus(status)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindUnavailable
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindUnavailable
	}
	return KindUnknown
}

func statusOf(err error) int {
	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}
	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode
	}
	var googleErr genai.APIError
	if errors.As(err, &googleErr) {
		return googleErr.Code
	}
	return 0
}
