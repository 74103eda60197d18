package collab

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"

	"chorus/llm"
)

// Kind classifies a collaboration failure
type Kind string

const (
	KindValidation            Kind = "validation"
	KindAuth                  Kind = "auth"
	KindProviderNotConfigured Kind = "provider_not_configured"
	KindInsufficientBalance   Kind = "insufficient_balance"
	KindInvalidRequest        Kind = "invalid_request"
	KindTransport             Kind = "transport"
	KindRateLimited           Kind = "rate_limited"
	KindTimeout               Kind = "timeout"
	KindCoordinatorParse      Kind = "coordinator_parse"
	KindAllProvidersFailed    Kind = "all_providers_failed"
	KindCancelled             Kind = "cancelled"
)

// Sentinels for errors.Is; matching is by kind only.
var (
	ErrValidation            = &Error{Kind: KindValidation}
	ErrAuth                  = &Error{Kind: KindAuth}
	ErrProviderNotConfigured = &Error{Kind: KindProviderNotConfigured}
	ErrInsufficientBalance   = &Error{Kind: KindInsufficientBalance}
	ErrInvalidRequest        = &Error{Kind: KindInvalidRequest}
	ErrTransport             = &Error{Kind: KindTransport}
	ErrRateLimited           = &Error{Kind: KindRateLimited}
	ErrTimeout               = &Error{Kind: KindTimeout}
	ErrCoordinatorParse      = &Error{Kind: KindCoordinatorParse}
	ErrAllProvidersFailed    = &Error{Kind: KindAllProvidersFailed}
	ErrCancelled             = &Error{Kind: KindCancelled}
)

// Error is a classified failure, optionally tied to one participant
type Error struct {
	Kind        Kind
	Participant string
	Message     string
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Participant != "" {
		fmt.Fprintf(&b, " [%s]", e.Participant)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of err, classifying unrecognized errors as transport
// failures. It returns "" for a nil error.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var all *AllProvidersFailedError
	if errors.As(err, &all) {
		return KindAllProvidersFailed
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return classify("", err).Kind
}

// HTTPStatus maps a kind to the status code a participant endpoint returns
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindInvalidRequest:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindInsufficientBalance:
		return http.StatusPaymentRequired
	case KindTimeout:
		return http.StatusRequestTimeout
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindAllProvidersFailed:
		return http.StatusBadGateway
	case KindCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// classify maps a provider or transport error onto the taxonomy
func classify(participant string, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	out := &Error{Participant: participant, Err: err}
	switch {
	case errors.Is(err, context.Canceled):
		out.Kind = KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = KindTimeout
	case errors.Is(err, llm.ErrEmptyResponse):
		out.Kind = KindTransport
		out.Message = "provider returned an empty response"
	default:
		if code := llm.StatusCode(err); code != 0 {
			out.Kind = kindForStatus(code)
			return out
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			out.Kind = KindTimeout
			return out
		}
		out.Kind = KindTransport
	}
	return out
}

func kindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusPaymentRequired:
		return KindInsufficientBalance
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == 499:
		return KindCancelled
	case code == http.StatusNotFound || code >= 500:
		return KindTransport
	case code >= 400:
		return KindInvalidRequest
	default:
		return KindTransport
	}
}

// AllProvidersFailedError is the terminal session failure when no participant
// succeeded. It carries every participant's error.
//
// errors.Is matches ErrAllProvidersFailed and also the kind of any participant
// error (ErrTimeout when one participant timed out). Use KindOf, or test for
// ErrAllProvidersFailed first, to classify the session failure.
type AllProvidersFailedError struct {
	Errors map[string]error
}

func (e *AllProvidersFailedError) Error() string {
	ids := make([]string, 0, len(e.Errors))
	for id := range e.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Errors[id]))
	}
	if len(parts) == 0 {
		return "all participants failed"
	}
	return "all participants failed: " + strings.Join(parts, "; ")
}

func (e *AllProvidersFailedError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == KindAllProvidersFailed
}

// Unwrap exposes the individual participant errors, which errors.Is and
// errors.As walk
func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, err := range e.Errors {
		errs = append(errs, err)
	}
	return errs
}
