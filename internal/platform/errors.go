package platform

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Kind classifies adapter failures. It is the only error surface shown to users.
type Kind string

const (
	KindRateLimited      Kind = "rate_limited"
	KindTransientNetwork Kind = "transient_network"
	KindContentRejected  Kind = "content_rejected"
	KindAuthExpired      Kind = "auth_expired"
	KindAuthRevoked      Kind = "auth_revoked"
	KindNotFound         Kind = "not_found"
	KindUnsupported      Kind = "unsupported"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrRateLimited      = &Error{Kind: KindRateLimited}
	ErrTransientNetwork = &Error{Kind: KindTransientNetwork}
	ErrContentRejected  = &Error{Kind: KindContentRejected}
	ErrAuthExpired      = &Error{Kind: KindAuthExpired}
	ErrAuthRevoked      = &Error{Kind: KindAuthRevoked}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrUnsupported      = &Error{Kind: KindUnsupported}

	ErrUnknownPlatform = errors.New("unknown platform")
)

const maxReasonLen = 300

type Error struct {
	Kind     Kind
	Platform string
	// Reason is the platform's own message, safe to show to the post owner.
	Reason string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Platform != "" {
		b.WriteString(e.Platform)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
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

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Platform == "" || t.Platform == e.Platform)
}

// NewError builds a taxonomy error for code outside this package.
func NewError(kind Kind, platform, reason string) *Error {
	return newError(kind, platform, reason, nil)
}

func newError(kind Kind, platform, reason string, err error) *Error {
	return &Error{Kind: kind, Platform: platform, Reason: truncate(reason), Err: err}
}

// KindOf returns the adapter error kind carried by err, or "" for foreign errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// ReasonOf returns the sanitized platform reason, falling back to the kind.
func ReasonOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		if pe.Reason != "" {
			return pe.Reason
		}
		return string(pe.Kind)
	}
	return ""
}

// Retryable reports whether the same call may succeed if repeated after a pause.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindTransientNetwork:
		return true
	}
	return false
}

// classifyStatus maps a non-2xx response onto the taxonomy.
func classifyStatus(platform string, status int, body []byte, reason string) error {
	if reason == "" {
		reason = strings.TrimSpace(string(body))
	}
	switch {
	case bytes.Contains(body, []byte("invalid_grant")):
		return newError(KindAuthRevoked, platform, reason, nil)
	case status == http.StatusTooManyRequests:
		return newError(KindRateLimited, platform, reason, nil)
	case status >= 500:
		return newError(KindTransientNetwork, platform, reason, nil)
	case status == http.StatusUnauthorized:
		return newError(KindAuthExpired, platform, reason, nil)
	case status == http.StatusNotFound:
		return newError(KindNotFound, platform, reason, nil)
	case status >= 400:
		return newError(KindContentRejected, platform, reason, nil)
	}
	return newError(KindTransientNetwork, platform, fmt.Sprintf("unexpected status %d", status), nil)
}

// classifyTransport wraps a failed round trip. Context errors pass through
// so callers can tell their own deadline from a platform failure.
func classifyTransport(platform string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// url.Error carries the request URL, which may hold a token.
	var ue *url.Error
	if errors.As(err, &ue) {
		err = ue.Err
	}
	return newError(KindTransientNetwork, platform, "request failed", err)
}

func truncate(s string) string {
	if len(s) <= maxReasonLen {
		return s
	}
	n := maxReasonLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
