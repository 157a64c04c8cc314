package wire

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed fetch so callers can choose a recovery policy
// without inspecting error messages.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidURL
	KindInvalidHeader
	KindInvalidConfig
	KindConnectTimeout
	KindRequestTimeout
	KindCanceled
	KindConnection
	KindMalformedStatusLine
	KindMalformedHeader
	KindChunkedFraming
	KindUnexpectedEOF
	KindTooManyRedirects
	KindHTTPStatus
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInvalidURL:
		return "invalid_url"
	case KindInvalidHeader:
		return "invalid_header"
	case KindInvalidConfig:
		return "invalid_config"
	case KindConnectTimeout:
		return "connect_timeout"
	case KindRequestTimeout:
		return "request_timeout"
	case KindCanceled:
		return "canceled"
	case KindConnection:
		return "connection"
	case KindMalformedStatusLine:
		return "malformed_status_line"
	case KindMalformedHeader:
		return "malformed_header"
	case KindChunkedFraming:
		return "chunked_framing"
	case KindUnexpectedEOF:
		return "unexpected_eof"
	case KindTooManyRedirects:
		return "too_many_redirects"
	case KindHTTPStatus:
		return "http_status"
	default:
		return "unknown"
	}
}

// Timeout reports whether the kind is one of the timeout kinds.
func (k Kind) Timeout() bool {
	return k == KindConnectTimeout || k == KindRequestTimeout
}

// Sentinels, one per kind. An *Error matches the sentinel of its kind
// with errors.Is.
var (
	ErrInvalidURL          = errors.New("invalid url")
	ErrInvalidHeader       = errors.New("invalid header")
	ErrInvalidConfig       = errors.New("invalid config")
	ErrConnectTimeout      = errors.New("connect timeout")
	ErrRequestTimeout      = errors.New("request timeout")
	ErrCanceled            = errors.New("fetch canceled")
	ErrConnection          = errors.New("connection error")
	ErrMalformedStatusLine = errors.New("malformed status line")
	ErrMalformedHeader     = errors.New("malformed header")
	ErrChunkedFraming      = errors.New("chunked framing error")
	ErrUnexpectedEOF       = errors.New("unexpected eof")
	ErrTooManyRedirects    = errors.New("too many redirects")
	ErrHTTPStatus          = errors.New("unexpected http status")

	// ErrMissingLocation is wrapped by a KindInvalidURL error when a
	// redirect response carries no Location header.
	ErrMissingLocation = errors.New("redirect without location header")
)

var sentinels = map[Kind]error{
	KindInvalidURL:          ErrInvalidURL,
	KindInvalidHeader:       ErrInvalidHeader,
	KindInvalidConfig:       ErrInvalidConfig,
	KindConnectTimeout:      ErrConnectTimeout,
	KindRequestTimeout:      ErrRequestTimeout,
	KindCanceled:            ErrCanceled,
	KindConnection:          ErrConnection,
	KindMalformedStatusLine: ErrMalformedStatusLine,
	KindMalformedHeader:     ErrMalformedHeader,
	KindChunkedFraming:      ErrChunkedFraming,
	KindUnexpectedEOF:       ErrUnexpectedEOF,
	KindTooManyRedirects:    ErrTooManyRedirects,
	KindHTTPStatus:          ErrHTTPStatus,
}

// Error is the single failure type surfaced by a fetch.
type Error struct {
	Kind Kind
	// Op names the step that failed, e.g. "parse url", "dial", "read status line".
	Op string
	// StatusCode and Reason are set for KindHTTPStatus.
	StatusCode int
	Reason     string
	// Body holds a bounded prefix of the response body for KindHTTPStatus.
	Body string
	// Detail is free-form context, e.g. the offending line.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if s, ok := sentinels[e.Kind]; ok {
		msg = s.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}

	switch {
	case e.Kind == KindHTTPStatus:
		msg = fmt.Sprintf("%s: %d %s", msg, e.StatusCode, e.Reason)
		if e.Body != "" {
			msg += ", body: " + e.Body
		}
	case e.Detail != "":
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}

	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel belonging to the error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// Timeout reports whether the error is a connect or request timeout.
func (e *Error) Timeout() bool {
	return e.Kind.Timeout()
}

// NewError builds an *Error of the given kind.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain,
// or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// IsTimeout reports whether err is a connect or request timeout.
func IsTimeout(err error) bool {
	return KindOf(err).Timeout()
}

// ContextKind maps a context error onto the matching kind.
func ContextKind(err error) Kind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindRequestTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindConnection
	}
}
