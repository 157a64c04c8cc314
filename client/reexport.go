package client

import (
	"hash"
	"os"
	"time"

	"github.com/adamwoolhether/asynclient/client/download"
	"github.com/adamwoolhether/asynclient/client/settings"
	"github.com/adamwoolhether/asynclient/client/wire"
)

// ————————————————————————————————————————————————————————————————————
// Type aliases – re-export user-facing types from [wire], [settings]
// and [download].
// ————————————————————————————————————————————————————————————————————

type (
	// Response is a fully read HTTP/1.0 response.
	Response = wire.Response

	// Header is the case-insensitive header container.
	Header = wire.Header

	// Error is the typed failure returned by every fetch.
	Error = wire.Error

	// Kind classifies an Error.
	Kind = wire.Kind

	// Setting is one per-call or default setting.
	Setting = settings.Setting

	// DownloadOption configures [Client.Download].
	DownloadOption = download.Option

	// DownloadError wraps a sentinel error with additional detail.
	DownloadError = download.Error
)

// Failure kinds.
const (
	KindInvalidURL          = wire.KindInvalidURL
	KindInvalidHeader       = wire.KindInvalidHeader
	KindInvalidConfig       = wire.KindInvalidConfig
	KindConnectTimeout      = wire.KindConnectTimeout
	KindRequestTimeout      = wire.KindRequestTimeout
	KindCanceled            = wire.KindCanceled
	KindConnection          = wire.KindConnection
	KindMalformedStatusLine = wire.KindMalformedStatusLine
	KindMalformedHeader     = wire.KindMalformedHeader
	KindChunkedFraming      = wire.KindChunkedFraming
	KindUnexpectedEOF       = wire.KindUnexpectedEOF
	KindTooManyRedirects    = wire.KindTooManyRedirects
	KindHTTPStatus          = wire.KindHTTPStatus
)

// ————————————————————————————————————————————————————————————————————
// Sentinel errors
// ————————————————————————————————————————————————————————————————————

var (
	ErrInvalidURL          = wire.ErrInvalidURL
	ErrInvalidHeader       = wire.ErrInvalidHeader
	ErrInvalidConfig       = wire.ErrInvalidConfig
	ErrConnectTimeout      = wire.ErrConnectTimeout
	ErrRequestTimeout      = wire.ErrRequestTimeout
	ErrCanceled            = wire.ErrCanceled
	ErrConnection          = wire.ErrConnection
	ErrMalformedStatusLine = wire.ErrMalformedStatusLine
	ErrMalformedHeader     = wire.ErrMalformedHeader
	ErrChunkedFraming      = wire.ErrChunkedFraming
	ErrUnexpectedEOF       = wire.ErrUnexpectedEOF
	ErrTooManyRedirects    = wire.ErrTooManyRedirects
	ErrHTTPStatus          = wire.ErrHTTPStatus

	// ErrContentLengthMismatch indicates the byte count did not match Content-Length.
	ErrContentLengthMismatch = download.ErrContentLengthMismatch

	// ErrChecksumMismatch indicates the file checksum did not match the expected value.
	ErrChecksumMismatch = download.ErrChecksumMismatch

	// ErrDownloadCancelled indicates the download was cancelled via context.
	ErrDownloadCancelled = download.ErrDownloadCancelled
)

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind { return wire.KindOf(err) }

// IsTimeout reports whether err is a connect or request timeout.
func IsTimeout(err error) bool { return wire.IsTimeout(err) }

// ————————————————————————————————————————————————————————————————————
// Setting forwarding functions
// ————————————————————————————————————————————————————————————————————

// Method sets the request method. Get and Post override it.
func Method(m string) Setting { return settings.Method(m) }

// Headers sets header overrides, merged over the client defaults.
func Headers(h map[string]string) Setting { return settings.Headers(h) }

// WithHeader adds one header override.
func WithHeader(name, value string) Setting { return settings.Header(name, value) }

// Body sets the raw request body. No Content-Length is added.
func Body(b []byte) Setting { return settings.Body(b) }

// BodyString sets the request body to the UTF-8 bytes of s.
func BodyString(s string) Setting { return settings.BodyString(s) }

// UserAgent sets the User-Agent header for one fetch.
func UserAgent(ua string) Setting { return settings.UserAgent(ua) }

// ConnectTimeout bounds the dial of each hop for one fetch.
func ConnectTimeout(d time.Duration) Setting { return settings.ConnectTimeout(d) }

// RequestTimeout bounds one whole fetch.
func RequestTimeout(d time.Duration) Setting { return settings.RequestTimeout(d) }

// FollowRedirects toggles the redirect loop for one fetch.
func FollowRedirects(follow bool) Setting { return settings.FollowRedirects(follow) }

// MaxRedirects caps redirects for one fetch.
func MaxRedirects(n int) Setting { return settings.MaxRedirects(n) }

// ————————————————————————————————————————————————————————————————————
// Download option forwarding functions
// ————————————————————————————————————————————————————————————————————

// WithChecksum enables checksum validation of the downloaded file.
// h is a [hash.Hash] instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string.
func WithChecksum(h hash.Hash, expected string) DownloadOption {
	return download.WithChecksum(h, expected)
}

// WithSkipExisting causes a download to return nil immediately, without
// connecting, when the destination file already exists.
func WithSkipExisting() DownloadOption { return download.WithSkipExisting() }

// WithFileMode sets the permissions of the downloaded file.
func WithFileMode(mode os.FileMode) DownloadOption { return download.WithFileMode(mode) }
