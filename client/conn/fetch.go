package conn

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/asynclient/client/wire"
)

// maxErrBodySize caps how much of a response body is copied into an
// HTTP status error.
const maxErrBodySize = 4 << 10 // 4KB

// Limiter delays a hop before it connects. throttle.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Options are the resolved settings of one fetch.
type Options struct {
	Method          string
	Header          wire.Header
	Body            []byte
	UserAgent       string
	ConnectTimeout  time.Duration
	FollowRedirects bool
	MaxRedirects    int
}

// Hop describes one finished connect/send/receive cycle.
type Hop struct {
	URL        wire.URL
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Fetcher runs the redirect loop. The zero value dials with a plain
// *net.Dialer and logs to slog.Default().
type Fetcher struct {
	Dialer  Dialer
	Limiter Limiter
	Logger  *slog.Logger
	// OnHop, when set, is called after every hop.
	OnHop func(Hop)
}

// Fetch resolves target and follows redirects until a terminal
// response or failure. 2xx responses are returned; 3xx responses are
// followed or, when redirects are disabled, returned; anything else is
// a KindHTTPStatus error.
func (f *Fetcher) Fetch(ctx context.Context, target string, opts Options) (*wire.Response, error) {
	u, err := wire.ParseURL(target)
	if err != nil {
		return nil, err
	}

	for redirects := 0; ; {
		resp, err := f.hop(ctx, u, opts)
		if err != nil {
			return nil, err
		}
		resp.Redirects = redirects

		switch code := resp.StatusCode; {
		case code >= 200 && code < 300:
			return resp, nil

		case code >= 300 && code < 400:
			if !opts.FollowRedirects {
				return resp, nil
			}
			if redirects >= opts.MaxRedirects {
				return nil, &wire.Error{
					Kind:   wire.KindTooManyRedirects,
					Op:     "redirect",
					Detail: fmt.Sprintf("stopped after %d redirects at %s", redirects, u),
				}
			}

			loc, ok := resp.Header.Lookup("Location")
			if !ok {
				return nil, &wire.Error{Kind: wire.KindInvalidURL, Op: "redirect", Detail: u.String(), Err: wire.ErrMissingLocation}
			}

			next, err := wire.ResolveLocation(u, loc)
			if err != nil {
				return nil, fmt.Errorf("following redirect from %s: %w", u, err)
			}

			f.logger().Debug("following redirect", "from", u.String(), "to", next.String(), "status", code)
			redirects++
			u = next

		default:
			body := resp.Body
			if len(body) > maxErrBodySize {
				body = body[:maxErrBodySize]
			}
			return nil, &wire.Error{
				Kind:       wire.KindHTTPStatus,
				Op:         "fetch",
				StatusCode: code,
				Reason:     resp.Reason,
				Body:       string(body),
			}
		}
	}
}

// hop performs one connect/send/receive cycle on a fresh connection.
func (f *Fetcher) hop(ctx context.Context, u wire.URL, opts Options) (resp *wire.Response, err error) {
	start := time.Now()
	defer func() {
		h := Hop{URL: u, Duration: time.Since(start), Err: err}
		if resp != nil {
			h.StatusCode = resp.StatusCode
		}
		f.record(ctx, h)
	}()

	if f.Limiter != nil {
		if err := f.Limiter.Wait(ctx); err != nil {
			kind := wire.KindRequestTimeout
			if ctxErr := ctx.Err(); ctxErr != nil {
				kind = wire.ContextKind(ctxErr)
			}
			return nil, &wire.Error{Kind: kind, Op: "throttle", Err: err}
		}
	}

	req, err := wire.BuildRequest(u, opts.Method, opts.Header, opts.Body, opts.UserAgent)
	if err != nil {
		return nil, err
	}

	c, err := Dial(ctx, f.dialer(), u, opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := c.Close(); err != nil {
			f.logger().Error("failed to close connection", "url", u.String(), "error", err)
		}
	}()

	if err := c.Send(ctx, req); err != nil {
		return nil, err
	}

	return c.Receive(ctx, req.Method)
}

func (f *Fetcher) record(ctx context.Context, h Hop) {
	attrs := []attribute.KeyValue{
		attribute.String("http.url", h.URL.String()),
		attribute.Int("http.status_code", h.StatusCode),
	}
	if h.Err != nil {
		attrs = append(attrs, attribute.String("error.kind", wire.KindOf(h.Err).String()))
	}
	trace.SpanFromContext(ctx).AddEvent("hop", trace.WithAttributes(attrs...))

	if h.Err != nil {
		f.logger().Debug("hop failed", "url", h.URL.String(), "took", h.Duration, "error", h.Err)
	} else {
		f.logger().Debug("hop complete", "url", h.URL.String(), "status", h.StatusCode, "took", h.Duration)
	}

	if f.OnHop != nil {
		f.OnHop(h)
	}
}

func (f *Fetcher) dialer() Dialer {
	if f.Dialer == nil {
		return &net.Dialer{}
	}

	return f.Dialer
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}

	return f.Logger
}
