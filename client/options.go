package client

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/asynclient/client/conn"
	"github.com/adamwoolhether/asynclient/client/governor"
	"github.com/adamwoolhether/asynclient/client/settings"
	"github.com/adamwoolhether/asynclient/client/throttle"
)

// DefaultMaxTasks is the governor capacity used when WithMaxTasks is
// not given.
const DefaultMaxTasks = 10

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	maxTasks   int
	logger     *slog.Logger
	throttle   *throttle.Config
	registerer prometheus.Registerer
	metrics    bool
	tracer     trace.Tracer
	dialer     conn.Dialer
	defaults   []settings.Setting
}

// WithMaxTasks caps how many fetches may hold a connection at once.
func WithMaxTasks(n int) Option {
	return func(c *options) error {
		if n <= 0 {
			return fmt.Errorf("max tasks[%d]: %w", n, governor.ErrInvalidLimit)
		}
		c.maxTasks = n
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting of connection
// attempts with the given hops per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return func(c *options) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		c.throttle = &throttle.Config{RPS: rps, Burst: burst}
		return nil
	}
}

// WithMetrics records Prometheus metrics and registers the collectors
// with reg. A nil reg records without registering.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *options) error {
		c.registerer = reg
		c.metrics = true
		return nil
	}
}

// WithTracer injects the tracer used for fetch spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		c.tracer = tracer
		return nil
	}
}

// WithDialer replaces the *net.Dialer used to open connections.
func WithDialer(d conn.Dialer) Option {
	return func(c *options) error {
		if d == nil {
			return errors.New("dialer must not be nil")
		}
		c.dialer = d
		return nil
	}
}

// WithDefaults adds settings to the client-wide default layer. Later
// settings win.
func WithDefaults(s ...settings.Setting) Option {
	return func(c *options) error {
		c.defaults = append(c.defaults, s...)
		return nil
	}
}

// WithUserAgent replaces the default User-Agent header value.
func WithUserAgent(ua string) Option {
	return WithDefaults(settings.UserAgent(ua))
}

// WithConnectTimeout bounds the dial and TLS handshake of each hop.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("connect timeout must not be negative")
		}
		c.defaults = append(c.defaults, settings.ConnectTimeout(d))
		return nil
	}
}

// WithRequestTimeout bounds every fetch, including its redirects.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("request timeout must not be negative")
		}
		c.defaults = append(c.defaults, settings.RequestTimeout(d))
		return nil
	}
}

// WithNoFollowRedirects makes 3xx responses terminal.
func WithNoFollowRedirects() Option {
	return WithDefaults(settings.FollowRedirects(false))
}

// WithMaxRedirects caps how many redirects a fetch follows.
func WithMaxRedirects(n int) Option {
	return func(c *options) error {
		if n < 0 {
			return errors.New("max redirects must not be negative")
		}
		c.defaults = append(c.defaults, settings.MaxRedirects(n))
		return nil
	}
}
