package client

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/asynclient/client/conn"
	"github.com/adamwoolhether/asynclient/client/download"
	"github.com/adamwoolhether/asynclient/client/governor"
	"github.com/adamwoolhether/asynclient/client/metrics"
	"github.com/adamwoolhether/asynclient/client/settings"
	"github.com/adamwoolhether/asynclient/client/throttle"
	"github.com/adamwoolhether/asynclient/client/wire"
)

// Client runs HTTP/1.0 fetches, at most MaxTasks at a time. It is safe
// for concurrent use.
type Client struct {
	fetcher  *conn.Fetcher
	governor *governor.Governor
	defaults settings.Layer
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *metrics.Metrics
}

// Build constructs a Client from the given options.
func Build(optFns ...Option) (*Client, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	client := &Client{
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("no-op tracer"),
	}

	if opts.logger != nil {
		client.logger = opts.logger
	}

	if opts.tracer != nil {
		client.tracer = opts.tracer
	}

	if opts.metrics {
		client.metrics = metrics.New(opts.registerer)
	}

	maxTasks := DefaultMaxTasks
	if opts.maxTasks > 0 {
		maxTasks = opts.maxTasks
	}
	gov, err := governor.New(maxTasks)
	if err != nil {
		return nil, fmt.Errorf("configuring governor: %w", err)
	}
	client.governor = gov

	defaults := settings.New(settings.UserAgent(DefaultUserAgent)).With(opts.defaults...)
	if _, err := defaults.Resolve(); err != nil {
		return nil, fmt.Errorf("validating default settings: %w", err)
	}
	client.defaults = defaults

	var dialer conn.Dialer = &net.Dialer{}
	if opts.dialer != nil {
		dialer = opts.dialer
	}

	client.fetcher = &conn.Fetcher{
		Dialer: dialer,
		Logger: client.logger,
		OnHop: func(h conn.Hop) {
			client.metrics.HopDone(h.StatusCode, h.Err)
		},
	}

	if opts.throttle != nil {
		lim, err := throttle.FromConfig(*opts.throttle, func() *slog.Logger { return client.logger })
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		client.fetcher.Limiter = lim
	}

	return client, nil
}

// Fetch merges s over the client defaults and runs the fetch. 2xx
// responses, and 3xx responses when redirects are not followed, are
// returned; every other outcome is a *wire.Error.
func (c *Client) Fetch(ctx context.Context, target string, s ...settings.Setting) (*Response, error) {
	return c.fetch(ctx, target, settings.New(s...))
}

// FetchLayer is Fetch with a prebuilt per-call Layer, such as one
// produced by settings.From.
func (c *Client) FetchLayer(ctx context.Context, target string, call settings.Layer) (*Response, error) {
	return c.fetch(ctx, target, call)
}

// Get fetches target with method GET, whatever method s sets.
func (c *Client) Get(ctx context.Context, target string, s ...settings.Setting) (*Response, error) {
	return c.fetch(ctx, target, settings.New(s...).With(settings.Method("GET")))
}

// Post fetches target with method POST, whatever method s sets.
func (c *Client) Post(ctx context.Context, target string, s ...settings.Setting) (*Response, error) {
	return c.fetch(ctx, target, settings.New(s...).With(settings.Method("POST")))
}

// Download GETs target and writes the body to destPath. Data is
// written to a temp file in the same directory, then renamed to
// destPath on success or removed on failure. A body shorter than its
// Content-Length fails while reading with ErrUnexpectedEOF, before
// anything is written.
func (c *Client) Download(ctx context.Context, target, destPath string, opts ...DownloadOption) error {
	if destPath == "" {
		return download.ErrEmptyPath
	}

	if download.SkipExisting(opts...) {
		if _, err := os.Stat(destPath); err == nil {
			c.logger.Info("skipping existing file", "path", destPath, "url", target)
			return nil
		}
	}

	resp, err := c.Get(ctx, target)
	if err != nil {
		return err
	}

	if err := download.Handle(ctx, bytes.NewReader(resp.Body), -1, destPath, c.logger, opts...); err != nil {
		return fmt.Errorf("download: %w", err)
	}

	return nil
}

// Defaults returns the client-wide default settings layer.
func (c *Client) Defaults() settings.Layer {
	return c.defaults
}

// InUse is the number of fetches currently holding a governor slot.
func (c *Client) InUse() int {
	return c.governor.InUse()
}

// MaxTasks is the governor capacity.
func (c *Client) MaxTasks() int {
	return c.governor.Limit()
}

// Metrics returns the client's collectors, or nil when WithMetrics was
// not given.
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

func (c *Client) fetch(ctx context.Context, target string, call settings.Layer) (*Response, error) {
	id := uuid.NewString()
	logger := c.logger.With("request_id", id)

	if dropped := call.Dropped(); len(dropped) > 0 {
		logger.Debug("dropping unknown settings", "keys", dropped)
	}

	cfg, err := c.defaults.Merge(call).Resolve()
	if err != nil {
		return nil, fmt.Errorf("resolving settings: %w", err)
	}

	ctx, span := c.tracer.Start(ctx, "asynclient.fetch", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("request_id", id),
		attribute.String("http.method", cfg.Method),
		attribute.String("url", target),
	)

	start := time.Now()
	resp, err := c.run(ctx, target, cfg, logger)
	took := time.Since(start)

	c.metrics.FetchDone(cfg.Method, took, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, wire.KindOf(err).String())
		logger.Debug("fetch failed", "url", target, "took", took, "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.Int("redirects", resp.Redirects),
	)
	logger.Debug("fetch complete", "url", target, "status", resp.StatusCode, "redirects", resp.Redirects, "took", took)

	return resp, nil
}

// run holds a governor slot for the duration of the fetch. The request
// timeout starts once the slot is acquired.
func (c *Client) run(ctx context.Context, target string, cfg settings.Config, logger *slog.Logger) (*Response, error) {
	waitStart := time.Now()
	if err := c.governor.Acquire(ctx); err != nil {
		return nil, &wire.Error{Kind: wire.ContextKind(err), Op: "acquire slot", Err: err}
	}
	c.metrics.SlotAcquired(time.Since(waitStart))
	defer func() {
		c.governor.Release()
		c.metrics.SlotReleased()
	}()

	if cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
	}

	header := cfg.Headers.Clone()
	otel.GetTextMapPropagator().Inject(ctx, &header)

	fetcher := *c.fetcher
	fetcher.Logger = logger

	return fetcher.Fetch(ctx, target, conn.Options{
		Method:          cfg.Method,
		Header:          header,
		Body:            cfg.Body,
		UserAgent:       cfg.UserAgent,
		ConnectTimeout:  cfg.ConnectTimeout,
		FollowRedirects: cfg.FollowRedirects,
		MaxRedirects:    cfg.MaxRedirects,
	})
}
