package client_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"

	"github.com/adamwoolhether/asynclient/client"
	"github.com/adamwoolhether/asynclient/client/settings"
)

func build(t *testing.T, opts ...client.Option) *client.Client {
	t.Helper()

	opts = append([]client.Option{client.WithLogger(slog.New(slog.DiscardHandler))}, opts...)
	c, err := client.Build(opts...)
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}

	return c
}

func TestClient_Get(t *testing.T) {
	reqs := make(chan *http.Request, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs <- r.Clone(context.Background())
		w.Header().Set("X-Reply", "yes")
		fmt.Fprint(w, "hello")
	}))
	defer ts.Close()

	c := build(t)
	resp, err := c.Get(t.Context(), ts.URL+"/path?q=1")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if resp.StatusCode != http.StatusOK || string(resp.Body) != "hello" {
		t.Errorf("unexpected response: %d %q", resp.StatusCode, resp.Body)
	}
	if resp.Header.Get("x-reply") != "yes" {
		t.Errorf("response header missing: %v", resp.Header.Map())
	}

	got := <-reqs
	if got.Proto != "HTTP/1.0" {
		t.Errorf("expected HTTP/1.0, got %s", got.Proto)
	}
	if got.URL.RequestURI() != "/path?q=1" {
		t.Errorf("unexpected request uri %q", got.URL.RequestURI())
	}

	exp := map[string]string{
		"User-Agent":      client.DefaultUserAgent,
		"Accept-Encoding": "identity",
		"Connection":      "close",
	}
	for k, v := range exp {
		if got.Header.Get(k) != v {
			t.Errorf("expected %s %q, got %q", k, v, got.Header.Get(k))
		}
	}
}

func TestClient_WithUserAgent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.Header.Get("User-Agent"))
	}))
	defer ts.Close()

	c := build(t, client.WithUserAgent("TestUserAgent/1.0"))

	testCases := []struct {
		name     string
		settings []client.Setting
		expUA    string
	}{
		{name: "client default", expUA: "TestUserAgent/1.0"},
		{name: "per call wins", settings: []client.Setting{client.UserAgent("PerCall/2.0")}, expUA: "PerCall/2.0"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := c.Get(t.Context(), ts.URL, tc.settings...)
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if string(resp.Body) != tc.expUA {
				t.Errorf("expected User-Agent %q, got %q", tc.expUA, resp.Body)
			}
		})
	}
}

func TestClient_PostForcesMethod(t *testing.T) {
	type seen struct {
		method string
		body   string
		ctype  string
	}
	seenc := make(chan seen, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seenc <- seen{method: r.Method, body: string(b), ctype: r.Header.Get("Content-Type")}
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	payload := `{"name":"alice"}`
	c := build(t)
	resp, err := c.Post(t.Context(), ts.URL,
		client.Method("PUT"),
		client.Headers(map[string]string{
			"Content-Type":   "application/json",
			"Content-Length": fmt.Sprint(len(payload)),
		}),
		client.BodyString(payload),
	)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("expected 201, got %d", resp.StatusCode)
	}

	exp := seen{method: http.MethodPost, body: payload, ctype: "application/json"}
	if diff := cmp.Diff(exp, <-seenc, cmp.AllowUnexported(seen{})); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_Redirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/middle", http.StatusFound)
	})
	mux.HandleFunc("/middle", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "arrived")
	})
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	testCases := []struct {
		name         string
		opts         []client.Option
		settings     []client.Setting
		path         string
		expCode      int
		expRedirects int
		expBody      string
		expErr       error
	}{
		{
			name:         "followed",
			path:         "/start",
			expCode:      http.StatusOK,
			expRedirects: 2,
			expBody:      "arrived",
		},
		{
			name:    "client disables",
			opts:    []client.Option{client.WithNoFollowRedirects()},
			path:    "/start",
			expCode: http.StatusFound,
		},
		{
			name:     "call disables",
			settings: []client.Setting{client.FollowRedirects(false)},
			path:     "/middle",
			expCode:  http.StatusMovedPermanently,
		},
		{
			name:   "loop exhausts default cap",
			path:   "/loop",
			expErr: client.ErrTooManyRedirects,
		},
		{
			name:   "client cap",
			opts:   []client.Option{client.WithMaxRedirects(1)},
			path:   "/start",
			expErr: client.ErrTooManyRedirects,
		},
		{
			name:         "call cap over client cap",
			opts:         []client.Option{client.WithMaxRedirects(1)},
			settings:     []client.Setting{client.MaxRedirects(2)},
			path:         "/start",
			expCode:      http.StatusOK,
			expRedirects: 2,
			expBody:      "arrived",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := build(t, tc.opts...)

			resp, err := c.Get(t.Context(), ts.URL+tc.path, tc.settings...)
			if tc.expErr != nil {
				if !errors.Is(err, tc.expErr) {
					t.Fatalf("expected %v, got: %v", tc.expErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}

			if resp.StatusCode != tc.expCode {
				t.Errorf("expected status %d, got %d", tc.expCode, resp.StatusCode)
			}
			if resp.Redirects != tc.expRedirects {
				t.Errorf("expected %d redirects, got %d", tc.expRedirects, resp.Redirects)
			}
			if tc.expBody != "" && string(resp.Body) != tc.expBody {
				t.Errorf("expected body %q, got %q", tc.expBody, resp.Body)
			}
		})
	}
}

func TestClient_HTTPStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nothing here", http.StatusNotFound)
	}))
	defer ts.Close()

	c := build(t)
	_, err := c.Get(t.Context(), ts.URL)

	var cerr *client.Error
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *client.Error, got: %v", err)
	}
	if cerr.Kind != client.KindHTTPStatus || cerr.StatusCode != http.StatusNotFound || cerr.Reason != "Not Found" {
		t.Errorf("unexpected error: %+v", cerr)
	}
	if !strings.Contains(cerr.Body, "nothing here") {
		t.Errorf("expected body in error, got %q", cerr.Body)
	}
	if client.IsTimeout(err) {
		t.Error("status errors are not timeouts")
	}
	if c.InUse() != 0 {
		t.Errorf("slot not released after status error, in use: %d", c.InUse())
	}
}

func TestClient_RequestTimeout(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer ts.Close()
	defer close(release)

	c := build(t, client.WithRequestTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := c.Get(t.Context(), ts.URL)
	if !errors.Is(err, client.ErrRequestTimeout) {
		t.Fatalf("expected ErrRequestTimeout, got: %v", err)
	}
	if !client.IsTimeout(err) {
		t.Error("expected a timeout kind")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
	if c.InUse() != 0 {
		t.Errorf("slot not released after timeout, in use: %d", c.InUse())
	}
}

func TestClient_GovernorBoundsConcurrency(t *testing.T) {
	const maxTasks = 2

	var running, peak atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, r.URL.Path)
	}))
	defer ts.Close()

	c := build(t, client.WithMaxTasks(maxTasks))

	var pending []*client.Pending
	for i := range 8 {
		pending = append(pending, c.Go(t.Context(), fmt.Sprintf("%s/%d", ts.URL, i)))
	}

	resps, err := client.Gather(t.Context(), pending...)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	for i, resp := range resps {
		if exp := fmt.Sprintf("/%d", i); string(resp.Body) != exp {
			t.Errorf("result %d out of order: got %q", i, resp.Body)
		}
	}
	if got := peak.Load(); got > maxTasks {
		t.Errorf("expected at most %d concurrent fetches, observed %d", maxTasks, got)
	}
	if c.InUse() != 0 || c.MaxTasks() != maxTasks {
		t.Errorf("unexpected governor state: in use %d, max %d", c.InUse(), c.MaxTasks())
	}
}

func TestGather_JoinsErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer ts.Close()

	c := build(t)
	good := c.Go(t.Context(), ts.URL+"/good")
	bad := c.Go(t.Context(), ts.URL+"/bad")
	invalid := c.Go(t.Context(), "ftp://nope")

	resps, err := client.Gather(t.Context(), good, bad, invalid)
	if !errors.Is(err, client.ErrHTTPStatus) || !errors.Is(err, client.ErrInvalidURL) {
		t.Fatalf("expected joined status and url errors, got: %v", err)
	}
	if len(resps) != 3 || resps[0] == nil || resps[1] != nil || resps[2] != nil {
		t.Errorf("unexpected responses: %v", resps)
	}
	if !strings.Contains(err.Error(), ts.URL+"/bad") {
		t.Errorf("expected target in error, got: %v", err)
	}
}

func TestPending_Cancel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	c := build(t)
	p := c.GoGet(t.Context(), ts.URL)
	time.AfterFunc(20*time.Millisecond, p.Cancel)

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled fetch did not finish")
	}

	if _, err := p.Wait(); !errors.Is(err, client.ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got: %v", err)
	}
	if p.Target() != ts.URL {
		t.Errorf("unexpected target %q", p.Target())
	}
}

func TestGather_ContextEnds(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	c := build(t)
	p := c.Go(context.Background(), ts.URL)

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()

	if _, err := client.Gather(ctx, p); !errors.Is(err, client.ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got: %v", err)
	}
}

func TestClient_InvalidInput(t *testing.T) {
	c := build(t)

	testCases := []struct {
		name     string
		target   string
		settings []client.Setting
		expErr   error
	}{
		{name: "bad scheme", target: "ftp://example.com", expErr: client.ErrInvalidURL},
		{name: "no host", target: "http://", expErr: client.ErrInvalidURL},
		{name: "header injection", target: "example.com", settings: []client.Setting{client.WithHeader("X-Evil", "a\r\nInjected: 1")}, expErr: client.ErrInvalidHeader},
		{name: "bad header name", target: "example.com", settings: []client.Setting{client.WithHeader("Bad Name", "v")}, expErr: client.ErrInvalidHeader},
		{name: "negative redirects", target: "example.com", settings: []client.Setting{client.MaxRedirects(-1)}, expErr: client.ErrInvalidConfig},
		{name: "bad timeout", target: "example.com", settings: []client.Setting{settings.Raw("request_timeout", "later")}, expErr: client.ErrInvalidConfig},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Fetch(t.Context(), tc.target, tc.settings...)
			if !errors.Is(err, tc.expErr) {
				t.Fatalf("expected %v, got: %v", tc.expErr, err)
			}
			if c.InUse() != 0 {
				t.Errorf("slot held after invalid input: %d", c.InUse())
			}
		})
	}
}

func TestClient_UnknownSettingsDropped(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Keep") != "1" {
			t.Errorf("expected X-Keep header, got %v", r.Header)
		}
	}))
	defer ts.Close()

	call := settings.From(map[string]any{
		"headers": map[string]string{"X-Keep": "1"},
		"proxy":   "http://proxy:3128",
		"cookies": map[string]string{"a": "b"},
	})

	c := build(t)
	if _, err := c.FetchLayer(t.Context(), ts.URL, call); err != nil {
		t.Fatalf("unknown keys must not fail the fetch: %v", err)
	}
}

func TestBuild_InvalidOptions(t *testing.T) {
	testCases := []struct {
		name string
		opt  client.Option
	}{
		{name: "zero max tasks", opt: client.WithMaxTasks(0)},
		{name: "nil logger", opt: client.WithLogger(nil)},
		{name: "zero throttle", opt: client.WithThrottle(0, 1)},
		{name: "nil tracer", opt: client.WithTracer(nil)},
		{name: "nil dialer", opt: client.WithDialer(nil)},
		{name: "negative connect timeout", opt: client.WithConnectTimeout(-time.Second)},
		{name: "negative request timeout", opt: client.WithRequestTimeout(-time.Second)},
		{name: "negative redirects", opt: client.WithMaxRedirects(-1)},
		{name: "invalid default", opt: client.WithDefaults(settings.Method(""))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := client.Build(tc.opt); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestClient_WithThrottle(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer ts.Close()

	c := build(t, client.WithThrottle(20, 1))

	start := time.Now()
	var pending []*client.Pending
	for range 3 {
		pending = append(pending, c.Go(t.Context(), ts.URL))
	}
	if _, err := client.Gather(t.Context(), pending...); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	// One burst token, then two waits of 50ms each.
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("throttle did not slow fetches, took %v", elapsed)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestClient_Download(t *testing.T) {
	const content = "file contents"
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/short" {
			nc, _, err := http.NewResponseController(w).Hijack()
			if err != nil {
				return
			}
			defer nc.Close()
			fmt.Fprintf(nc, "HTTP/1.0 200 OK\r\nContent-Length: %d\r\n\r\n%s", len(content)+10, content)
			return
		}
		fmt.Fprint(w, content)
	}))
	defer ts.Close()

	sum := sha256.Sum256([]byte(content))
	good := hex.EncodeToString(sum[:])

	testCases := []struct {
		name   string
		path   string
		opts   []client.DownloadOption
		expErr error
	}{
		{name: "plain"},
		{name: "short body", path: "/short", expErr: client.ErrUnexpectedEOF},
		{name: "checksum", opts: []client.DownloadOption{client.WithChecksum(sha256.New(), good)}},
		{name: "checksum mismatch", opts: []client.DownloadOption{client.WithChecksum(sha256.New(), strings.Repeat("0", 64))}, expErr: client.ErrChecksumMismatch},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "file.txt")

			c := build(t)
			err := c.Download(t.Context(), ts.URL+tc.path, dest, tc.opts...)
			if !errors.Is(err, tc.expErr) {
				t.Fatalf("expected %v, got: %v", tc.expErr, err)
			}

			got, readErr := os.ReadFile(dest)
			if tc.expErr != nil {
				if !errors.Is(readErr, os.ErrNotExist) {
					t.Errorf("destination should not exist, got: %v", readErr)
				}
				return
			}
			if string(got) != content {
				t.Errorf("expected %q, got %q", content, got)
			}
		})
	}
}

func TestClient_DownloadSkipExisting(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, "new")
	}))
	defer ts.Close()

	dest := filepath.Join(t.TempDir(), "exists.txt")
	if err := os.WriteFile(dest, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}

	c := build(t)
	if err := c.Download(t.Context(), ts.URL, dest, client.WithSkipExisting()); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if calls.Load() != 0 {
		t.Error("skip existing should not connect")
	}

	got, _ := os.ReadFile(dest)
	if string(got) != "old" {
		t.Errorf("file overwritten: %q", got)
	}
}

func TestClient_WithMetrics(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	reg := prometheus.NewRegistry()
	c := build(t, client.WithMetrics(reg))

	_, _ = c.Get(t.Context(), ts.URL)
	_, _ = c.Get(t.Context(), ts.URL+"/missing")

	m := c.Metrics()
	if got := testutil.ToFloat64(m.FetchesTotal.WithLabelValues("GET", "ok")); got != 1 {
		t.Errorf("expected 1 ok fetch, got %v", got)
	}
	if got := testutil.ToFloat64(m.FetchesTotal.WithLabelValues("GET", "http_status")); got != 1 {
		t.Errorf("expected 1 http_status fetch, got %v", got)
	}
	if got := testutil.ToFloat64(m.HopsTotal.WithLabelValues("4xx")); got != 1 {
		t.Errorf("expected 1 4xx hop, got %v", got)
	}
	if got := testutil.ToFloat64(m.InFlight); got != 0 {
		t.Errorf("expected nothing in flight, got %v", got)
	}
}

// passthroughTracer starts no spans of its own; the parent span
// context flows through unchanged.
type passthroughTracer struct {
	embedded.Tracer
}

func (passthroughTracer) Start(ctx context.Context, _ string, _ ...trace.SpanStartOption) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

func TestClient_PropagatesTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceparents := make(chan string, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparents <- r.Header.Get("Traceparent")
	}))
	defer ts.Close()

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(t.Context(), sc)

	c := build(t, client.WithTracer(passthroughTracer{}))
	if _, err := c.Get(ctx, ts.URL); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	exp := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	if traceparent := <-traceparents; traceparent != exp {
		t.Errorf("expected traceparent %q, got %q", exp, traceparent)
	}
}
