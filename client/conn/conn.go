package conn

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	"github.com/adamwoolhether/asynclient/client/wire"
)

// State is the position of a Conn in its single hop.
type State int

const (
	StateConnecting State = iota
	StateSending
	StateReceivingHeaders
	StateReceivingBody
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSending:
		return "sending"
	case StateReceivingHeaders:
		return "receiving_headers"
	case StateReceivingBody:
		return "receiving_body"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Dialer opens the TCP connection for a hop. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

var errConnectTimeout = errors.New("connect timeout elapsed")

// Conn owns the socket of exactly one hop. It is not safe for
// concurrent use.
type Conn struct {
	url   wire.URL
	nc    net.Conn
	br    *bufio.Reader
	state State
	stop  func() bool
}

// New returns an unconnected Conn for u in StateConnecting.
func New(u wire.URL) *Conn {
	return &Conn{url: u, state: StateConnecting}
}

// Dial connects to u, performing the TLS handshake when u requires it.
// connectTimeout bounds the dial and handshake only; zero means no
// limit beyond ctx. The returned Conn is closed when ctx ends.
func Dial(ctx context.Context, d Dialer, u wire.URL, connectTimeout time.Duration) (*Conn, error) {
	c := New(u)
	if err := c.Connect(ctx, d, connectTimeout); err != nil {
		return nil, err
	}

	return c, nil
}

// Connect dials the hop's target and moves c to StateSending, or to
// StateFailed when the dial or handshake fails.
func (c *Conn) Connect(ctx context.Context, d Dialer, connectTimeout time.Duration) error {
	if c.state != StateConnecting {
		return &wire.Error{Kind: wire.KindConnection, Op: "dial", Detail: "conn is " + c.state.String()}
	}

	dctx := ctx
	if connectTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeoutCause(ctx, connectTimeout, errConnectTimeout)
		defer cancel()
	}

	nc, err := d.DialContext(dctx, "tcp", c.url.Address())
	if err != nil {
		c.state = StateFailed
		return dialError(ctx, dctx, err)
	}

	if c.url.TLS {
		tc := tls.Client(nc, &tls.Config{ServerName: c.url.Host})
		if err := tc.HandshakeContext(dctx); err != nil {
			_ = nc.Close()
			c.state = StateFailed
			return dialError(ctx, dctx, err)
		}
		nc = tc
	}

	c.nc = nc
	c.br = bufio.NewReader(nc)
	c.state = StateSending
	c.stop = context.AfterFunc(ctx, func() { _ = nc.Close() })

	return nil
}

// Send writes the serialized request. Partial writes are not retried.
func (c *Conn) Send(ctx context.Context, req *wire.Request) error {
	if c.nc == nil {
		return c.fail(ctx, "write request", net.ErrClosed)
	}

	c.state = StateSending
	if _, err := c.nc.Write(req.Bytes()); err != nil {
		return c.fail(ctx, "write request", err)
	}

	return nil
}

// Receive reads the complete response to a request sent with method.
func (c *Conn) Receive(ctx context.Context, method string) (*wire.Response, error) {
	if c.br == nil {
		return nil, c.fail(ctx, "read response head", net.ErrClosed)
	}

	c.state = StateReceivingHeaders
	resp, err := wire.ReadHead(c.br)
	if err != nil {
		return nil, c.fail(ctx, "read response head", err)
	}

	c.state = StateReceivingBody
	if err := wire.ReadBody(c.br, resp, method); err != nil {
		return nil, c.fail(ctx, "read response body", err)
	}

	c.state = StateDone
	resp.URL = c.url

	return resp, nil
}

// State returns the current state.
func (c *Conn) State() State {
	return c.state
}

// URL returns the target of this hop.
func (c *Conn) URL() wire.URL {
	return c.url
}

// Close releases the socket. Closing twice is harmless.
func (c *Conn) Close() error {
	if c.stop != nil {
		c.stop()
	}
	if c.nc == nil {
		return nil
	}

	if err := c.nc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}

	return nil
}

// fail moves the Conn to StateFailed and classifies err. An ended
// context takes priority: the socket was closed because of it.
func (c *Conn) fail(ctx context.Context, op string, err error) error {
	c.state = StateFailed

	if ctxErr := ctx.Err(); ctxErr != nil {
		return &wire.Error{Kind: wire.ContextKind(ctxErr), Op: op, Err: err}
	}

	var werr *wire.Error
	if errors.As(err, &werr) {
		return werr
	}

	return &wire.Error{Kind: wire.KindConnection, Op: op, Err: err}
}

func dialError(ctx, dctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &wire.Error{Kind: wire.ContextKind(ctxErr), Op: "dial", Err: err}
	}

	if errors.Is(context.Cause(dctx), errConnectTimeout) {
		return &wire.Error{Kind: wire.KindConnectTimeout, Op: "dial", Err: err}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &wire.Error{Kind: wire.KindConnectTimeout, Op: "dial", Err: err}
	}

	return &wire.Error{Kind: wire.KindConnection, Op: "dial", Err: err}
}
