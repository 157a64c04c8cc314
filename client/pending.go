package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/adamwoolhether/asynclient/client/settings"
)

// Pending is a fetch running in its own goroutine.
type Pending struct {
	target string
	done   chan struct{}
	resp   *Response
	err    error
	cancel context.CancelFunc
}

// Go starts Fetch in a new goroutine and returns immediately. The fetch
// still waits for a governor slot like any other.
func (c *Client) Go(ctx context.Context, target string, s ...settings.Setting) *Pending {
	return c.start(ctx, target, func(ctx context.Context) (*Response, error) {
		return c.Fetch(ctx, target, s...)
	})
}

// GoGet is Go with method GET.
func (c *Client) GoGet(ctx context.Context, target string, s ...settings.Setting) *Pending {
	return c.start(ctx, target, func(ctx context.Context) (*Response, error) {
		return c.Get(ctx, target, s...)
	})
}

// GoPost is Go with method POST.
func (c *Client) GoPost(ctx context.Context, target string, s ...settings.Setting) *Pending {
	return c.start(ctx, target, func(ctx context.Context) (*Response, error) {
		return c.Post(ctx, target, s...)
	})
}

func (c *Client) start(ctx context.Context, target string, fn func(context.Context) (*Response, error)) *Pending {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pending{
		target: target,
		done:   make(chan struct{}),
		cancel: cancel,
	}

	go func() {
		defer func() {
			cancel()
			close(p.done)
		}()

		p.resp, p.err = fn(ctx)
	}()

	return p
}

// Target is the URL or host the fetch was started with.
func (p *Pending) Target() string { return p.target }

// Done returns a channel that is closed when the fetch completes.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the fetch completes and returns its outcome.
func (p *Pending) Wait() (*Response, error) {
	<-p.done
	return p.resp, p.err
}

// Cancel cancels the fetch's context. The socket is closed and the
// governor slot released; Wait then reports KindCanceled.
func (p *Pending) Cancel() {
	p.cancel()
}

// Gather waits for every pending fetch and returns the responses in
// argument order. A failed fetch leaves a nil entry, and its error,
// prefixed with the target, is joined into the returned error. If ctx
// ends first, the remaining fetches are cancelled and still waited for.
func Gather(ctx context.Context, pending ...*Pending) ([]*Response, error) {
	stop := context.AfterFunc(ctx, func() {
		for _, p := range pending {
			p.Cancel()
		}
	})
	defer stop()

	resps := make([]*Response, len(pending))
	var errs []error
	for i, p := range pending {
		resp, err := p.Wait()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.target, err))
			continue
		}
		resps[i] = resp
	}

	return resps, errors.Join(errs...)
}
