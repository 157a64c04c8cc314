package wire

import (
	"bytes"
	"fmt"
	"sync"

	"golang.org/x/net/http/httpguts"
)

const proto = "HTTP/1.0"

// Request is an HTTP/1.0 request ready to be written. Its fields must
// not be changed after the first call to Bytes.
type Request struct {
	Method       string
	PathAndQuery string
	Header       Header
	Body         []byte

	once sync.Once
	raw  []byte
}

// NewRequest serializes exactly the given method, path, headers and
// body. It adds no default headers.
func NewRequest(method, pathAndQuery string, header Header, body []byte) (*Request, error) {
	if method == "" {
		method = "GET"
	}
	if pathAndQuery == "" {
		pathAndQuery = "/"
	}

	if !httpguts.ValidHeaderFieldName(method) {
		return nil, &Error{Kind: KindInvalidHeader, Op: "build request", Detail: fmt.Sprintf("invalid method %q", method)}
	}

	var err error
	header.Each(func(name, value string) {
		if err != nil {
			return
		}
		switch {
		case !httpguts.ValidHeaderFieldName(name):
			err = &Error{Kind: KindInvalidHeader, Op: "build request", Detail: fmt.Sprintf("invalid name %q", name)}
		case !httpguts.ValidHeaderFieldValue(value):
			err = &Error{Kind: KindInvalidHeader, Op: "build request", Detail: fmt.Sprintf("invalid value for %s", name)}
		}
	})
	if err != nil {
		return nil, err
	}

	return &Request{
		Method:       method,
		PathAndQuery: pathAndQuery,
		Header:       header,
		Body:         body,
	}, nil
}

// BuildRequest prepares a request for u with the default client headers.
// Overrides replace defaults of the same name. No Content-Length is
// added; callers sending a body to a server that needs one must set it.
func BuildRequest(u URL, method string, overrides Header, body []byte, userAgent string) (*Request, error) {
	var h Header
	h.Set("Accept-Encoding", "identity")
	h.Set("Connection", "close")
	h.Set("Host", u.Authority)
	if userAgent != "" {
		h.Set("User-Agent", userAgent)
	}
	h.Merge(overrides)

	return NewRequest(method, u.PathAndQuery, h, body)
}

// Bytes returns the wire form of the request. It is computed once.
func (r *Request) Bytes() []byte {
	r.once.Do(func() {
		var buf bytes.Buffer
		buf.Grow(64 + len(r.Body))

		fmt.Fprintf(&buf, "%s %s %s\r\n", r.Method, r.PathAndQuery, proto)
		r.Header.Each(func(name, value string) {
			fmt.Fprintf(&buf, "%s: %s\r\n", name, value)
		})
		buf.WriteString("\r\n")
		buf.Write(r.Body)

		r.raw = buf.Bytes()
	})

	return r.raw
}
