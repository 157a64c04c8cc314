package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Response is a fully read HTTP response.
type Response struct {
	Proto      string
	StatusCode int
	Reason     string
	Header     Header
	Body       []byte

	// URL is the target of the hop that produced this response.
	URL URL
	// Redirects is the number of redirects followed before it.
	Redirects int
}

// Framing names the strategy used to find the end of a body.
type Framing int

const (
	FramingNone Framing = iota
	FramingContentLength
	FramingChunked
	FramingEOF
)

func (f Framing) String() string {
	switch f {
	case FramingContentLength:
		return "content-length"
	case FramingChunked:
		return "chunked"
	case FramingEOF:
		return "eof"
	default:
		return "none"
	}
}

// ReadResponse reads a complete response from br. method is the method
// of the request being answered; responses to HEAD carry no body.
func ReadResponse(br *bufio.Reader, method string) (*Response, error) {
	resp, err := ReadHead(br)
	if err != nil {
		return nil, err
	}

	if err := ReadBody(br, resp, method); err != nil {
		return nil, err
	}

	return resp, nil
}

// ReadHead reads the status line and the header block.
func ReadHead(br *bufio.Reader) (*Response, error) {
	line, err := readLine(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{Kind: KindUnexpectedEOF, Op: "read status line", Err: err}
		}
		return nil, fmt.Errorf("read status line: %w", err)
	}

	parts := splitStatusLine(line)
	if len(parts) != 3 || !isDigits(parts[1]) {
		return nil, &Error{Kind: KindMalformedStatusLine, Op: "read status line", Detail: strconv.Quote(line)}
	}

	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, &Error{Kind: KindMalformedStatusLine, Op: "read status line", Detail: strconv.Quote(line), Err: err}
	}

	header, err := readHeader(br)
	if err != nil {
		return nil, err
	}

	return &Response{
		Proto:      parts[0],
		StatusCode: code,
		Reason:     parts[2],
		Header:     header,
	}, nil
}

// ReadBody reads resp's body using the framing its headers select.
func ReadBody(br *bufio.Reader, resp *Response, method string) error {
	var (
		body []byte
		err  error
	)

	switch framing, n := BodyFraming(resp, method); framing {
	case FramingNone:
		return nil
	case FramingContentLength:
		body, err = readFixed(br, n)
	case FramingChunked:
		body, err = readChunked(br)
	case FramingEOF:
		body, err = io.ReadAll(br)
		if err != nil {
			err = fmt.Errorf("read body: %w", err)
		}
	}
	if err != nil {
		return err
	}

	resp.Body = body

	return nil
}

// BodyFraming decides how the body of resp is delimited. For
// FramingContentLength it also returns the declared length, or -1 when
// the header is unusable.
func BodyFraming(resp *Response, method string) (Framing, int64) {
	if method == "HEAD" || (resp.StatusCode >= 100 && resp.StatusCode < 200) ||
		resp.StatusCode == 204 || resp.StatusCode == 304 {
		return FramingNone, 0
	}

	if v, ok := resp.Header.Lookup("Content-Length"); ok {
		v = strings.TrimSpace(v)
		if !isDigits(v) {
			return FramingContentLength, -1
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return FramingContentLength, -1
		}
		return FramingContentLength, n
	}

	if strings.EqualFold(strings.TrimSpace(resp.Header.Get("Transfer-Encoding")), "chunked") {
		return FramingChunked, 0
	}

	return FramingEOF, 0
}

func readHeader(br *bufio.Reader) (Header, error) {
	var h Header
	for {
		line, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Header{}, &Error{Kind: KindUnexpectedEOF, Op: "read header", Err: err}
			}
			return Header{}, fmt.Errorf("read header: %w", err)
		}
		if line == "" {
			return h, nil
		}

		i := strings.IndexByte(line, ':')
		if i < 0 {
			return Header{}, &Error{Kind: KindMalformedHeader, Op: "read header", Detail: strconv.Quote(line)}
		}

		name := strings.TrimSpace(line[:i])
		if name == "" {
			return Header{}, &Error{Kind: KindMalformedHeader, Op: "read header", Detail: strconv.Quote(line)}
		}
		h.Set(name, strings.TrimLeft(line[i+1:], " \t"))
	}
}

func readFixed(br *bufio.Reader, n int64) ([]byte, error) {
	if n < 0 {
		return nil, &Error{Kind: KindMalformedHeader, Op: "read body", Detail: "invalid Content-Length"}
	}

	var buf bytes.Buffer
	buf.Grow(int(min(n, 64<<10)))

	if _, err := io.CopyN(&buf, br, n); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{
				Kind:   KindUnexpectedEOF,
				Op:     "read body",
				Detail: fmt.Sprintf("got %d of %d bytes", buf.Len(), n),
				Err:    io.ErrUnexpectedEOF,
			}
		}
		return nil, fmt.Errorf("read body: %w", err)
	}

	return buf.Bytes(), nil
}

// readLine reads one line and strips trailing whitespace, including the
// line terminator. A final unterminated line is returned without error;
// io.EOF is returned only when nothing was read.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) || line == "" {
			return "", err
		}
	}

	return strings.TrimRight(line, " \t\r\n"), nil
}

// splitStatusLine splits on the first two runs of whitespace.
func splitStatusLine(line string) []string {
	s := strings.TrimLeft(line, " \t")

	var parts []string
	for len(parts) < 2 {
		i := strings.IndexAny(s, " \t")
		if i < 0 {
			break
		}
		parts = append(parts, s[:i])
		s = strings.TrimLeft(s[i:], " \t")
	}
	if s != "" {
		parts = append(parts, s)
	}

	return parts
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}
