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

// readChunked decodes a Transfer-Encoding: chunked body. Chunk
// extensions and trailer fields are read and discarded.
func readChunked(br *bufio.Reader) ([]byte, error) {
	var body bytes.Buffer
	for {
		size, err := readChunkSize(br)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			break
		}

		if _, err := io.CopyN(&body, br, size); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &Error{
					Kind:   KindUnexpectedEOF,
					Op:     "read chunk",
					Detail: fmt.Sprintf("chunk of %d bytes truncated", size),
					Err:    io.ErrUnexpectedEOF,
				}
			}
			return nil, fmt.Errorf("read chunk: %w", err)
		}

		if err := expectCRLF(br); err != nil {
			return nil, err
		}
	}

	if err := discardTrailers(br); err != nil {
		return nil, err
	}

	return body.Bytes(), nil
}

func readChunkSize(br *bufio.Reader) (int64, error) {
	line, err := readLine(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, &Error{Kind: KindUnexpectedEOF, Op: "read chunk size", Err: io.ErrUnexpectedEOF}
		}
		return 0, fmt.Errorf("read chunk size: %w", err)
	}

	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)

	if !isHexDigits(line) {
		return 0, &Error{Kind: KindChunkedFraming, Op: "read chunk size", Detail: strconv.Quote(line)}
	}
	n, err := strconv.ParseInt(line, 16, 64)
	if err != nil {
		return 0, &Error{Kind: KindChunkedFraming, Op: "read chunk size", Detail: strconv.Quote(line), Err: err}
	}

	return n, nil
}

func expectCRLF(br *bufio.Reader) error {
	var crlf [2]byte
	n, err := io.ReadFull(br, crlf[:])
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return &Error{Kind: KindChunkedFraming, Op: "read chunk", Detail: fmt.Sprintf("missing CRLF after chunk, got %q", crlf[:n])}
		}
		return fmt.Errorf("read chunk: %w", err)
	}
	if crlf[0] != '\r' || crlf[1] != '\n' {
		return &Error{Kind: KindChunkedFraming, Op: "read chunk", Detail: fmt.Sprintf("expected CRLF after chunk, got %q", crlf[:])}
	}

	return nil
}

// discardTrailers consumes trailer lines up to the terminating blank
// line. A peer that closes right after the last chunk is accepted.
func discardTrailers(br *bufio.Reader) error {
	for {
		line, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read trailer: %w", err)
		}
		if line == "" {
			return nil
		}
	}
}

func isHexDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}

	return true
}
