package conn

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// rawServer is a TCP server that answers each connection with whatever
// handler returns for the request head, then closes the connection.
type rawServer struct {
	ln       net.Listener
	handler  func(n int, head string) string
	conns    atomic.Int32
	mu       sync.Mutex
	requests []string
	wg       sync.WaitGroup
}

func newRawServer(t *testing.T, handler func(n int, head string) string) *rawServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &rawServer{ln: ln, handler: handler}
	s.wg.Add(1)
	go s.serve()

	t.Cleanup(func() {
		_ = ln.Close()
		s.wg.Wait()
	})

	return s
}

// staticServer answers every connection with the responses in order,
// repeating the last one once they run out.
func staticServer(t *testing.T, responses ...string) *rawServer {
	t.Helper()

	return newRawServer(t, func(n int, _ string) string {
		if n >= len(responses) {
			return responses[len(responses)-1]
		}
		return responses[n]
	})
}

func (s *rawServer) serve() {
	defer s.wg.Done()
	for {
		nc, err := s.ln.Accept()
		if err != nil {
			return
		}

		n := int(s.conns.Add(1)) - 1
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer nc.Close()
			s.handle(n, nc)
		}()
	}
}

func (s *rawServer) handle(n int, nc net.Conn) {
	br := bufio.NewReader(nc)

	var head strings.Builder
	contentLength := 0
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		head.WriteString(line)
		if line == "\r\n" {
			break
		}
		if k, v, ok := strings.Cut(line, ":"); ok && strings.EqualFold(k, "Content-Length") {
			contentLength, _ = strconv.Atoi(strings.TrimSpace(v))
		}
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(br, body); err != nil {
		return
	}

	req := head.String() + string(body)
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	resp := s.handler(n, req)
	if resp == "" {
		// Hold the connection open until the client goes away.
		_, _ = io.Copy(io.Discard, br)
		return
	}

	_, _ = io.WriteString(nc, resp)
}

func (s *rawServer) addr() string {
	return s.ln.Addr().String()
}

func (s *rawServer) url(path string) string {
	return "http://" + s.addr() + path
}

func (s *rawServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.requests))
	copy(out, s.requests)

	return out
}

func (s *rawServer) connections() int {
	return int(s.conns.Load())
}

// requestLine returns the first line of a recorded request.
func requestLine(req string) string {
	line, _, _ := strings.Cut(req, "\r\n")
	return line
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
