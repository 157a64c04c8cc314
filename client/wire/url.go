package wire

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"

	defaultHTTPPort  = 80
	defaultHTTPSPort = 443
)

// URL is a normalized fetch target. It is a value type: a redirect
// produces a new URL rather than modifying the current one.
type URL struct {
	// Raw is the input after the default scheme was applied.
	Raw    string
	Scheme string
	// Host is the ASCII hostname without port or IPv6 brackets.
	Host string
	Port uint16
	TLS  bool
	// Authority is the value sent in the Host header.
	Authority    string
	PathAndQuery string
}

// ParseURL normalizes a bare host or a full URL. Inputs without "://"
// are treated as http.
func ParseURL(raw string) (URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = schemeHTTP + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return URL{}, &Error{Kind: KindInvalidURL, Op: "parse url", Detail: raw, Err: err}
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != schemeHTTP && scheme != schemeHTTPS {
		return URL{}, &Error{Kind: KindInvalidURL, Op: "parse url", Detail: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}

	host := u.Hostname()
	if host == "" {
		return URL{}, &Error{Kind: KindInvalidURL, Op: "parse url", Detail: fmt.Sprintf("no host in %q", raw)}
	}

	host, err = asciiHost(host)
	if err != nil {
		return URL{}, &Error{Kind: KindInvalidURL, Op: "parse url", Detail: raw, Err: err}
	}

	useTLS := scheme == schemeHTTPS

	port := uint16(defaultHTTPPort)
	if useTLS {
		port = defaultHTTPSPort
	}

	authority := host
	if strings.Contains(host, ":") {
		authority = "[" + host + "]"
	}

	if p := u.Port(); p != "" {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || n == 0 {
			return URL{}, &Error{Kind: KindInvalidURL, Op: "parse url", Detail: fmt.Sprintf("invalid port %q", p)}
		}
		port = uint16(n)
		authority = net.JoinHostPort(host, p)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	return URL{
		Raw:          raw,
		Scheme:       scheme,
		Host:         host,
		Port:         port,
		TLS:          useTLS,
		Authority:    authority,
		PathAndQuery: path,
	}, nil
}

// ResolveLocation resolves a redirect Location value against base.
// Absolute URLs are parsed as-is; anything else is treated as a
// reference relative to base.
func ResolveLocation(base URL, location string) (URL, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return URL{}, &Error{Kind: KindInvalidURL, Op: "resolve location", Err: ErrMissingLocation}
	}

	ref, err := url.Parse(location)
	if err != nil {
		return URL{}, &Error{Kind: KindInvalidURL, Op: "resolve location", Detail: location, Err: err}
	}
	if ref.IsAbs() {
		return ParseURL(location)
	}

	b, err := url.Parse(base.String())
	if err != nil {
		return URL{}, &Error{Kind: KindInvalidURL, Op: "resolve location", Detail: base.String(), Err: err}
	}

	return ParseURL(b.ResolveReference(ref).String())
}

// Address returns host:port for dialing.
func (u URL) Address() string {
	return net.JoinHostPort(u.Host, strconv.Itoa(int(u.Port)))
}

// String rebuilds the URL from its normalized parts.
func (u URL) String() string {
	return u.Scheme + "://" + u.Authority + u.PathAndQuery
}

// asciiHost converts internationalized hostnames to punycode and
// leaves ASCII hosts and IP literals untouched.
func asciiHost(host string) (string, error) {
	if isASCII(host) {
		return strings.ToLower(host), nil
	}

	return idna.Lookup.ToASCII(host)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}

	return true
}
