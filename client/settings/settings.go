// Package settings holds the whitelisted, mergeable settings of a
// fetch and resolves them into a validated Config.
//
// A Layer is immutable once built. The facade keeps one Layer of client
// defaults and merges a per-call Layer over it:
//
//	defaults := settings.New(settings.UserAgent("me/1.0"), settings.MaxRedirects(3))
//	call := settings.New(settings.Method("POST"), settings.BodyString("a=1"))
//	cfg, err := defaults.Merge(call).Resolve()
package settings

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/adamwoolhether/asynclient/client/wire"
)

// Whitelisted keys.
const (
	KeyMethod          = "method"
	KeyHeaders         = "headers"
	KeyBody            = "body"
	KeyUserAgent       = "user_agent"
	KeyConnectTimeout  = "connect_timeout"
	KeyRequestTimeout  = "request_timeout"
	KeyFollowRedirects = "follow_redirects"
	KeyMaxRedirects    = "max_redirects"
)

// Defaults applied by Resolve for keys no layer sets.
const (
	DefaultMethod       = "GET"
	DefaultMaxRedirects = 5
)

var whitelist = map[string]bool{
	KeyMethod:          true,
	KeyHeaders:         true,
	KeyBody:            true,
	KeyUserAgent:       true,
	KeyConnectTimeout:  true,
	KeyRequestTimeout:  true,
	KeyFollowRedirects: true,
	KeyMaxRedirects:    true,
}

// aliases maps alternate spellings onto whitelisted keys.
var aliases = map[string]string{
	"ua":              KeyUserAgent,
	"userAgent":       KeyUserAgent,
	"connectTimeout":  KeyConnectTimeout,
	"requestTimeout":  KeyRequestTimeout,
	"followRedirects": KeyFollowRedirects,
	"maxRedirects":    KeyMaxRedirects,
}

// Keys returns the whitelisted keys in sorted order.
func Keys() []string {
	return slices.Sorted(maps.Keys(whitelist))
}

// Layer is an immutable set of whitelisted settings.
type Layer struct {
	values  map[string]any
	dropped []string
}

// Setting sets one key while a Layer is being built.
type Setting func(*Layer)

// New builds a Layer from settings, applied in order.
func New(settings ...Setting) Layer {
	return Layer{}.With(settings...)
}

// From builds a Layer from a loosely typed map such as one decoded from
// a config file. Keys outside the whitelist are dropped and reported by
// Dropped.
func From(m map[string]any) Layer {
	var l Layer
	for _, k := range slices.Sorted(maps.Keys(m)) {
		l.set(k, m[k])
	}

	return l
}

// With returns a copy of l with settings applied.
func (l Layer) With(settings ...Setting) Layer {
	out := l.clone()
	for _, s := range settings {
		s(&out)
	}

	return out
}

// Merge returns a new Layer in which over wins per key. Headers are
// merged additively; over wins per header name.
func (l Layer) Merge(over Layer) Layer {
	out := l.clone()
	for k, v := range over.values {
		if k == KeyHeaders {
			base, baseOK := out.values[k].(wire.Header)
			next, nextOK := v.(wire.Header)
			if baseOK && nextOK {
				merged := base.Clone()
				merged.Merge(next)
				out.values[k] = merged
				continue
			}
		}
		out.values[k] = v
	}
	out.dropped = append(out.dropped, over.dropped...)

	return out
}

// Get returns the raw value stored under key.
func (l Layer) Get(key string) (any, bool) {
	v, ok := l.values[key]
	return v, ok
}

// Keys returns the keys set on l in sorted order.
func (l Layer) Keys() []string {
	return slices.Sorted(maps.Keys(l.values))
}

// Len is the number of keys set.
func (l Layer) Len() int {
	return len(l.values)
}

// Dropped returns the non-whitelisted keys that were discarded while
// building or merging l.
func (l Layer) Dropped() []string {
	return slices.Clone(l.dropped)
}

func (l Layer) clone() Layer {
	out := Layer{
		values:  make(map[string]any, len(l.values)),
		dropped: slices.Clone(l.dropped),
	}
	for k, v := range l.values {
		if h, ok := v.(wire.Header); ok {
			v = h.Clone()
		}
		out.values[k] = v
	}

	return out
}

func (l *Layer) set(key string, value any) {
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	if !whitelist[key] {
		l.dropped = append(l.dropped, key)
		return
	}
	if l.values == nil {
		l.values = make(map[string]any)
	}

	if key == KeyHeaders {
		if h, ok := toHeader(value); ok {
			value = h
		}
	}
	l.values[key] = value
}

// toHeader normalizes the header mapping types accepted by From.
func toHeader(v any) (wire.Header, bool) {
	switch m := v.(type) {
	case wire.Header:
		return m.Clone(), true
	case map[string]string:
		return wire.NewHeader(m), true
	case map[string]any:
		var h wire.Header
		for _, k := range slices.Sorted(maps.Keys(m)) {
			h.Set(k, fmt.Sprint(m[k]))
		}
		return h, true
	}

	return wire.Header{}, false
}

// Method sets the request method.
func Method(m string) Setting {
	return func(l *Layer) { l.set(KeyMethod, m) }
}

// Headers sets header overrides. Repeated Headers settings on one
// Layer replace each other; use Header to add a single name.
func Headers(h map[string]string) Setting {
	return func(l *Layer) { l.set(KeyHeaders, wire.NewHeader(h)) }
}

// Header adds one header override to those already on the Layer.
func Header(name, value string) Setting {
	return func(l *Layer) {
		h, _ := l.values[KeyHeaders].(wire.Header)
		h = h.Clone()
		h.Set(name, value)
		l.set(KeyHeaders, h)
	}
}

// Body sets the raw request body.
func Body(b []byte) Setting {
	return func(l *Layer) { l.set(KeyBody, slices.Clone(b)) }
}

// BodyString sets the request body to the UTF-8 bytes of s.
func BodyString(s string) Setting {
	return func(l *Layer) { l.set(KeyBody, []byte(s)) }
}

// UserAgent sets the User-Agent header value.
func UserAgent(ua string) Setting {
	return func(l *Layer) { l.set(KeyUserAgent, ua) }
}

// ConnectTimeout bounds the dial and TLS handshake of each hop. Zero
// means no limit.
func ConnectTimeout(d time.Duration) Setting {
	return func(l *Layer) { l.set(KeyConnectTimeout, d) }
}

// RequestTimeout bounds the whole fetch including redirects. Zero means
// no limit.
func RequestTimeout(d time.Duration) Setting {
	return func(l *Layer) { l.set(KeyRequestTimeout, d) }
}

// FollowRedirects toggles the redirect loop.
func FollowRedirects(follow bool) Setting {
	return func(l *Layer) { l.set(KeyFollowRedirects, follow) }
}

// MaxRedirects caps how many redirects are followed.
func MaxRedirects(n int) Setting {
	return func(l *Layer) { l.set(KeyMaxRedirects, n) }
}

// Raw sets key to value. Keys outside the whitelist are dropped.
func Raw(key string, value any) Setting {
	return func(l *Layer) { l.set(key, value) }
}
