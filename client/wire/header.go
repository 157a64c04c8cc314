package wire

import (
	"maps"
	"net/textproto"
	"slices"
)

// Header is a case-insensitive, single-valued header store. Names are
// kept in canonical form and iterate in first-insertion order; setting
// an existing name replaces its value in place.
type Header struct {
	keys   []string
	values map[string]string
}

// NewHeader builds a Header from m with names in sorted order. Callers
// that care about wire order should use Set.
func NewHeader(m map[string]string) Header {
	var h Header
	for _, k := range slices.Sorted(maps.Keys(m)) {
		h.Set(k, m[k])
	}

	return h
}

// CanonicalKey returns the canonical form of a header name.
func CanonicalKey(name string) string {
	return textproto.CanonicalMIMEHeaderKey(name)
}

// Set stores value under name, overwriting any previous value.
func (h *Header) Set(name, value string) {
	key := CanonicalKey(name)
	if h.values == nil {
		h.values = make(map[string]string)
	}
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

// Get returns the value for name, or "" when absent.
func (h Header) Get(name string) string {
	return h.values[CanonicalKey(name)]
}

// Lookup returns the value for name and whether it was present.
func (h Header) Lookup(name string) (string, bool) {
	v, ok := h.values[CanonicalKey(name)]
	return v, ok
}

// Has reports whether name is present.
func (h Header) Has(name string) bool {
	_, ok := h.values[CanonicalKey(name)]
	return ok
}

// Del removes name.
func (h *Header) Del(name string) {
	key := CanonicalKey(name)
	if _, ok := h.values[key]; !ok {
		return
	}
	delete(h.values, key)
	h.keys = slices.DeleteFunc(h.keys, func(k string) bool { return k == key })
}

// Len returns the number of stored names.
func (h Header) Len() int {
	return len(h.keys)
}

// Keys returns the canonical names in iteration order.
func (h Header) Keys() []string {
	return slices.Clone(h.keys)
}

// Each calls fn for every name/value pair in iteration order.
func (h Header) Each(fn func(name, value string)) {
	for _, k := range h.keys {
		fn(k, h.values[k])
	}
}

// Clone returns an independent copy.
func (h Header) Clone() Header {
	c := Header{keys: slices.Clone(h.keys)}
	if h.values != nil {
		c.values = make(map[string]string, len(h.values))
		for k, v := range h.values {
			c.values[k] = v
		}
	}

	return c
}

// Merge sets every pair of other onto h, in other's order.
func (h *Header) Merge(other Header) {
	other.Each(h.Set)
}

// Map returns a plain map copy.
func (h Header) Map() map[string]string {
	m := make(map[string]string, len(h.keys))
	h.Each(func(k, v string) { m[k] = v })

	return m
}
