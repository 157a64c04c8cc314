package download

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
)

// checksum hashes everything written to it and compares the digest with
// an expected value decoded when the option is applied.
type checksum struct {
	hash     hash.Hash
	expected []byte
}

func newChecksum(h hash.Hash, expectedHex string) (*checksum, error) {
	if h == nil {
		return nil, errors.New("hash must not be nil")
	}

	expectedHex = strings.TrimSpace(expectedHex)
	if expectedHex == "" {
		return nil, errors.New("expected checksum must not be empty")
	}

	expected, err := hex.DecodeString(expectedHex)
	if err != nil {
		return nil, fmt.Errorf("expected checksum: %w", err)
	}
	if len(expected) != h.Size() {
		return nil, fmt.Errorf("expected checksum has %d bytes, hash produces %d", len(expected), h.Size())
	}

	h.Reset()

	return &checksum{hash: h, expected: expected}, nil
}

func (c *checksum) Write(p []byte) (int, error) {
	return c.hash.Write(p)
}

// verify is a no-op on a nil checksum.
func (c *checksum) verify() error {
	if c == nil {
		return nil
	}

	actual := c.hash.Sum(nil)
	if !bytes.Equal(actual, c.expected) {
		return &Error{
			Err:    ErrChecksumMismatch,
			Detail: fmt.Sprintf("expected %x, got %x", c.expected, actual),
		}
	}

	return nil
}
