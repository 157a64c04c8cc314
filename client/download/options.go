package download

import (
	"errors"
	"hash"
	"os"
)

// Option defines optional settings for writing downloads.
// WithChecksum enables checksum validation of the downloaded file.
// h is a hash.Hash instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string, in either case.
//
// WithSkipExisting causes Handle to return nil immediately when
// the destination file already exists, avoiding a redundant write.
//
// WithFileMode sets the permissions of the written file instead of the
// 0600 used for temp files.
type Option func(*options) error

type options struct {
	checksum     *checksum
	skipExisting bool
	mode         os.FileMode
}

func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		c, err := newChecksum(h, expected)
		if err != nil {
			return err
		}

		opts.checksum = c
		return nil
	}
}

func WithSkipExisting() Option {
	return func(opts *options) error {
		opts.skipExisting = true
		return nil
	}
}

func WithFileMode(mode os.FileMode) Option {
	return func(opts *options) error {
		if mode == 0 {
			return errors.New("file mode must not be zero")
		}
		opts.mode = mode
		return nil
	}
}

// SkipExisting reports whether optFns request WithSkipExisting. Option
// errors are ignored; Handle reports them.
func SkipExisting(optFns ...Option) bool {
	var opts options
	for _, opt := range optFns {
		_ = opt(&opts)
	}

	return opts.skipExisting
}
