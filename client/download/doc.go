// Package download writes fetched response bodies to disk with
// optional checksum validation.
//
// [Handle] writes the body to a temporary file alongside the
// destination path, then atomically renames it on success:
//
//	err := download.Handle(ctx, bytes.NewReader(resp.Body), int64(len(resp.Body)), destPath, logger,
//		download.WithChecksum(sha256.New(), expected),
//	)
//
// Most callers should use the higher-level
// [github.com/adamwoolhether/asynclient/client] package, which invokes
// Handle internally and re-exports the download options as
// client.With* functions.
package download
