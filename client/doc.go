// Package client provides a minimal HTTP/1.0 client built on raw TCP
// and TLS sockets.
//
// # Building a Client
//
// Use [Build] to create a [Client] with functional options:
//
//	c, err := client.Build(
//		client.WithMaxTasks(4),
//		client.WithConnectTimeout(time.Second),
//		client.WithUserAgent("myapp/1.0"),
//	)
//
// # Making Requests
//
// Targets may be full URLs or bare hosts, which are treated as http.
// Per-call settings are merged over the client defaults:
//
//	resp, err := c.Get(ctx, "example.com")
//	resp, err = c.Post(ctx, "https://api.example.com/v1/items",
//		client.WithHeader("Content-Type", "application/json"),
//		client.WithHeader("Content-Length", "9"),
//		client.BodyString(`{"a":"b"}`),
//	)
//
// Every failure is a *[Error] whose [Kind] separates timeouts from
// protocol and status failures:
//
//	if client.IsTimeout(err) { ... }
//	if errors.Is(err, client.ErrHTTPStatus) { ... }
//
// # Concurrent Fetches
//
// [Client.Go] starts a fetch in the background; [Gather] joins several
// and returns their responses in argument order:
//
//	a := c.Go(ctx, "example.com")
//	b := c.Go(ctx, "example.org")
//	resps, err := client.Gather(ctx, a, b)
//
// At most MaxTasks fetches hold a connection at once; the rest wait for
// a slot.
//
// # Downloading Files
//
// Write a response body to disk with optional checksum verification:
//
//	err = c.Download(ctx, "https://example.com/file.bin", "/tmp/file.bin",
//		client.WithChecksum(sha256.New(), expectedHex),
//	)
//
// For lower-level control see the [github.com/adamwoolhether/asynclient/client/conn]
// and [github.com/adamwoolhether/asynclient/client/wire] packages.
package client
