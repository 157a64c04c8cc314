// Package conn drives HTTP/1.0 exchanges over raw TCP or TLS sockets.
//
// A [Conn] owns the socket of a single hop. [New] returns it in the
// connecting state; [Conn.Connect] moves it to sending, and Send and
// Receive move it on through receiving headers and receiving body to
// done. Any failure, including a failed dial, leaves it failed.
// [Dial] is New plus Connect. Connections are never reused; a
// redirect dials a new one even when host and port are unchanged.
//
// [Fetcher.Fetch] runs the redirect loop on top of Conn:
//
//	f := &conn.Fetcher{Logger: logger}
//	resp, err := f.Fetch(ctx, "example.com", conn.Options{
//		Method:          "GET",
//		FollowRedirects: true,
//		MaxRedirects:    5,
//	})
package conn
