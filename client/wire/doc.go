// Package wire implements the HTTP/1.0 protocol engine used by the
// client: target normalization, request serialization and response
// parsing.
//
// # URLs
//
// [ParseURL] accepts a bare host or a full URL and fills in the scheme,
// port and path defaults:
//
//	u, err := wire.ParseURL("example.com")
//	// u.Port == 80, u.PathAndQuery == "/"
//
// # Requests
//
// [BuildRequest] adds the default client headers (Accept-Encoding,
// Connection: close, Host, User-Agent) before the caller's overrides.
// No Content-Length is computed.
//
// # Responses
//
// [ReadResponse] reads the status line and headers, then selects one of
// three body framings: Content-Length, chunked, or read until the peer
// closes the connection.
//
// Every failure is an [*Error] carrying a [Kind].
package wire
