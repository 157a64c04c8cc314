// Package asynclient exposes the client builder.
package asynclient

import (
	"github.com/adamwoolhether/asynclient/client"
)

// NewClient instantiates a new *Client with the provided options.
// If not specified, at most 10 fetches run at once and redirects are
// followed up to 5 times.
func NewClient(opts ...client.Option) (*client.Client, error) {
	return client.Build(opts...)
}
