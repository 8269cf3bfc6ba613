// Package connector defines the transport used to reach a record-management endpoint.
package connector

import (
	"context"
	"net/url"
)

// MaxResponseLength caps the maximum byte-length of responses that connectors must support.
const MaxResponseLength = 1000000

// Response carries the raw outcome of a single transport round-trip. Connectors return a Response
// for any well-formed HTTP exchange, including those with non-2xx status codes; classifying status
// codes is the caller's job, not the transport's.
type Response struct {
	StatusCode int
	Body       []byte
}

// Connector issues requests to the remote web-services endpoint.
//
// Get sends the parameters in the query string; PostForm sends them as a form-encoded body. Both
// return an error only when no response could be obtained at all (network failure, cancelled
// context, oversized response).
//
// Implementations must be safe for concurrent use.
type Connector interface {
	Get(ctx context.Context, params url.Values) (*Response, error)
	PostForm(ctx context.Context, data url.Values) (*Response, error)
}
