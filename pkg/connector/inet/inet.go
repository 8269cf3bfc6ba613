// Package inet implements [connector.Connector] over HTTP.
package inet

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trelliscrm/go-trellis/internal/log"
	"github.com/trelliscrm/go-trellis/pkg/connector"
	"github.com/trelliscrm/go-trellis/pkg/protocol"
)

// DefaultTimeout bounds a single HTTP round-trip. It can be overridden per Connection by replacing
// Connection.Client.
const DefaultTimeout = 30 * time.Second

// ReadWithContext reads from r into p until EOF, p is full, or ctx is cancelled.
func ReadWithContext(ctx context.Context, r io.Reader, p []byte) ([]byte, error) {
	bytesRead := 0
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		n, err := r.Read(p[bytesRead:])
		bytesRead += n
		if err == io.EOF {
			return p[:bytesRead], nil
		}
		if err != nil {
			return p[:bytesRead], err
		}
		if bytesRead == len(p) {
			return p[:bytesRead], nil
		}
	}
}

// Connection sends web-services requests to a single endpoint URL.
type Connection struct {
	Client    *http.Client
	UserAgent string
	endpoint  string
}

// NewConnection creates a Connection to the given webservice endpoint URL (typically
// https://host/webservice).
func NewConnection(endpoint, userAgent string) *Connection {
	return &Connection{
		Client:    &http.Client{Timeout: DefaultTimeout},
		UserAgent: userAgent,
		endpoint:  strings.TrimRight(endpoint, "/"),
	}
}

// Endpoint returns the URL requests are sent to.
func (c *Connection) Endpoint() string {
	return c.endpoint
}

// Get issues a GET request with params encoded in the query string.
func (c *Connection) Get(ctx context.Context, params url.Values) (*connector.Response, error) {
	target := c.endpoint + "?" + params.Encode()
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	log.Debug("GET %s", target)
	return c.do(ctx, request)
}

// PostForm issues a POST request with data as a form-encoded body.
func (c *Connection) PostForm(ctx context.Context, data url.Values) (*connector.Response, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	log.Debug("POST %s operation=%s", c.endpoint, data.Get("operation"))
	return c.do(ctx, request)
}

func (c *Connection) do(ctx context.Context, request *http.Request) (*connector.Response, error) {
	request.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		request.Header.Set("User-Agent", c.UserAgent)
	}

	response, err := c.Client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	body := make([]byte, connector.MaxResponseLength+1)
	body, err = ReadWithContext(ctx, response.Body, body)
	if err != nil {
		return nil, err
	}
	if len(body) == connector.MaxResponseLength+1 {
		return nil, protocol.ErrResponseTooLong
	}

	log.Debug("Server returned %d: %s: %s", response.StatusCode, http.StatusText(response.StatusCode), body)
	return &connector.Response{StatusCode: response.StatusCode, Body: body}, nil
}
