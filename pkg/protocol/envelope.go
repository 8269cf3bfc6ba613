// Package protocol defines the response envelope and error taxonomy of the record-management
// web-services API.
//
// Every response uses the same JSON envelope:
//
//	{ "success": bool, "result": ..., "error": {"code": ..., "message": ...} }
//
// The envelope is decoded leniently: an empty or unparseable body yields a [Result] whose Success
// field is nil rather than an error, because the endpoint is known to intermittently return
// malformed bodies and callers retry on a missing success field.
package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/trelliscrm/go-trellis/pkg/connector"
)

// Result is a decoded response envelope. Field presence is encoded in the types: a nil Success
// means the body carried no envelope at all.
type Result struct {
	Success *bool           `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ServerError    `json:"error,omitempty"`
}

// OK returns true if the envelope was present and reports success.
func (r *Result) OK() bool {
	return r.Success != nil && *r.Success
}

// Failed returns true if the envelope was present and reports failure.
func (r *Result) Failed() bool {
	return r.Success != nil && !*r.Success
}

// Validate checks the success/error contract of the envelope. It fails with ErrMalformedResponse
// when the success field is absent, or when success is false but no error object was provided.
// When the server reported a failure, Validate returns the embedded *ServerError unchanged.
func (r *Result) Validate() error {
	if r.Success == nil {
		return fmt.Errorf("%w: missing success field", ErrMalformedResponse)
	}
	if *r.Success {
		return nil
	}
	if r.Error == nil {
		return fmt.Errorf("%w: failure reported without error object", ErrMalformedResponse)
	}
	return r.Error
}

// DecodeInto unmarshals the envelope's result payload into v.
func (r *Result) DecodeInto(v interface{}) error {
	if len(r.Result) == 0 {
		return fmt.Errorf("%w: missing result payload", ErrMalformedResponse)
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedResponse, err)
	}
	return nil
}

// Decode parses a response body into a Result. Empty and unparseable bodies yield a Result with a
// nil Success field; callers that require an envelope must follow up with [Result.Validate].
func Decode(body []byte) *Result {
	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return &Result{}
	}
	return &result
}

// DecodeReader parses a response body from r. If r is seekable it is first rewound, so a body that
// was already consumed by another reader can be reparsed.
func DecodeReader(r io.Reader) (*Result, error) {
	if seeker, ok := r.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
	}
	body, err := io.ReadAll(io.LimitReader(r, connector.MaxResponseLength))
	if err != nil {
		return nil, err
	}
	return Decode(body), nil
}

// CheckStatus fails with a *StatusError if the transport-level status code is not 200. It ignores
// the response body.
func CheckStatus(response *connector.Response) error {
	if response.StatusCode != http.StatusOK {
		return &StatusError{Code: response.StatusCode}
	}
	return nil
}
