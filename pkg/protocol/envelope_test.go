package protocol

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/trelliscrm/go-trellis/pkg/connector"
)

func TestDecodeTolerance(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "whitespace body", body: "  \n"},
		{name: "html error page", body: "<html><body>502 Bad Gateway</body></html>"},
		{name: "truncated json", body: `{"success": tr`},
		{name: "json without envelope", body: `{"hello": "world"}`},
	}
	for _, test := range testCases {
		result := Decode([]byte(test.body))
		if result == nil {
			t.Fatalf("%s: Decode returned nil", test.name)
		}
		if result.Success != nil {
			t.Errorf("%s: expected absent success field, got %v", test.name, *result.Success)
		}
	}
}

func TestDecodeEnvelope(t *testing.T) {
	result := Decode([]byte(`{"success": true, "result": {"token": "abc123"}}`))
	if !result.OK() {
		t.Fatalf("expected success envelope, got %+v", result)
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := result.DecodeInto(&payload); err != nil {
		t.Fatalf("DecodeInto failed: %s", err)
	}
	if payload.Token != "abc123" {
		t.Errorf("payload.Token = %q", payload.Token)
	}
}

func TestDecodeReaderRewinds(t *testing.T) {
	body := []byte(`{"success": true, "result": []}`)
	reader := bytes.NewReader(body)

	// Simulate a caller that already consumed the stream.
	if _, err := io.ReadAll(reader); err != nil {
		t.Fatal(err)
	}

	result, err := DecodeReader(reader)
	if err != nil {
		t.Fatalf("DecodeReader failed: %s", err)
	}
	if !result.OK() {
		t.Errorf("expected success after rewinding consumed stream, got %+v", result)
	}
}

func TestValidate(t *testing.T) {
	success := true
	failure := false
	testCases := []struct {
		name   string
		result Result
		err    error
	}{
		{name: "missing success", result: Result{}, err: ErrMalformedResponse},
		{name: "failure without error object", result: Result{Success: &failure}, err: ErrMalformedResponse},
		{name: "success", result: Result{Success: &success}},
	}
	for _, test := range testCases {
		err := test.result.Validate()
		if !errors.Is(err, test.err) {
			t.Errorf("%s: Validate() = %v, want %v", test.name, err, test.err)
		}
	}
}

func TestValidatePreservesServerError(t *testing.T) {
	result := Decode([]byte(`{"success": false, "error": {"code": "ACCESS_DENIED", "message": "Permission to perform the operation is denied"}}`))
	err := result.Validate()

	var serverErr *ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("Validate() = %v, want *ServerError", err)
	}
	if serverErr.Code != "ACCESS_DENIED" {
		t.Errorf("Code = %q", serverErr.Code)
	}
	if serverErr.Message != "Permission to perform the operation is denied" {
		t.Errorf("Message = %q", serverErr.Message)
	}
}

func TestCheckStatus(t *testing.T) {
	if err := CheckStatus(&connector.Response{StatusCode: http.StatusOK}); err != nil {
		t.Errorf("unexpected error for status 200: %s", err)
	}

	err := CheckStatus(&connector.Response{StatusCode: http.StatusBadGateway})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("CheckStatus = %v, want *StatusError", err)
	}
	if statusErr.Code != http.StatusBadGateway {
		t.Errorf("Code = %d", statusErr.Code)
	}
}
