package session

import (
	"context"

	"github.com/trelliscrm/go-trellis/internal/log"
	"github.com/trelliscrm/go-trellis/pkg/connector"
	"github.com/trelliscrm/go-trellis/pkg/protocol"
)

// DefaultMaxRetries bounds handshake attempts when no retry budget is configured.
const DefaultMaxRetries = 10

// retryHandshake repeatedly invokes send until a response carries a success field or the attempt
// budget is consumed. The endpoint intermittently returns bodies with no envelope at all; those
// responses, and transport failures, count as attempts. A cancelled context stops the loop
// immediately.
func (m *Manager) retryHandshake(ctx context.Context, op string, send func(context.Context) (*connector.Response, error)) (*connector.Response, *protocol.Result, error) {
	budget := m.maxRetries
	if budget <= 0 {
		budget = DefaultMaxRetries
	}

	attempts := 0
	var lastErr error
	for {
		response, err := send(ctx)
		attempts++
		if err == nil {
			envelope := protocol.Decode(response.Body)
			if envelope.Success != nil {
				return response, envelope, nil
			}
			lastErr = nil
			log.Debug("%s attempt %d/%d returned no envelope", op, attempts, budget)
		} else {
			if ctx.Err() != nil {
				return nil, nil, err
			}
			lastErr = err
			log.Debug("%s attempt %d/%d failed: %s", op, attempts, budget, err)
		}
		if attempts >= budget {
			return nil, nil, &protocol.RetryExhaustedError{Operation: op, Attempts: attempts, LastError: lastErr}
		}
	}
}

// checkStatusAndEnvelope runs the full validation path: transport status first, then the
// success/error contract of the envelope.
func checkStatusAndEnvelope(response *connector.Response, envelope *protocol.Result) error {
	if err := protocol.CheckStatus(response); err != nil {
		return err
	}
	return envelope.Validate()
}
