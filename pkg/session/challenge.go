package session

import (
	"context"
	"net/url"

	"github.com/trelliscrm/go-trellis/internal/log"
	"github.com/trelliscrm/go-trellis/pkg/connector"
)

// challenge is the result payload of a getchallenge operation.
type challenge struct {
	Token      string       `json:"token"`
	ExpireTime epochSeconds `json:"expireTime"`
}

// acquireToken performs the getchallenge handshake and returns a fresh challenge token with its
// expiry.
func (m *Manager) acquireToken(ctx context.Context, conn connector.Connector, creds Credentials) (*challenge, error) {
	params := url.Values{
		"operation": {"getchallenge"},
		"username":  {creds.Username},
	}

	response, envelope, err := m.retryHandshake(ctx, "getchallenge", func(ctx context.Context) (*connector.Response, error) {
		return conn.Get(ctx, params)
	})
	if err != nil {
		return nil, err
	}
	if err := checkStatusAndEnvelope(response, envelope); err != nil {
		return nil, err
	}

	var ch challenge
	if err := envelope.DecodeInto(&ch); err != nil {
		return nil, err
	}
	log.Debug("Acquired challenge token expiring at %d", ch.ExpireTime)
	return &ch, nil
}
