package session

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"

	"github.com/trelliscrm/go-trellis/internal/log"
	"github.com/trelliscrm/go-trellis/pkg/connector"
	"github.com/trelliscrm/go-trellis/pkg/protocol"
	"github.com/trelliscrm/go-trellis/pkg/store"
)

// LoginKey derives the credential presented to the login operation: a digest over the challenge
// token and the shared access key, so the raw key never crosses the wire.
func LoginKey(token, accessKey string) string {
	sum := md5.Sum([]byte(token + accessKey))
	return hex.EncodeToString(sum[:])
}

// login performs the login handshake using the token in doc.
//
// On success it pairs the returned session id with the token in the backing store and returns the
// id. When the server reports the credentials or session as invalid, the cached document is
// evicted and login returns an empty id with no error; the caller is expected to restart from a
// fresh challenge. All other failures are returned unchanged.
func (m *Manager) login(ctx context.Context, conn connector.Connector, st store.Store, creds Credentials, doc *Document) (string, error) {
	data := url.Values{
		"operation": {"login"},
		"username":  {creds.Username},
		"accessKey": {LoginKey(doc.Token, creds.AccessKey)},
	}

	response, envelope, err := m.retryHandshake(ctx, "login", func(ctx context.Context) (*connector.Response, error) {
		return conn.PostForm(ctx, data)
	})
	if err != nil {
		return "", err
	}

	if response.StatusCode != http.StatusOK || !envelope.OK() {
		if envelope.Failed() {
			if envelope.Error == nil {
				return "", fmt.Errorf("%w: failure reported without error object", protocol.ErrMalformedResponse)
			}
			if envelope.Error.InvalidatesSession() {
				log.Info("Server rejected cached credentials (%s); evicting session document", envelope.Error.Code)
				if err := st.Delete(ctx, m.key); err != nil {
					return "", err
				}
				return "", nil
			}
			return "", envelope.Error
		}
		return "", &protocol.StatusError{Code: response.StatusCode}
	}

	var payload struct {
		SessionName string `json:"sessionName"`
	}
	if err := envelope.DecodeInto(&payload); err != nil {
		return "", err
	}

	if err := m.saveSessionID(ctx, st, doc, payload.SessionName); err != nil {
		return "", err
	}
	if recorder, ok := st.(store.LoginRecorder); ok {
		if err := recorder.RecordLogin(ctx); err != nil {
			log.Warning("Failed to record login: %s", err)
		}
	}
	return payload.SessionName, nil
}

// saveSessionID writes the session id into the stored document. The stored document is re-read
// first; if it still carries the token the id was issued for, that copy is updated in place,
// otherwise the token/id pair from this login replaces it wholesale. An id is never attached to a
// token it was not issued for.
func (m *Manager) saveSessionID(ctx context.Context, st store.Store, doc *Document, sessionID string) error {
	stored, err := m.loadDocument(ctx, st)
	if err != nil {
		return err
	}
	if stored == nil || stored.Token != doc.Token {
		stored = &Document{Token: doc.Token, ExpireTime: doc.ExpireTime}
	}
	stored.SessionID = sessionID
	return m.putDocument(ctx, st, stored)
}
