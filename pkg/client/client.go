// Package client exposes the record-management operations of a web-services endpoint: query,
// retrieve, create, update, delete, and describe. Each call transparently establishes or reuses a
// cached session through [session.Manager] before issuing the operation request.
package client

import (
	"context"
	"net/url"
	"sync"

	"github.com/trelliscrm/go-trellis/internal/log"
	"github.com/trelliscrm/go-trellis/pkg/connector"
	"github.com/trelliscrm/go-trellis/pkg/connector/inet"
	"github.com/trelliscrm/go-trellis/pkg/protocol"
	"github.com/trelliscrm/go-trellis/pkg/session"
	"github.com/trelliscrm/go-trellis/pkg/store"
)

// Credential identifies the account and endpoint operations are issued against. AccessKey is the
// shared secret shown in the remote service's user preferences; it never crosses the wire
// directly (see session.LoginKey).
type Credential struct {
	URL       string // webservice endpoint, e.g. https://crm.example.com/webservice
	Username  string
	AccessKey string
}

// Config collects the recognized client options.
type Config struct {
	Credential Credential

	SessionDriver string // backing store driver ("file" or "redis"); "file" when empty
	SessionFile   string // file driver: document path
	SessionKey    string // backing-store key; session.DefaultKey when empty
	RedisAddr     string // redis driver: host:port
	RedisPassword string
	RedisDB       int

	// PersistConnection keeps the session warm across calls: no logout request is issued after an
	// operation, so the next call reuses the cached session id without a handshake.
	PersistConnection bool

	// MaxRetries bounds handshake attempts against the flaky endpoint. Zero selects
	// session.DefaultMaxRetries.
	MaxRetries int

	UserAgent string

	// Transport overrides the HTTP connector. When set, Credential.URL is ignored for routing and
	// SetCredential changes only the account identity.
	Transport connector.Connector

	// Store overrides driver selection with an externally constructed backing store.
	Store store.Store
}

// Client is the public operation surface. It is safe for concurrent use; note that concurrent
// operations sharing one backing-store key may each perform a handshake (see the store package
// comment).
type Client struct {
	manager   *session.Manager
	persist   bool
	userAgent string
	transport connector.Connector // non-nil only when overridden

	mu   sync.Mutex
	cred Credential
	conn connector.Connector
}

// New creates a Client from cfg. No network traffic or store access happens until the first
// operation call; a misconfigured session driver therefore surfaces from the first operation, not
// from New.
func New(cfg Config) *Client {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = buildUserAgent("")
	}
	driver := cfg.SessionDriver
	if driver == "" {
		driver = store.DriverFile
	}

	c := &Client{
		manager: session.NewManager(session.Config{
			Store: cfg.Store,
			StoreConfig: store.Config{
				Driver:        driver,
				Path:          cfg.SessionFile,
				RedisAddr:     cfg.RedisAddr,
				RedisPassword: cfg.RedisPassword,
				RedisDB:       cfg.RedisDB,
			},
			Key:        cfg.SessionKey,
			MaxRetries: cfg.MaxRetries,
		}),
		persist:   cfg.PersistConnection,
		userAgent: userAgent,
		transport: cfg.Transport,
	}
	c.SetCredential(cfg.Credential)
	return c
}

// SetCredential atomically replaces the endpoint and account credential used by all subsequent
// calls. The cached session document is left alone: if it was established for a different account
// the server will invalidate it on the next login and the client re-authenticates.
func (c *Client) SetCredential(cred Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = cred
	if c.transport != nil {
		c.conn = c.transport
	} else {
		c.conn = inet.NewConnection(cred.URL, c.userAgent)
	}
}

// Sessions exposes the session manager, mainly for tooling that inspects or drops the cached
// session document.
func (c *Client) Sessions() *session.Manager {
	return c.manager
}

func (c *Client) snapshot() (connector.Connector, session.Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn, session.Credentials{Username: c.cred.Username, AccessKey: c.cred.AccessKey}
}

// call implements the shared operation flow: obtain a session id, issue the request, close the
// session, then validate and decode the response.
func (c *Client) call(ctx context.Context, post bool, params url.Values) (*protocol.Result, error) {
	conn, creds := c.snapshot()

	sessionID, err := c.manager.SessionID(ctx, conn, creds)
	if err != nil {
		return nil, err
	}
	params.Set("sessionName", sessionID)

	var response *connector.Response
	if post {
		response, err = conn.PostForm(ctx, params)
	} else {
		response, err = conn.Get(ctx, params)
	}
	if err != nil {
		return nil, err
	}

	// Closing is best-effort and must not mask the operation's own outcome.
	if _, err := c.closeSession(ctx, conn, sessionID); err != nil {
		log.Warning("Failed to close session: %s", err)
	}

	if err := protocol.CheckStatus(response); err != nil {
		return nil, err
	}
	envelope := protocol.Decode(response.Body)
	if err := envelope.Validate(); err != nil {
		return nil, err
	}
	return envelope, nil
}
