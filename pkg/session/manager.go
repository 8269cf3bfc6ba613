package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/trelliscrm/go-trellis/internal/log"
	"github.com/trelliscrm/go-trellis/pkg/connector"
	"github.com/trelliscrm/go-trellis/pkg/protocol"
	"github.com/trelliscrm/go-trellis/pkg/store"
)

// loginAttempts caps how often SessionID restarts the handshake after the server silently
// invalidates freshly minted credentials. Without the cap a server that persistently answers
// login with INVALID_USER_CREDENTIALS would keep the client in an evict-and-retry cycle forever.
const loginAttempts = 2

// Credentials identify the account a session is established for. The URL they belong to is carried
// by the connector, not here.
type Credentials struct {
	Username  string
	AccessKey string
}

// Config parameterizes a Manager.
type Config struct {
	// Store, when set, is used directly (dependency injection for tests and custom backends).
	// Otherwise the store is opened lazily from StoreConfig on first use.
	Store       store.Store
	StoreConfig store.Config

	Key        string // backing-store key, DefaultKey if empty
	MaxRetries int    // handshake attempt budget, DefaultMaxRetries if zero
}

// Manager owns the cached session document: it judges freshness, refreshes the challenge token,
// performs logins, and hands out a usable session id. Concurrent callers sharing a store key may
// interleave read-modify-write sequences; see the store package comment.
type Manager struct {
	key        string
	maxRetries int
	storeCfg   store.Config
	now        func() time.Time

	mu sync.Mutex
	st store.Store
}

// NewManager returns a Manager configured by cfg. No store access or network traffic happens until
// the first SessionID call.
func NewManager(cfg Config) *Manager {
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}
	return &Manager{
		key:        key,
		maxRetries: cfg.MaxRetries,
		storeCfg:   cfg.StoreConfig,
		now:        time.Now,
		st:         cfg.Store,
	}
}

// Store returns the backing store, opening it from the configuration on first use. An
// unrecognized driver name fails with protocol.ErrUnsupportedStore before any read is attempted.
func (m *Manager) Store() (store.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st == nil {
		st, err := store.Open(m.storeCfg)
		if err != nil {
			return nil, err
		}
		m.st = st
	}
	return m.st, nil
}

// SessionID returns a session id usable for operation calls, establishing or refreshing the
// session as needed.
//
// A cached document that is fresh and already carries a session id is returned without any
// network traffic. A stale or absent document triggers a getchallenge round-trip, and a document
// without a session id triggers a login. When the server invalidates cached credentials during
// login, the document is evicted and the whole sequence restarts from a fresh challenge, at most
// once; if the server also rejects the fresh token, SessionID fails with
// protocol.ErrCredentialsRejected.
func (m *Manager) SessionID(ctx context.Context, conn connector.Connector, creds Credentials) (string, error) {
	st, err := m.Store()
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < loginAttempts; attempt++ {
		doc, err := m.loadDocument(ctx, st)
		if err != nil {
			return "", err
		}

		if !doc.Fresh(m.now()) {
			ch, err := m.acquireToken(ctx, conn, creds)
			if err != nil {
				return "", err
			}
			// Replace the document wholesale; a session id from a previous token must not survive.
			doc = &Document{Token: ch.Token, ExpireTime: int64(ch.ExpireTime)}
			if err := m.putDocument(ctx, st, doc); err != nil {
				return "", err
			}
		}

		if doc.SessionID != "" {
			return doc.SessionID, nil
		}

		id, err := m.login(ctx, conn, st, creds, doc)
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
		log.Warning("Cached credentials were invalidated; restarting handshake from a fresh challenge")
	}
	return "", protocol.ErrCredentialsRejected
}

// Invalidate drops the cached session document.
func (m *Manager) Invalidate(ctx context.Context) error {
	st, err := m.Store()
	if err != nil {
		return err
	}
	return st.Delete(ctx, m.key)
}

// Peek returns the cached session document without touching the network, or nil if none is
// stored.
func (m *Manager) Peek(ctx context.Context) (*Document, error) {
	st, err := m.Store()
	if err != nil {
		return nil, err
	}
	return m.loadDocument(ctx, st)
}

func (m *Manager) loadDocument(ctx context.Context, st store.Store) (*Document, error) {
	data, err := st.Get(ctx, m.key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		// A corrupt document is indistinguishable from a stale one.
		log.Warning("Discarding unparseable session document: %s", err)
		return nil, nil
	}
	return &doc, nil
}

func (m *Manager) putDocument(ctx context.Context, st store.Store, doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return st.Put(ctx, m.key, data)
}
