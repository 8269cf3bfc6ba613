// Package store provides pluggable persistence for the cached session document.
//
// Two drivers are recognized: "file" keeps the document in a local JSON file so that sessions
// survive process restarts on a single machine, and "redis" keeps it in a Redis instance shared
// across a fleet. Any other driver name is a configuration error.
//
// A Store holds opaque bytes under a key; it does not interpret the session document. Concurrent
// read-modify-write sequences against a shared key are not serialized by this package. Callers
// that need mutual exclusion can wrap a Store in a locking decorator.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/trelliscrm/go-trellis/pkg/protocol"
)

// Recognized driver names.
const (
	DriverFile  = "file"
	DriverRedis = "redis"
)

// ErrNotFound indicates the requested key is absent from the store.
var ErrNotFound = errors.New("store: key not found")

// Store is a minimal key-value interface over a session-document backend.
//
// Get returns ErrNotFound for absent keys. Delete is idempotent: deleting an absent key is not an
// error.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// LoginRecorder is implemented by backends that keep a counter of successful logins. The session
// authenticator records a login after every successful credential write.
type LoginRecorder interface {
	RecordLogin(ctx context.Context) error
}

// Config selects and parameterizes a backend.
type Config struct {
	Driver string // "file" or "redis"

	// File driver options.
	Path string // path of the JSON document file

	// Redis driver options.
	RedisAddr     string // host:port, defaults to localhost:6379
	RedisPassword string
	RedisDB       int
}

// Open returns the Store selected by cfg.Driver, or protocol.ErrUnsupportedStore for an
// unrecognized driver name.
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFile:
		return NewFileStore(cfg.Path), nil
	case DriverRedis:
		return NewRedisStore(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", protocol.ErrUnsupportedStore, cfg.Driver)
	}
}

// Supported returns true if driver names a recognized backend.
func Supported(driver string) bool {
	return driver == DriverFile || driver == DriverRedis
}
