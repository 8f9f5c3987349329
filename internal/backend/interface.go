package backend

import (
	"context"

	"tiffin/internal/repository"
	"tiffin/internal/services"
)

// CleanupFunc releases the resources a backend holds
type CleanupFunc func() error

// BackendResult bundles the store with its optional sync publisher.
// Publisher is nil when no broker is configured.
type BackendResult struct {
	Store     repository.Store
	Publisher services.SyncPublisher
	Cleanup   CleanupFunc
}

// Ping reports whether the store is reachable. Stores without a health
// check are always ready.
func (r *BackendResult) Ping(ctx context.Context) error {
	if p, ok := r.Store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Pinger is implemented by stores that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Optional sync publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
