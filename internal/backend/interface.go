package backend

import (
	"context"

	"finease/internal/amqp"
	"finease/internal/storage"
)

// CleanupFunc releases resources acquired by the factory.
type CleanupFunc func() error

// BackendResult holds the opened store, the optional event client and a
// cleanup that closes both.
type BackendResult struct {
	Store     storage.Store
	Publisher *amqp.Client
	Cleanup   CleanupFunc
}

// Factory opens the configured store.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type BackendType

	SQLiteDBPath    string
	PostgresDSN     string
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	// AMQP is optional for the server and required by the indexer.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	RequireAMQP  bool
}

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MongoBackend    BackendType = "mongo"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend, MongoBackend:
		return true
	default:
		return false
	}
}
