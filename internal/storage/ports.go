// Package storage declares the record store contract. Implementations live
// in the memory, sqlite, postgres and mongo subpackages.
package storage

import (
	"context"
	"time"

	"finease/internal/core"
	"finease/internal/query"
	"finease/internal/report"
)

// Store is typed access to the transaction collection. Every failure of
// the underlying engine is wrapped with core.ErrStoreFailure.
type Store interface {
	report.Aggregator

	// Insert stores tx and returns the assigned ID. tx.ID is ignored.
	Insert(ctx context.Context, tx core.Transaction) (string, error)
	// FindByID returns core.ErrNotFound for unknown or malformed IDs.
	FindByID(ctx context.Context, id string) (core.Transaction, error)
	// DeleteByID returns the number of deleted records, 0 or 1.
	DeleteByID(ctx context.Context, id string) (int64, error)
	// UpdateByID applies patch to the record with id inside scope and
	// returns how many records matched. Zero is not an error.
	UpdateByID(ctx context.Context, id string, scope core.Scope, patch core.TransactionPatch, updatedAt time.Time) (int64, error)
	// Find returns every record matching spec in spec order.
	Find(ctx context.Context, spec query.Spec) ([]core.Transaction, error)
	// All returns every record. It backs full reindexing.
	All(ctx context.Context) ([]core.Transaction, error)

	Ping(ctx context.Context) error
	Close() error
}
