// Package memory is a process-local Store used for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"finease/internal/core"
	"finease/internal/query"
	"finease/internal/report"

	"github.com/google/uuid"
)

// Store keeps records in a map guarded by a RWMutex. Each operation is
// atomic for a single record.
type Store struct {
	mu  sync.RWMutex
	txs map[string]core.Transaction
}

func New() *Store {
	return &Store{txs: make(map[string]core.Transaction)}
}

func (s *Store) Insert(_ context.Context, tx core.Transaction) (string, error) {
	tx.ID = uuid.NewString()
	s.mu.Lock()
	s.txs[tx.ID] = tx
	s.mu.Unlock()
	return tx.ID, nil
}

func (s *Store) FindByID(_ context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, core.ErrNotFound
	}
	return tx, nil
}

func (s *Store) DeleteByID(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok {
		return 0, nil
	}
	delete(s.txs, id)
	return 1, nil
}

func (s *Store) UpdateByID(_ context.Context, id string, scope core.Scope, patch core.TransactionPatch, updatedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[id]
	if !ok || !scope.Matches(tx) {
		return 0, nil
	}
	patch.Apply(&tx, updatedAt)
	s.txs[id] = tx
	return 1, nil
}

func (s *Store) Find(_ context.Context, spec query.Spec) ([]core.Transaction, error) {
	out := []core.Transaction{}
	for _, tx := range s.snapshot() {
		if spec.Scope.Matches(tx) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return spec.Less(out[i], out[j]) })
	return out, nil
}

func (s *Store) All(_ context.Context) ([]core.Transaction, error) {
	return s.snapshot(), nil
}

func (s *Store) SumAmount(_ context.Context, scope core.Scope, category string) (core.Money, error) {
	return report.SumWhere(s.snapshot(), scope, category), nil
}

func (s *Store) SumByType(_ context.Context, scope core.Scope) (core.TypeTotals, error) {
	return report.FoldTypes(s.snapshot(), scope), nil
}

func (s *Store) SumByCategory(_ context.Context, scope core.Scope) ([]core.CategoryTotal, error) {
	return report.FoldCategories(s.snapshot(), scope), nil
}

func (s *Store) SumByMonthAndType(_ context.Context, scope core.Scope) ([]core.MonthTypeTotal, error) {
	return report.FoldMonthTypes(s.snapshot(), scope), nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// snapshot copies the records so reductions run without holding the lock.
func (s *Store) snapshot() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		out = append(out, tx)
	}
	return out
}
