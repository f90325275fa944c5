// Package worker keeps the search mirror in step with the record store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"finease/internal/amqp"
	"finease/internal/core"
	"finease/internal/log"

	"github.com/robfig/cron"
)

// Source is the read side of the record store the worker needs.
type Source interface {
	FindByID(ctx context.Context, id string) (core.Transaction, error)
	All(ctx context.Context) ([]core.Transaction, error)
}

// Mirror is a secondary copy of the transactions, such as a search index.
type Mirror interface {
	Upsert(ctx context.Context, tx core.Transaction) error
	Delete(ctx context.Context, id string) error
	BulkIndex(ctx context.Context, txs []core.Transaction) (int, error)
}

// IndexWorker applies change events to the mirror and periodically rebuilds
// it from the store, which recovers from lost messages.
type IndexWorker struct {
	source Source
	mirror Mirror

	// reindexing serializes full rebuilds triggered by cron and startup.
	reindexing sync.Mutex
}

func NewIndexWorker(source Source, mirror Mirror) *IndexWorker {
	return &IndexWorker{source: source, mirror: mirror}
}

func (w *IndexWorker) logger(ctx context.Context) *log.Logger {
	return log.FromContext(ctx).WithComponent(log.ComponentIndexer)
}

// HandleEvent mirrors a single change. A record that vanished between the
// write and the event is removed from the mirror.
func (w *IndexWorker) HandleEvent(ctx context.Context, e amqp.TransactionEvent) error {
	logger := w.logger(ctx)

	if e.Action == amqp.ActionDeleted {
		if err := w.mirror.Delete(ctx, e.ID); err != nil {
			return fmt.Errorf("delete %s from mirror: %w", e.ID, err)
		}
		logger.InfoContext(ctx, "Removed transaction from mirror", log.FieldTransactionID, e.ID)
		return nil
	}

	tx, err := w.source.FindByID(ctx, e.ID)
	if errors.Is(err, core.ErrNotFound) {
		logger.WarnContext(ctx, "Transaction gone before indexing, removing from mirror",
			log.FieldTransactionID, e.ID,
			"action", e.Action)
		if err := w.mirror.Delete(ctx, e.ID); err != nil {
			return fmt.Errorf("delete %s from mirror: %w", e.ID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", e.ID, err)
	}

	if err := w.mirror.Upsert(ctx, tx); err != nil {
		return fmt.Errorf("index transaction %s: %w", e.ID, err)
	}

	logger.InfoContext(ctx, "Indexed transaction",
		log.NewFields().
			WithOperation(string(e.Action)).
			WithTransaction(tx.ID, tx.Owner, tx.Type.String(), tx.Category, tx.Amount.Cents).
			ToSlice()...)
	return nil
}

// Reindex pushes every stored transaction to the mirror.
func (w *IndexWorker) Reindex(ctx context.Context) (int, error) {
	w.reindexing.Lock()
	defer w.reindexing.Unlock()

	start := time.Now()
	txs, err := w.source.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("load transactions: %w", err)
	}
	if len(txs) == 0 {
		w.logger(ctx).InfoContext(ctx, "Nothing to reindex")
		return 0, nil
	}

	n, err := w.mirror.BulkIndex(ctx, txs)
	if err != nil {
		return n, fmt.Errorf("bulk index: %w", err)
	}

	w.logger(ctx).InfoContext(ctx, "Reindex completed",
		log.FieldOperation, log.OpReindex,
		"total", len(txs),
		"indexed", n,
		log.FieldDuration, time.Since(start).Milliseconds())
	return n, nil
}

// Schedule runs Reindex on the cron spec until ctx is done. The returned
// function stops the scheduler early.
func (w *IndexWorker) Schedule(ctx context.Context, spec string) (func(), error) {
	c := cron.New()
	err := c.AddFunc(spec, func() {
		if _, err := w.Reindex(ctx); err != nil {
			w.logger(ctx).ErrorContext(ctx, "Scheduled reindex failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule reindex %q: %w", spec, err)
	}
	c.Start()

	var once sync.Once
	stop := func() { once.Do(c.Stop) }
	go func() {
		<-ctx.Done()
		stop()
	}()
	return stop, nil
}
