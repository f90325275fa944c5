// Package services orchestrates transaction operations across the record
// store, the aggregation engine and the change-event publisher.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finease/internal/amqp"
	"finease/internal/auth"
	"finease/internal/core"
	"finease/internal/log"
	"finease/internal/query"
	"finease/internal/report"
	"finease/internal/storage"
)

// EventPublisher sends change notifications. Implemented by *amqp.Client.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, e amqp.TransactionEvent) error
}

// TransactionService is the single entry point for transaction reads,
// writes and reports. Scoped operations consult the ownership guard before
// touching the store.
type TransactionService struct {
	store     storage.Store
	engine    *report.Engine
	publisher EventPublisher
	now       func() time.Time
}

type Option func(*TransactionService)

// WithPublisher enables change events. A nil publisher disables them.
func WithPublisher(p EventPublisher) Option {
	return func(s *TransactionService) { s.publisher = p }
}

// WithClock overrides the time source used for createdAt and updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *TransactionService) { s.now = now }
}

func NewTransactionService(store storage.Store, opts ...Option) *TransactionService {
	s := &TransactionService{
		store:  store,
		engine: report.NewEngine(store),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TransactionService) logger(ctx context.Context) *log.Logger {
	return log.FromContext(ctx).WithComponent(log.ComponentTransactions)
}

// Create stores a new transaction for the owner named in the input.
func (s *TransactionService) Create(ctx context.Context, in core.TransactionInput) (string, error) {
	tx, err := in.Transaction(s.now())
	if err != nil {
		return "", err
	}

	id, err := s.store.Insert(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}

	s.logger(ctx).InfoContext(ctx, "Transaction created",
		log.NewFields().
			WithOperation(log.OpCreate).
			WithTransaction(id, tx.Owner, tx.Type.String(), tx.Category, tx.Amount.Cents).
			ToSlice()...)

	s.publish(ctx, amqp.NewTransactionEvent(id, amqp.ActionCreated, tx.Owner))
	return id, nil
}

// List returns the requested owner's transactions, or every transaction
// when no owner is requested, in the order described by p.
func (s *TransactionService) List(ctx context.Context, p query.Params) ([]core.Transaction, error) {
	scope, err := s.authorize(ctx, log.OpList, p.Owner, auth.Authorize)
	if err != nil {
		return nil, err
	}

	spec := query.Build(p)
	spec.Scope = scope
	txs, err := s.store.Find(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *TransactionService) Get(ctx context.Context, id string) (core.Transaction, error) {
	tx, err := s.store.FindByID(ctx, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

// Delete removes the transaction and reports how many records went away.
// Deleting an unknown ID is not an error.
func (s *TransactionService) Delete(ctx context.Context, id string) (int64, error) {
	var owner string
	if tx, err := s.store.FindByID(ctx, id); err == nil {
		owner = tx.Owner
	}

	n, err := s.store.DeleteByID(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("delete transaction %s: %w", id, err)
	}

	if n > 0 {
		s.logger(ctx).InfoContext(ctx, "Transaction deleted",
			log.FieldOperation, log.OpDelete,
			log.FieldTransactionID, id,
			log.FieldOwner, owner)
		s.publish(ctx, amqp.NewTransactionEvent(id, amqp.ActionDeleted, owner))
	}
	return n, nil
}

// Update applies the allow-listed patch to the transaction with id inside
// the requested owner's scope. Owner and createdAt are never written.
// A patch that matches nothing returns core.ErrNotFound.
func (s *TransactionService) Update(ctx context.Context, id, requestedOwner string, in core.TransactionPatchInput) (int64, error) {
	scope, err := s.authorize(ctx, log.OpUpdate, requestedOwner, auth.Authorize)
	if err != nil {
		return 0, err
	}

	patch, err := in.Patch()
	if err != nil {
		return 0, err
	}

	n, err := s.store.UpdateByID(ctx, id, scope, patch, s.now())
	if err != nil {
		return 0, fmt.Errorf("update transaction %s: %w", id, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("update transaction %s: %w", id, core.ErrNotFound)
	}

	s.logger(ctx).InfoContext(ctx, "Transaction updated",
		log.FieldOperation, log.OpUpdate,
		log.FieldTransactionID, id,
		log.FieldOwner, scope.Owner)
	s.publish(ctx, amqp.NewTransactionEvent(id, amqp.ActionUpdated, scope.Owner))
	return n, nil
}

// CategoryTotal sums the owner's amounts in category. An unknown category
// totals zero.
func (s *TransactionService) CategoryTotal(ctx context.Context, owner, category string) (core.Money, error) {
	scope, err := s.authorize(ctx, log.OpTotal, owner, auth.AuthorizeOwner)
	if err != nil {
		return core.Money{}, err
	}
	return s.engine.CategoryTotal(ctx, scope, category)
}

func (s *TransactionService) Overview(ctx context.Context, owner string) (core.Overview, error) {
	scope, err := s.authorize(ctx, log.OpOverview, owner, auth.AuthorizeOwner)
	if err != nil {
		return core.Overview{}, err
	}
	return s.engine.Overview(ctx, scope)
}

func (s *TransactionService) Summary(ctx context.Context, owner string) (core.ReportSummary, error) {
	scope, err := s.authorize(ctx, log.OpSummary, owner, auth.AuthorizeOwner)
	if err != nil {
		return core.ReportSummary{}, err
	}
	return s.engine.Summary(ctx, scope)
}

// authorize runs check against the request principal and records refusals.
func (s *TransactionService) authorize(ctx context.Context, op, requested string, check func(principal, requested string) (core.Scope, error)) (core.Scope, error) {
	scope, err := check(auth.PrincipalFrom(ctx), requested)
	if err != nil {
		s.logger(ctx).WarnContext(ctx, "Access denied",
			log.NewFields().
				WithOperation(op).
				WithOwner(requested).
				WithError(err).
				ToSlice()...)
		return core.Scope{}, err
	}
	return scope, nil
}

func (s *TransactionService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// publish is best effort: the write already succeeded, so failures are
// logged and dropped.
func (s *TransactionService) publish(ctx context.Context, e amqp.TransactionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransactionEvent(ctx, e); err != nil {
		level := "error"
		if errors.Is(err, amqp.ErrCircuitOpen) {
			level = "circuit_open"
		}
		s.logger(ctx).WarnContext(ctx, "Failed to publish transaction event",
			log.FieldTransactionID, e.ID,
			"action", e.Action,
			"reason", level,
			log.FieldError, err.Error())
	}
}
