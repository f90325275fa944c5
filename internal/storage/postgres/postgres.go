// Package postgres is a Store backed by PostgreSQL through bun.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"finease/internal/core"
	"finease/internal/query"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

type transactionRow struct {
	bun.BaseModel `bun:"table:transactions"`

	ID          string    `bun:",pk"`
	Owner       string    `bun:",notnull"`
	Type        string    `bun:",notnull"`
	Category    string    `bun:",notnull"`
	AmountCents int64     `bun:",notnull"`
	Date        time.Time `bun:",notnull"`
	Description string
	Name        string
	CreatedAt   time.Time `bun:",notnull"`
	UpdatedAt   time.Time `bun:",notnull"`
}

func toRow(tx core.Transaction) *transactionRow {
	return &transactionRow{
		ID:          tx.ID,
		Owner:       tx.Owner,
		Type:        string(tx.Type),
		Category:    tx.Category,
		AmountCents: tx.Amount.Cents,
		Date:        tx.Date.UTC(),
		Description: tx.Description,
		Name:        tx.Name,
		CreatedAt:   tx.CreatedAt.UTC(),
		UpdatedAt:   tx.UpdatedAt.UTC(),
	}
}

func (r transactionRow) transaction() core.Transaction {
	return core.Transaction{
		ID:          r.ID,
		Owner:       r.Owner,
		Type:        core.TransactionType(r.Type),
		Category:    r.Category,
		Amount:      core.Money{Cents: r.AmountCents},
		Date:        r.Date.UTC(),
		Description: r.Description,
		Name:        r.Name,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type typeSum struct {
	Type  string `bun:"type"`
	Total int64  `bun:"total"`
}

type categorySum struct {
	Category string `bun:"category"`
	Total    int64  `bun:"total"`
}

type monthSum struct {
	Month string `bun:"month"`
	Type  string `bun:"type"`
	Total int64  `bun:"total"`
}

var sortColumns = map[query.SortField]string{
	query.SortByCreatedAt: "created_at",
	query.SortByDate:      "date",
	query.SortByAmount:    "amount_cents",
}

type Store struct {
	db *bun.DB
}

// Open connects to dsn and makes sure the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewStore(bun.NewDB(sqldb, pgdialect.New()))
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the transactions table and its indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*transactionRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create transactions table: %w", err)
	}

	indexes := map[string][]string{
		"transactions_owner_created_at_idx": {"owner", "created_at"},
		"transactions_owner_category_idx":   {"owner", "category"},
		"transactions_owner_date_idx":       {"owner", "date"},
	}
	for name, cols := range indexes {
		_, err := s.db.NewCreateIndex().
			Model((*transactionRow)(nil)).
			Index(name).
			Column(cols...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return core.StoreError("ping", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, tx core.Transaction) (string, error) {
	row := toRow(tx)
	row.ID = uuid.NewString()
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return "", core.StoreError("insert transaction", err)
	}
	return row.ID, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (core.Transaction, error) {
	var row transactionRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, core.StoreError("find transaction", err)
	}
	return row.transaction(), nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) (int64, error) {
	res, err := s.db.NewDelete().Model((*transactionRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return 0, core.StoreError("delete transaction", err)
	}
	return rowsAffected("delete transaction", res)
}

func (s *Store) UpdateByID(ctx context.Context, id string, scope core.Scope, patch core.TransactionPatch, updatedAt time.Time) (int64, error) {
	q := s.db.NewUpdate().
		Model((*transactionRow)(nil)).
		Set("updated_at = ?", updatedAt.UTC()).
		Where("id = ?", id).
		ApplyQueryBuilder(scoped(scope))

	if patch.Type != nil {
		q = q.Set("type = ?", string(*patch.Type))
	}
	if patch.Category != nil {
		q = q.Set("category = ?", *patch.Category)
	}
	if patch.Amount != nil {
		q = q.Set("amount_cents = ?", patch.Amount.Cents)
	}
	if patch.Date != nil {
		q = q.Set("date = ?", patch.Date.UTC())
	}
	if patch.Description != nil {
		q = q.Set("description = ?", *patch.Description)
	}
	if patch.Name != nil {
		q = q.Set("name = ?", *patch.Name)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, core.StoreError("update transaction", err)
	}
	return rowsAffected("update transaction", res)
}

func (s *Store) Find(ctx context.Context, spec query.Spec) ([]core.Transaction, error) {
	dir := spec.Order.SQL()
	var rows []transactionRow
	err := s.db.NewSelect().
		Model(&rows).
		ApplyQueryBuilder(scoped(spec.Scope)).
		OrderExpr(sortColumns[spec.Field] + " " + dir + ", id " + dir).
		Scan(ctx)
	if err != nil {
		return nil, core.StoreError("find transactions", err)
	}
	return transactions(rows), nil
}

func (s *Store) All(ctx context.Context) ([]core.Transaction, error) {
	var rows []transactionRow
	if err := s.db.NewSelect().Model(&rows).OrderExpr("created_at, id").Scan(ctx); err != nil {
		return nil, core.StoreError("list transactions", err)
	}
	return transactions(rows), nil
}

func (s *Store) SumAmount(ctx context.Context, scope core.Scope, category string) (core.Money, error) {
	var cents int64
	err := s.db.NewSelect().
		Model((*transactionRow)(nil)).
		ColumnExpr("COALESCE(SUM(amount_cents), 0)").
		Where("category = ?", category).
		ApplyQueryBuilder(scoped(scope)).
		Scan(ctx, &cents)
	if err != nil {
		return core.Money{}, core.StoreError("sum amount", err)
	}
	return core.Money{Cents: cents}, nil
}

func (s *Store) SumByType(ctx context.Context, scope core.Scope) (core.TypeTotals, error) {
	var sums []typeSum
	err := s.db.NewSelect().
		Model((*transactionRow)(nil)).
		ColumnExpr("type").
		ColumnExpr("SUM(amount_cents) AS total").
		ApplyQueryBuilder(scoped(scope)).
		Group("type").
		Scan(ctx, &sums)
	if err != nil {
		return nil, core.StoreError("sum by type", err)
	}

	totals := core.TypeTotals{}
	for _, sum := range sums {
		totals[core.TransactionType(sum.Type)] = core.Money{Cents: sum.Total}
	}
	return totals, nil
}

func (s *Store) SumByCategory(ctx context.Context, scope core.Scope) ([]core.CategoryTotal, error) {
	var sums []categorySum
	err := s.db.NewSelect().
		Model((*transactionRow)(nil)).
		ColumnExpr("category").
		ColumnExpr("SUM(amount_cents) AS total").
		ApplyQueryBuilder(scoped(scope)).
		Group("category").
		Order("category").
		Scan(ctx, &sums)
	if err != nil {
		return nil, core.StoreError("sum by category", err)
	}

	out := make([]core.CategoryTotal, 0, len(sums))
	for _, sum := range sums {
		out = append(out, core.CategoryTotal{Category: sum.Category, Total: core.Money{Cents: sum.Total}})
	}
	return out, nil
}

func (s *Store) SumByMonthAndType(ctx context.Context, scope core.Scope) ([]core.MonthTypeTotal, error) {
	var sums []monthSum
	err := s.db.NewSelect().
		Model((*transactionRow)(nil)).
		ColumnExpr("to_char(date AT TIME ZONE 'UTC', 'YYYY-MM') AS month").
		ColumnExpr("type").
		ColumnExpr("SUM(amount_cents) AS total").
		ApplyQueryBuilder(scoped(scope)).
		GroupExpr("month, type").
		OrderExpr("month, type").
		Scan(ctx, &sums)
	if err != nil {
		return nil, core.StoreError("sum by month", err)
	}

	out := make([]core.MonthTypeTotal, 0, len(sums))
	for _, sum := range sums {
		out = append(out, core.MonthTypeTotal{
			Month: sum.Month,
			Type:  core.TransactionType(sum.Type),
			Total: core.Money{Cents: sum.Total},
		})
	}
	return out, nil
}

func scoped(scope core.Scope) func(bun.QueryBuilder) bun.QueryBuilder {
	return func(qb bun.QueryBuilder) bun.QueryBuilder {
		if scope.Scoped() {
			return qb.Where("owner = ?", scope.Owner)
		}
		return qb
	}
}

func transactions(rows []transactionRow) []core.Transaction {
	out := make([]core.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.transaction())
	}
	return out
}

func rowsAffected(op string, res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, core.StoreError(op, err)
	}
	return n, nil
}
