// Package sqlite is a Store backed by an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finease/internal/core"
	"finease/internal/query"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout sorts lexically, which keeps ORDER BY and substr() month
// buckets correct on TEXT columns.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const columns = "id, owner, type, category, amount_cents, date, description, name, created_at, updated_at"

var sortColumns = map[query.SortField]string{
	query.SortByCreatedAt: "created_at",
	query.SortByDate:      "date",
	query.SortByAmount:    "amount_cents",
}

type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath and migrates it.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return core.StoreError("ping", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, tx core.Transaction) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, tx.Owner, string(tx.Type), tx.Category, tx.Amount.Cents, formatTime(tx.Date),
		tx.Description, tx.Name, formatTime(tx.CreatedAt), formatTime(tx.UpdatedAt))
	if err != nil {
		return "", core.StoreError("insert transaction", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite", "id", id, "owner", tx.Owner, "amount_cents", tx.Amount.Cents)
	return id, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (core.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, core.StoreError("find transaction", err)
	}
	return tx, nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return 0, core.StoreError("delete transaction", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, core.StoreError("delete transaction", err)
	}
	return n, nil
}

func (s *Store) UpdateByID(ctx context.Context, id string, scope core.Scope, patch core.TransactionPatch, updatedAt time.Time) (int64, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(updatedAt)}
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.Type != nil {
		add("type", string(*patch.Type))
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.Amount != nil {
		add("amount_cents", patch.Amount.Cents)
	}
	if patch.Date != nil {
		add("date", formatTime(*patch.Date))
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}

	where, whereArgs := scopeClause(scope, "id = ?", id)
	args = append(args, whereArgs...)

	res, err := s.db.ExecContext(ctx, `UPDATE transactions SET `+strings.Join(sets, ", ")+where, args...)
	if err != nil {
		return 0, core.StoreError("update transaction", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, core.StoreError("update transaction", err)
	}
	return n, nil
}

func (s *Store) Find(ctx context.Context, spec query.Spec) ([]core.Transaction, error) {
	where, args := scopeClause(spec.Scope)
	dir := spec.Order.SQL()
	order := fmt.Sprintf(" ORDER BY %s %s, id %s", sortColumns[spec.Field], dir, dir)
	return s.list(ctx, "find transactions", `SELECT `+columns+` FROM transactions`+where+order, args...)
}

func (s *Store) All(ctx context.Context) ([]core.Transaction, error) {
	return s.list(ctx, "list transactions", `SELECT `+columns+` FROM transactions ORDER BY created_at, id`)
}

func (s *Store) SumAmount(ctx context.Context, scope core.Scope, category string) (core.Money, error) {
	where, args := scopeClause(scope, "category = ?", category)
	var cents int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount_cents), 0) FROM transactions`+where, args...).Scan(&cents)
	if err != nil {
		return core.Money{}, core.StoreError("sum amount", err)
	}
	return core.Money{Cents: cents}, nil
}

func (s *Store) SumByType(ctx context.Context, scope core.Scope) (core.TypeTotals, error) {
	where, args := scopeClause(scope)
	rows, err := s.db.QueryContext(ctx, `SELECT type, SUM(amount_cents) FROM transactions`+where+` GROUP BY type`, args...)
	if err != nil {
		return nil, core.StoreError("sum by type", err)
	}
	defer rows.Close()

	totals := core.TypeTotals{}
	for rows.Next() {
		var typ string
		var cents int64
		if err := rows.Scan(&typ, &cents); err != nil {
			return nil, core.StoreError("sum by type", err)
		}
		totals[core.TransactionType(typ)] = core.Money{Cents: cents}
	}
	if err := rows.Err(); err != nil {
		return nil, core.StoreError("sum by type", err)
	}
	return totals, nil
}

func (s *Store) SumByCategory(ctx context.Context, scope core.Scope) ([]core.CategoryTotal, error) {
	where, args := scopeClause(scope)
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, SUM(amount_cents) FROM transactions`+where+` GROUP BY category ORDER BY category`, args...)
	if err != nil {
		return nil, core.StoreError("sum by category", err)
	}
	defer rows.Close()

	out := []core.CategoryTotal{}
	for rows.Next() {
		var ct core.CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total.Cents); err != nil {
			return nil, core.StoreError("sum by category", err)
		}
		out = append(out, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, core.StoreError("sum by category", err)
	}
	return out, nil
}

func (s *Store) SumByMonthAndType(ctx context.Context, scope core.Scope) ([]core.MonthTypeTotal, error) {
	where, args := scopeClause(scope)
	rows, err := s.db.QueryContext(ctx,
		`SELECT substr(date, 1, 7) AS month, type, SUM(amount_cents) FROM transactions`+where+
			` GROUP BY month, type ORDER BY month, type`, args...)
	if err != nil {
		return nil, core.StoreError("sum by month", err)
	}
	defer rows.Close()

	out := []core.MonthTypeTotal{}
	for rows.Next() {
		var mt core.MonthTypeTotal
		var typ string
		if err := rows.Scan(&mt.Month, &typ, &mt.Total.Cents); err != nil {
			return nil, core.StoreError("sum by month", err)
		}
		mt.Type = core.TransactionType(typ)
		out = append(out, mt)
	}
	if err := rows.Err(); err != nil {
		return nil, core.StoreError("sum by month", err)
	}
	return out, nil
}

func (s *Store) list(ctx context.Context, op, q string, args ...any) ([]core.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, core.StoreError(op, err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, core.StoreError(op, err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, core.StoreError(op, err)
	}
	return out, nil
}

// scopeClause builds a WHERE clause from the owner scope plus one optional
// extra condition with its argument.
func scopeClause(scope core.Scope, extra ...any) (string, []any) {
	var conds []string
	var args []any
	if len(extra) == 2 {
		conds = append(conds, extra[0].(string))
		args = append(args, extra[1])
	}
	if scope.Scoped() {
		conds = append(conds, "owner = ?")
		args = append(args, scope.Owner)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		tx                     core.Transaction
		typ                    string
		date, created, updated string
	)
	if err := row.Scan(&tx.ID, &tx.Owner, &typ, &tx.Category, &tx.Amount.Cents, &date,
		&tx.Description, &tx.Name, &created, &updated); err != nil {
		return core.Transaction{}, err
	}
	tx.Type = core.TransactionType(typ)

	var err error
	if tx.Date, err = parseTime(date); err != nil {
		return core.Transaction{}, err
	}
	if tx.CreatedAt, err = parseTime(created); err != nil {
		return core.Transaction{}, err
	}
	if tx.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}
