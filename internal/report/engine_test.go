package report

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"finease/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sliceAggregator answers every primitive from an in-memory slice.
type sliceAggregator struct {
	txs   []core.Transaction
	err   error
	calls atomic.Int32
}

func (s *sliceAggregator) SumAmount(_ context.Context, scope core.Scope, category string) (core.Money, error) {
	s.calls.Add(1)
	return SumWhere(s.txs, scope, category), s.err
}

func (s *sliceAggregator) SumByType(_ context.Context, scope core.Scope) (core.TypeTotals, error) {
	s.calls.Add(1)
	return FoldTypes(s.txs, scope), s.err
}

func (s *sliceAggregator) SumByCategory(_ context.Context, scope core.Scope) ([]core.CategoryTotal, error) {
	s.calls.Add(1)
	return FoldCategories(s.txs, scope), s.err
}

func (s *sliceAggregator) SumByMonthAndType(_ context.Context, scope core.Scope) ([]core.MonthTypeTotal, error) {
	s.calls.Add(1)
	return FoldMonthTypes(s.txs, scope), s.err
}

func tx(owner string, typ core.TransactionType, category string, cents int64, date string) core.Transaction {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.Transaction{Owner: owner, Type: typ, Category: category, Amount: core.Money{Cents: cents}, Date: d}
}

func money(cents int64) core.Money { return core.Money{Cents: cents} }

func TestEngine_WorkedExample(t *testing.T) {
	agg := &sliceAggregator{txs: []core.Transaction{
		tx("a@x", core.Income, "Salary", 100000, "2024-01-15"),
		tx("a@x", core.Expense, "Rent", 40000, "2024-01-20"),
		tx("b@x", core.Expense, "Rent", 99900, "2024-01-21"),
	}}
	engine := NewEngine(agg)
	ctx := context.Background()
	scope := core.OwnedBy("a@x")

	ov, err := engine.Overview(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, core.Overview{TotalIncome: money(100000), TotalExpense: money(40000), Balance: money(60000)}, ov)

	months, err := engine.MonthlyBreakdown(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, []core.MonthlyTotal{{Month: "2024-01", Income: money(100000), Expense: money(40000)}}, months)
}

func TestEngine_CategoryTotal(t *testing.T) {
	agg := &sliceAggregator{txs: []core.Transaction{
		tx("a@x", core.Expense, "Food", 1250, "2024-01-02"),
		tx("a@x", core.Expense, "Food", 750, "2024-02-02"),
		tx("b@x", core.Expense, "Food", 5000, "2024-02-02"),
	}}
	engine := NewEngine(agg)

	total, err := engine.CategoryTotal(context.Background(), core.OwnedBy("a@x"), "Food")
	require.NoError(t, err)
	assert.Equal(t, money(2000), total)

	total, err = engine.CategoryTotal(context.Background(), core.OwnedBy("a@x"), "Travel")
	require.NoError(t, err)
	assert.Equal(t, money(0), total)
}

func TestEngine_EmptySet(t *testing.T) {
	engine := NewEngine(&sliceAggregator{})
	ctx := context.Background()

	ov, err := engine.Overview(ctx, core.OwnedBy("nobody"))
	require.NoError(t, err)
	assert.Equal(t, core.Overview{}, ov)

	summary, err := engine.Summary(ctx, core.OwnedBy("nobody"))
	require.NoError(t, err)
	assert.NotNil(t, summary.Category)
	assert.NotNil(t, summary.Monthly)
	assert.Empty(t, summary.Category)
	assert.Empty(t, summary.Monthly)
}

func TestEngine_MonthlyOrderingAndZeroFill(t *testing.T) {
	agg := &sliceAggregator{txs: []core.Transaction{
		tx("a@x", core.Expense, "Rent", 40000, "2024-03-01"),
		tx("a@x", core.Income, "Salary", 100000, "2024-01-31T23:59:59"),
		tx("a@x", core.Income, "Bonus", 5000, "2024-03-15"),
		tx("a@x", core.Income, "Salary", 100000, "2023-12-31"),
	}}
	months, err := NewEngine(agg).MonthlyBreakdown(context.Background(), core.OwnedBy("a@x"))
	require.NoError(t, err)

	assert.Equal(t, []core.MonthlyTotal{
		{Month: "2023-12", Income: money(100000), Expense: money(0)},
		{Month: "2024-01", Income: money(100000), Expense: money(0)},
		{Month: "2024-03", Income: money(5000), Expense: money(40000)},
	}, months)
}

func TestEngine_Summary(t *testing.T) {
	agg := &sliceAggregator{txs: []core.Transaction{
		tx("a@x", core.Expense, "Rent", 40000, "2024-01-20"),
		tx("a@x", core.Income, "Salary", 100000, "2024-01-15"),
		tx("a@x", core.Expense, "Food", 3000, "2024-02-03"),
		tx("a@x", core.Expense, "Food", 2000, "2024-02-04"),
	}}
	summary, err := NewEngine(agg).Summary(context.Background(), core.OwnedBy("a@x"))
	require.NoError(t, err)

	assert.Equal(t, []core.CategoryTotal{
		{Category: "Food", Total: money(5000)},
		{Category: "Rent", Total: money(40000)},
		{Category: "Salary", Total: money(100000)},
	}, summary.Category)
	assert.Equal(t, []core.MonthlyTotal{
		{Month: "2024-01", Income: money(100000), Expense: money(40000)},
		{Month: "2024-02", Income: money(0), Expense: money(5000)},
	}, summary.Monthly)
	assert.Equal(t, int32(2), agg.calls.Load())
}

func TestEngine_StoreFailure(t *testing.T) {
	cause := core.StoreError("aggregate", errors.New("connection refused"))
	engine := NewEngine(&sliceAggregator{err: cause})
	ctx := context.Background()

	_, err := engine.Overview(ctx, core.Scope{})
	assert.ErrorIs(t, err, core.ErrStoreFailure)

	_, err = engine.CategoryTotal(ctx, core.Scope{}, "Food")
	assert.ErrorIs(t, err, core.ErrStoreFailure)

	_, err = engine.Summary(ctx, core.Scope{})
	assert.ErrorIs(t, err, core.ErrStoreFailure)
}

func TestFoldMonths_BalanceIdentity(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var txs []core.Transaction
	for i := 0; i < 20; i++ {
		typ := core.Income
		if i%3 == 0 {
			typ = core.Expense
		}
		txs = append(txs, core.Transaction{
			Owner:  "a@x",
			Type:   typ,
			Amount: money(int64(i*137 - 500)),
			Date:   now.AddDate(0, -i%4, 0),
		})
	}

	totals := FoldTypes(txs, core.Scope{})
	ov := core.NewOverview(totals[core.Income], totals[core.Expense])

	var income, expense core.Money
	for _, m := range FoldMonths(FoldMonthTypes(txs, core.Scope{})) {
		income = income.Add(m.Income)
		expense = expense.Add(m.Expense)
	}
	assert.Equal(t, ov.TotalIncome, income)
	assert.Equal(t, ov.TotalExpense, expense)
	assert.Equal(t, income.Sub(expense), ov.Balance)
}
