// Package storagetest is a behavioural test suite shared by every Store
// implementation.
package storagetest

import (
	"context"
	"sort"
	"testing"
	"time"

	"finease/internal/core"
	"finease/internal/query"
	"finease/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) storage.Store

var base = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// NewTransaction builds a record with whole-second timestamps, which every
// backend round-trips exactly.
func NewTransaction(owner string, typ core.TransactionType, category string, cents int64, date string, createdOffset time.Duration) core.Transaction {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	created := base.Add(createdOffset)
	return core.Transaction{
		Owner:     owner,
		Type:      typ,
		Category:  category,
		Amount:    core.Money{Cents: cents},
		Date:      d,
		Name:      category + " " + date,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// Seed inserts txs and returns their IDs in order.
func Seed(t *testing.T, s storage.Store, txs ...core.Transaction) []string {
	t.Helper()
	ids := make([]string, len(txs))
	for i, tx := range txs {
		id, err := s.Insert(context.Background(), tx)
		require.NoError(t, err)
		require.NotEmpty(t, id)
		ids[i] = id
	}
	return ids
}

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndFind", func(t *testing.T) { testInsertAndFind(t, newStore(t)) })
	t.Run("FindUnknown", func(t *testing.T) { testFindUnknown(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("UpdateKeepsProtectedFields", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("UpdateRespectsScope", func(t *testing.T) { testUpdateScope(t, newStore(t)) })
	t.Run("FindScopeAndSort", func(t *testing.T) { testFindSort(t, newStore(t)) })
	t.Run("Aggregates", func(t *testing.T) { testAggregates(t, newStore(t)) })
	t.Run("EmptyAggregates", func(t *testing.T) { testEmptyAggregates(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

func testInsertAndFind(t *testing.T, s storage.Store) {
	ctx := context.Background()
	in := NewTransaction("a@x.com", core.Income, "Salary", 100050, "2024-01-15", 0)
	in.Description = "January pay"
	in.ID = "ignored"

	id, err := s.Insert(ctx, in)
	require.NoError(t, err)
	assert.NotEqual(t, "ignored", id)

	got, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, in.Owner, got.Owner)
	assert.Equal(t, in.Type, got.Type)
	assert.Equal(t, in.Category, got.Category)
	assert.Equal(t, in.Amount, got.Amount)
	assert.Equal(t, in.Description, got.Description)
	assert.Equal(t, in.Name, got.Name)
	assert.True(t, in.Date.Equal(got.Date), "date %v != %v", in.Date, got.Date)
	assert.True(t, in.CreatedAt.Equal(got.CreatedAt), "createdAt %v != %v", in.CreatedAt, got.CreatedAt)
	assert.True(t, in.UpdatedAt.Equal(got.UpdatedAt), "updatedAt %v != %v", in.UpdatedAt, got.UpdatedAt)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testFindUnknown(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s, NewTransaction("a@x.com", core.Expense, "Rent", 40000, "2024-01-20", 0))

	for _, id := range []string{"", "not-an-id", "00000000-0000-0000-0000-000000000000", "65a000000000000000000000"} {
		_, err := s.FindByID(ctx, id)
		assert.ErrorIs(t, err, core.ErrNotFound, "id %q", id)
	}
}

func testDelete(t *testing.T, s storage.Store) {
	ctx := context.Background()
	ids := Seed(t, s,
		NewTransaction("a@x.com", core.Expense, "Rent", 40000, "2024-01-20", 0),
		NewTransaction("a@x.com", core.Expense, "Food", 1500, "2024-01-21", time.Minute),
	)

	n, err := s.DeleteByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeleteByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.DeleteByID(ctx, "not-an-id")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = s.FindByID(ctx, ids[0])
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.FindByID(ctx, ids[1])
	assert.NoError(t, err)
}

func testUpdate(t *testing.T, s storage.Store) {
	ctx := context.Background()
	orig := NewTransaction("a@x.com", core.Income, "Salary", 100000, "2024-01-15", 0)
	ids := Seed(t, s, orig)

	category := "Bonus"
	amount := core.Money{Cents: -2500}
	typ := core.Expense
	date := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	desc := "corrected"
	later := base.Add(48 * time.Hour)

	n, err := s.UpdateByID(ctx, ids[0], core.OwnedBy("a@x.com"), core.TransactionPatch{
		Type: &typ, Category: &category, Amount: &amount, Date: &date, Description: &desc,
	}, later)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.FindByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Owner)
	assert.True(t, orig.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, later.Equal(got.UpdatedAt))
	assert.Equal(t, core.Expense, got.Type)
	assert.Equal(t, "Bonus", got.Category)
	assert.Equal(t, amount, got.Amount)
	assert.True(t, date.Equal(got.Date))
	assert.Equal(t, "corrected", got.Description)
	assert.Equal(t, orig.Name, got.Name)

	// An empty patch still matches and refreshes updatedAt.
	evenLater := later.Add(time.Hour)
	n, err = s.UpdateByID(ctx, ids[0], core.Scope{}, core.TransactionPatch{}, evenLater)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err = s.FindByID(ctx, ids[0])
	require.NoError(t, err)
	assert.True(t, evenLater.Equal(got.UpdatedAt))
	assert.Equal(t, "Bonus", got.Category)
}

func testUpdateScope(t *testing.T, s storage.Store) {
	ctx := context.Background()
	ids := Seed(t, s, NewTransaction("a@x.com", core.Income, "Salary", 100000, "2024-01-15", 0))
	category := "Stolen"

	n, err := s.UpdateByID(ctx, ids[0], core.OwnedBy("b@x.com"), core.TransactionPatch{Category: &category}, base)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.UpdateByID(ctx, "not-an-id", core.Scope{}, core.TransactionPatch{Category: &category}, base)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := s.FindByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Salary", got.Category)
}

func testFindSort(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s,
		NewTransaction("a@x.com", core.Expense, "Rent", 40000, "2024-01-20", 1*time.Minute),
		NewTransaction("a@x.com", core.Income, "Salary", 100000, "2024-01-15", 3*time.Minute),
		NewTransaction("a@x.com", core.Expense, "Food", 1500, "2024-02-02", 2*time.Minute),
		NewTransaction("b@x.com", core.Expense, "Food", 9900, "2023-12-01", 4*time.Minute),
	)

	categories := func(txs []core.Transaction) []string {
		out := make([]string, len(txs))
		for i, tx := range txs {
			out[i] = tx.Category
		}
		return out
	}

	txs, err := s.Find(ctx, query.Build(query.Params{Owner: "a@x.com"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"Salary", "Food", "Rent"}, categories(txs))

	txs, err = s.Find(ctx, query.Build(query.Params{Owner: "a@x.com", Sort: "date", Order: "1"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"Salary", "Rent", "Food"}, categories(txs))

	txs, err = s.Find(ctx, query.Build(query.Params{Owner: "a@x.com", Sort: "amount"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"Salary", "Rent", "Food"}, categories(txs))

	txs, err = s.Find(ctx, query.Build(query.Params{Sort: "date", Order: "1"}))
	require.NoError(t, err)
	require.Len(t, txs, 4)
	assert.Equal(t, "b@x.com", txs[0].Owner)

	txs, err = s.Find(ctx, query.Build(query.Params{Owner: "nobody@x.com"}))
	require.NoError(t, err)
	assert.NotNil(t, txs)
	assert.Empty(t, txs)
}

func testAggregates(t *testing.T, s storage.Store) {
	ctx := context.Background()
	Seed(t, s,
		NewTransaction("a@x.com", core.Income, "Salary", 100000, "2024-01-15", 0),
		NewTransaction("a@x.com", core.Expense, "Rent", 40000, "2024-01-20", time.Minute),
		NewTransaction("a@x.com", core.Expense, "Food", 1250, "2024-02-01", 2*time.Minute),
		NewTransaction("a@x.com", core.Expense, "Food", 750, "2024-02-28T23:59:59", 3*time.Minute),
		NewTransaction("b@x.com", core.Expense, "Food", 99900, "2024-02-10", 4*time.Minute),
	)
	scope := core.OwnedBy("a@x.com")

	total, err := s.SumAmount(ctx, scope, "Food")
	require.NoError(t, err)
	assert.Equal(t, core.Money{Cents: 2000}, total)

	total, err = s.SumAmount(ctx, scope, "Travel")
	require.NoError(t, err)
	assert.Equal(t, core.Money{}, total)

	total, err = s.SumAmount(ctx, core.Scope{}, "Food")
	require.NoError(t, err)
	assert.Equal(t, core.Money{Cents: 101900}, total)

	types, err := s.SumByType(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, core.Money{Cents: 100000}, types[core.Income])
	assert.Equal(t, core.Money{Cents: 42000}, types[core.Expense])

	cats, err := s.SumByCategory(ctx, scope)
	require.NoError(t, err)
	sort.Slice(cats, func(i, j int) bool { return cats[i].Category < cats[j].Category })
	assert.Equal(t, []core.CategoryTotal{
		{Category: "Food", Total: core.Money{Cents: 2000}},
		{Category: "Rent", Total: core.Money{Cents: 40000}},
		{Category: "Salary", Total: core.Money{Cents: 100000}},
	}, cats)

	parts, err := s.SumByMonthAndType(ctx, scope)
	require.NoError(t, err)
	sort.Slice(parts, func(i, j int) bool {
		if parts[i].Month != parts[j].Month {
			return parts[i].Month < parts[j].Month
		}
		return parts[i].Type < parts[j].Type
	})
	assert.Equal(t, []core.MonthTypeTotal{
		{Month: "2024-01", Type: core.Expense, Total: core.Money{Cents: 40000}},
		{Month: "2024-01", Type: core.Income, Total: core.Money{Cents: 100000}},
		{Month: "2024-02", Type: core.Expense, Total: core.Money{Cents: 2000}},
	}, parts)
}

func testEmptyAggregates(t *testing.T, s storage.Store) {
	ctx := context.Background()
	scope := core.OwnedBy("nobody@x.com")

	total, err := s.SumAmount(ctx, scope, "Food")
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	types, err := s.SumByType(ctx, scope)
	require.NoError(t, err)
	assert.True(t, types[core.Income].IsZero())
	assert.True(t, types[core.Expense].IsZero())

	cats, err := s.SumByCategory(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, cats)

	parts, err := s.SumByMonthAndType(ctx, scope)
	require.NoError(t, err)
	assert.Empty(t, parts)
}
