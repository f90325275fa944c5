package report

import (
	"sort"

	"finease/internal/core"
)

// SumWhere sums the amounts of records in scope with the given category.
func SumWhere(txs []core.Transaction, scope core.Scope, category string) core.Money {
	var total core.Money
	for _, tx := range txs {
		if scope.Matches(tx) && tx.Category == category {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// FoldTypes sums amounts per type.
func FoldTypes(txs []core.Transaction, scope core.Scope) core.TypeTotals {
	totals := core.TypeTotals{}
	for _, tx := range txs {
		if scope.Matches(tx) {
			totals[tx.Type] = totals[tx.Type].Add(tx.Amount)
		}
	}
	return totals
}

// FoldCategories sums amounts per category in first-seen order.
func FoldCategories(txs []core.Transaction, scope core.Scope) []core.CategoryTotal {
	index := map[string]int{}
	out := []core.CategoryTotal{}
	for _, tx := range txs {
		if !scope.Matches(tx) {
			continue
		}
		i, ok := index[tx.Category]
		if !ok {
			i = len(out)
			index[tx.Category] = i
			out = append(out, core.CategoryTotal{Category: tx.Category})
		}
		out[i].Total = out[i].Total.Add(tx.Amount)
	}
	return out
}

// FoldMonthTypes sums amounts per (month, type) pair.
func FoldMonthTypes(txs []core.Transaction, scope core.Scope) []core.MonthTypeTotal {
	type key struct {
		month string
		typ   core.TransactionType
	}
	index := map[key]int{}
	out := []core.MonthTypeTotal{}
	for _, tx := range txs {
		if !scope.Matches(tx) {
			continue
		}
		k := key{month: core.MonthBucket(tx.Date), typ: tx.Type}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, core.MonthTypeTotal{Month: k.month, Type: k.typ})
		}
		out[i].Total = out[i].Total.Add(tx.Amount)
	}
	return out
}

// FoldMonths merges per-type partials into one row per month, ascending by
// month. A type absent from a month contributes zero.
func FoldMonths(parts []core.MonthTypeTotal) []core.MonthlyTotal {
	index := map[string]int{}
	out := []core.MonthlyTotal{}
	for _, p := range parts {
		i, ok := index[p.Month]
		if !ok {
			i = len(out)
			index[p.Month] = i
			out = append(out, core.MonthlyTotal{Month: p.Month})
		}
		switch p.Type {
		case core.Income:
			out[i].Income = out[i].Income.Add(p.Total)
		case core.Expense:
			out[i].Expense = out[i].Expense.Add(p.Total)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}
