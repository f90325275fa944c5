// Package report computes totals and time-bucketed breakdowns over
// transactions. Each report is an independent reduction: the store runs the
// grouping it can push down and the engine shapes the result.
package report

import (
	"context"
	"fmt"
	"sort"

	"finease/internal/core"

	"golang.org/x/sync/errgroup"
)

// Aggregator is the set of aggregate primitives a store must provide.
type Aggregator interface {
	// SumAmount sums amounts of records in scope with the given category.
	SumAmount(ctx context.Context, scope core.Scope, category string) (core.Money, error)
	// SumByType sums amounts per transaction type.
	SumByType(ctx context.Context, scope core.Scope) (core.TypeTotals, error)
	// SumByCategory sums amounts per distinct category.
	SumByCategory(ctx context.Context, scope core.Scope) ([]core.CategoryTotal, error)
	// SumByMonthAndType sums amounts per (YYYY-MM, type) pair.
	SumByMonthAndType(ctx context.Context, scope core.Scope) ([]core.MonthTypeTotal, error)
}

type Engine struct {
	agg Aggregator
}

func NewEngine(agg Aggregator) *Engine {
	return &Engine{agg: agg}
}

// CategoryTotal returns zero when nothing matches.
func (e *Engine) CategoryTotal(ctx context.Context, scope core.Scope, category string) (core.Money, error) {
	total, err := e.agg.SumAmount(ctx, scope, category)
	if err != nil {
		return core.Money{}, fmt.Errorf("category total: %w", err)
	}
	return total, nil
}

func (e *Engine) Overview(ctx context.Context, scope core.Scope) (core.Overview, error) {
	totals, err := e.agg.SumByType(ctx, scope)
	if err != nil {
		return core.Overview{}, fmt.Errorf("overview: %w", err)
	}
	return core.NewOverview(totals[core.Income], totals[core.Expense]), nil
}

// CategoryBreakdown returns one entry per category present, ordered by name.
func (e *Engine) CategoryBreakdown(ctx context.Context, scope core.Scope) ([]core.CategoryTotal, error) {
	cats, err := e.agg.SumByCategory(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("category breakdown: %w", err)
	}
	out := append(make([]core.CategoryTotal, 0, len(cats)), cats...)
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// MonthlyBreakdown returns income and expense per month, ascending.
func (e *Engine) MonthlyBreakdown(ctx context.Context, scope core.Scope) ([]core.MonthlyTotal, error) {
	parts, err := e.agg.SumByMonthAndType(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("monthly breakdown: %w", err)
	}
	return FoldMonths(parts), nil
}

// Summary runs the category and monthly breakdowns concurrently.
func (e *Engine) Summary(ctx context.Context, scope core.Scope) (core.ReportSummary, error) {
	var (
		cats   []core.CategoryTotal
		months []core.MonthlyTotal
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cats, err = e.CategoryBreakdown(gctx, scope)
		return err
	})
	g.Go(func() error {
		var err error
		months, err = e.MonthlyBreakdown(gctx, scope)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.ReportSummary{}, fmt.Errorf("reports summary: %w", err)
	}

	return core.ReportSummary{Category: cats, Monthly: months}, nil
}
