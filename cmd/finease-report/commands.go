package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"finease/internal/core"
	"finease/internal/query"
	"finease/internal/report"
	"finease/internal/storage"
)

type reportCLI struct {
	Timeout int `default:"60" help:"Seconds allowed for the whole command."`

	List     listCmd     `cmd:"" help:"List transactions, newest first by default."`
	Total    totalCmd    `cmd:"" help:"Sum the amounts of one category."`
	Overview overviewCmd `cmd:"" help:"Total income, total expense and balance."`
	Summary  summaryCmd  `cmd:"" help:"Per-category totals and per-month income and expense."`
}

// runContext is bound into every command's Run method.
type runContext struct {
	ctx    context.Context
	store  storage.Store
	engine *report.Engine
	out    io.Writer
}

func newRunContext(ctx context.Context, store storage.Store, out io.Writer) *runContext {
	return &runContext{ctx: ctx, store: store, engine: report.NewEngine(store), out: out}
}

func (rc *runContext) print(v any) error {
	enc := json.NewEncoder(rc.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

type listCmd struct {
	Owner     string `help:"Only this owner's transactions. Empty lists every owner."`
	Sort      string `default:"createdAt" enum:"createdAt,date,amount" help:"Sort field (createdAt, date, amount)."`
	Ascending bool   `help:"Sort ascending instead of descending."`
}

func (c *listCmd) Run(rc *runContext) error {
	order := "-1"
	if c.Ascending {
		order = "1"
	}
	txs, err := rc.store.Find(rc.ctx, query.Build(query.Params{Owner: c.Owner, Sort: c.Sort, Order: order}))
	if err != nil {
		return err
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	return rc.print(txs)
}

type totalCmd struct {
	Owner    string `required:"" help:"Owner email."`
	Category string `required:"" help:"Category to sum."`
}

func (c *totalCmd) Run(rc *runContext) error {
	total, err := rc.engine.CategoryTotal(rc.ctx, core.OwnedBy(c.Owner), c.Category)
	if err != nil {
		return err
	}
	return rc.print(map[string]core.Money{"total": total})
}

type overviewCmd struct {
	Owner string `help:"Owner email. Empty reports across every owner."`
}

func (c *overviewCmd) Run(rc *runContext) error {
	ov, err := rc.engine.Overview(rc.ctx, core.OwnedBy(c.Owner))
	if err != nil {
		return err
	}
	return rc.print(ov)
}

type summaryCmd struct {
	Owner string `help:"Owner email. Empty reports across every owner."`
}

func (c *summaryCmd) Run(rc *runContext) error {
	sum, err := rc.engine.Summary(rc.ctx, core.OwnedBy(c.Owner))
	if err != nil {
		return err
	}
	return rc.print(sum)
}
