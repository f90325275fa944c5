// Package query turns list request parameters into a validated query and
// sort specification that every store can execute.
package query

import (
	"strings"

	"finease/internal/core"
)

// SortField is the closed set of fields a list can be ordered by.
type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByDate      SortField = "date"
	SortByAmount    SortField = "amount"
)

// Order is 1 for ascending and -1 for descending.
type Order int

const (
	Ascending  Order = 1
	Descending Order = -1
)

// Params are the raw, untrusted list parameters.
type Params struct {
	Owner string
	Sort  string
	Order string
}

// Spec is a validated list query.
type Spec struct {
	Scope core.Scope
	Field SortField
	Order Order
}

// Build validates p. It never fails: unknown sort fields fall back to
// createdAt and any order other than "1" is descending.
func Build(p Params) Spec {
	return Spec{
		Scope: core.OwnedBy(strings.TrimSpace(p.Owner)),
		Field: ParseSortField(p.Sort),
		Order: ParseOrder(p.Order),
	}
}

func ParseSortField(s string) SortField {
	switch SortField(strings.TrimSpace(s)) {
	case SortByDate:
		return SortByDate
	case SortByAmount:
		return SortByAmount
	default:
		return SortByCreatedAt
	}
}

func ParseOrder(s string) Order {
	if strings.TrimSpace(s) == "1" {
		return Ascending
	}
	return Descending
}

func (o Order) Ascending() bool {
	return o == Ascending
}

// SQL returns the ORDER BY direction keyword.
func (o Order) SQL() string {
	if o.Ascending() {
		return "ASC"
	}
	return "DESC"
}

// Less reports whether a sorts before b under the spec. Ties are broken by
// ID so results are deterministic.
func (s Spec) Less(a, b core.Transaction) bool {
	c := compare(s.Field, a, b)
	if c == 0 {
		c = strings.Compare(a.ID, b.ID)
	}
	if s.Order.Ascending() {
		return c < 0
	}
	return c > 0
}

func compare(f SortField, a, b core.Transaction) int {
	switch f {
	case SortByDate:
		return a.Date.Compare(b.Date)
	case SortByAmount:
		switch {
		case a.Amount.Cents < b.Amount.Cents:
			return -1
		case a.Amount.Cents > b.Amount.Cents:
			return 1
		}
		return 0
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}
