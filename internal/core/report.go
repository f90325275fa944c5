package core

// Overview is the income and expense totals of a scope.
// Balance is always TotalIncome - TotalExpense.
type Overview struct {
	TotalIncome  Money `json:"totalIncome"`
	TotalExpense Money `json:"totalExpense"`
	Balance      Money `json:"balance"`
}

// CategoryTotal is the sum of amounts for one category.
type CategoryTotal struct {
	Category string `json:"category"`
	Total    Money  `json:"total"`
}

// MonthlyTotal splits one YYYY-MM bucket into income and expense.
type MonthlyTotal struct {
	Month   string `json:"month"`
	Income  Money  `json:"income"`
	Expense Money  `json:"expense"`
}

// TypeTotals holds the sum per transaction type.
type TypeTotals map[TransactionType]Money

// MonthTypeTotal is a partial sum for one (month, type) pair.
type MonthTypeTotal struct {
	Month string
	Type  TransactionType
	Total Money
}

// ReportSummary combines the category and monthly breakdowns.
type ReportSummary struct {
	Category []CategoryTotal `json:"category"`
	Monthly  []MonthlyTotal  `json:"monthly"`
}

// NewOverview derives the balance from the two totals.
func NewOverview(income, expense Money) Overview {
	return Overview{
		TotalIncome:  income,
		TotalExpense: expense,
		Balance:      income.Sub(expense),
	}
}
