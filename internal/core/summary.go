package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CategorySummary is a compact view of a category for listings.
type CategorySummary struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	CreatedAt    time.Time       `json:"createdAt"`
	IncomeCount  int             `json:"incomeCount"`
	OutcomeCount int             `json:"outcomeCount"`
	IncomeTotal  decimal.Decimal `json:"incomeTotal"`
	OutcomeTotal decimal.Decimal `json:"outcomeTotal"`
	PendingCount int             `json:"pendingCount"`
}

// Summary aggregates c's records.
func (c Category) Summary() CategorySummary {
	pending := 0
	for _, o := range c.Outcomes {
		if o.Status != StatusCompleted {
			pending++
		}
	}
	return CategorySummary{
		ID:           c.ID,
		Name:         c.Name,
		CreatedAt:    c.CreatedAt,
		IncomeCount:  len(c.Incomes),
		OutcomeCount: len(c.Outcomes),
		IncomeTotal:  SumIncomes(c.Incomes),
		OutcomeTotal: SumOutcomes(c.Outcomes),
		PendingCount: pending,
	}
}
