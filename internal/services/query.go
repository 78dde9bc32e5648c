package services

import (
	"context"
	"fmt"

	"ledger/internal/core"
)

// QueryEngine turns an outcome filter into a store range query. It holds no
// state beyond the store handle.
type QueryEngine struct {
	store CategoryStore
}

func NewQueryEngine(store CategoryStore) *QueryEngine {
	return &QueryEngine{store: store}
}

// Run validates f and returns the owner's categories matching it.
func (q *QueryEngine) Run(ctx context.Context, owner string, f core.Filter) ([]core.Category, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	switch f.Kind {
	case core.FilterTime:
		start, end := f.TimeBounds()
		cats, err := q.store.QueryByTimeRange(ctx, owner, start, end)
		if err != nil {
			return nil, fmt.Errorf("query by time range: %w", err)
		}
		return cats, nil
	case core.FilterMoney:
		min, max := f.AmountBounds()
		cats, err := q.store.QueryByAmountRange(ctx, owner, min, max)
		if err != nil {
			return nil, fmt.Errorf("query by amount range: %w", err)
		}
		return cats, nil
	default:
		// Validate rejects every other kind.
		return nil, core.Invalid(core.ErrUnknownFilter)
	}
}
