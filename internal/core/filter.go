package core

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	FilterTime  FilterKind = "time"
	FilterMoney FilterKind = "money"
)

// Open bounds used when a filter omits one side of its window. Times span the
// int64 nanosecond range the stores index on; amounts span what Income and
// Outcome validation accepts.
var (
	MinTime   = time.Unix(0, math.MinInt64).UTC()
	MaxTime   = time.Unix(0, math.MaxInt64).UTC()
	MaxAmount = decimal.New(1, 15)
	MinAmount = MaxAmount.Neg()
)

var (
	ErrUnknownFilter = errors.New("unknown filter kind")
	ErrInvertedRange = errors.New("range start is after range end")
)

type (
	FilterKind string

	// Filter narrows an outcome query. Kind time windows category creation
	// dates; kind money windows outcome amounts. Nil bounds are open.
	Filter struct {
		Kind  FilterKind
		Start *time.Time
		End   *time.Time
		Min   *decimal.Decimal
		Max   *decimal.Decimal
	}
)

func (f Filter) Validate() error {
	switch f.Kind {
	case FilterTime:
		if f.Start != nil && f.End != nil && f.Start.After(*f.End) {
			return Invalid(ErrInvertedRange)
		}
	case FilterMoney:
		min, max := f.AmountBounds()
		if min.GreaterThan(max) {
			return Invalid(ErrInvertedRange)
		}
	default:
		return Invalid(fmt.Errorf("%w: %q", ErrUnknownFilter, f.Kind))
	}
	return nil
}

// TimeBounds returns the closed creation-date window, substituting open bounds
// and clamping given ones to [MinTime, MaxTime].
func (f Filter) TimeBounds() (time.Time, time.Time) {
	start, end := MinTime, MaxTime
	if f.Start != nil {
		start = clampTime(f.Start.UTC())
	}
	if f.End != nil {
		end = clampTime(f.End.UTC())
	}
	return start, end
}

func clampTime(t time.Time) time.Time {
	switch {
	case t.Before(MinTime):
		return MinTime
	case t.After(MaxTime):
		return MaxTime
	}
	return t
}

// AmountBounds returns the closed amount window, substituting open bounds.
func (f Filter) AmountBounds() (decimal.Decimal, decimal.Decimal) {
	min, max := MinAmount, MaxAmount
	if f.Min != nil {
		min = *f.Min
	}
	if f.Max != nil {
		max = *f.Max
	}
	return min, max
}

// InTimeRange reports whether t falls in [start, end].
func InTimeRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// HasOutcomeInRange reports whether c has at least one outcome in [min, max].
func (c Category) HasOutcomeInRange(min, max decimal.Decimal) bool {
	for _, o := range c.Outcomes {
		if o.Amount.GreaterThanOrEqual(min) && o.Amount.LessThanOrEqual(max) {
			return true
		}
	}
	return false
}
