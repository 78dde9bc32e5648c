package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"ledger/internal/core"

	"github.com/shopspring/decimal"
)

// Header is the first row of an exported ledger sheet.
var Header = []string{
	"Event", "Occurred", "Owner", "Kind", "Category", "Detail",
	"Incomes", "Outcomes", "Income total", "Outcome total",
}

// Ports for outbound adapters.
type (
	// EventWriter appends one row per ledger event.
	EventWriter interface {
		AppendRow(ctx context.Context, r Row) (rowRef string, err error)
	}

	// RowLister reads back exported rows, oldest first.
	RowLister interface {
		ListRows(ctx context.Context) ([]Row, error)
	}
)

// Row is the flattened, spreadsheet-friendly form of a ledger event.
type Row struct {
	EventID      int64
	OccurredAt   time.Time
	Owner        string
	Kind         core.EventKind
	Category     string
	Detail       string
	Incomes      int
	Outcomes     int
	IncomeTotal  decimal.Decimal
	OutcomeTotal decimal.Decimal
}

// Values renders r in Header column order.
func (r Row) Values() []any {
	return []any{
		strconv.FormatInt(r.EventID, 10),
		r.OccurredAt.UTC().Format(time.RFC3339),
		r.Owner,
		string(r.Kind),
		r.Category,
		r.Detail,
		r.Incomes,
		r.Outcomes,
		r.IncomeTotal.StringFixed(2),
		r.OutcomeTotal.StringFixed(2),
	}
}

// RowFromEvent flattens e, decoding its kind-specific payload.
func RowFromEvent(e core.Event) (Row, error) {
	r := Row{
		EventID:    e.ID,
		OccurredAt: e.OccurredAt,
		Owner:      e.Owner,
		Kind:       e.Kind,
		Category:   e.Category,
	}
	switch e.Kind {
	case core.EventCategoryCreated:
		r.Detail = "created"
	case core.EventCategoryRenamed:
		var p core.RenamePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return Row{}, fmt.Errorf("decode rename payload: %w", err)
		}
		r.Detail = fmt.Sprintf("renamed from %q", p.From)
	case core.EventCategoryDeleted:
		var p core.MergeResult
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return Row{}, fmt.Errorf("decode delete payload: %w", err)
		}
		r.Detail = fmt.Sprintf("merged into %q", p.Target)
		r.Incomes, r.Outcomes = p.IncomesMoved, p.OutcomesMoved
	case core.EventTransactionsAppended:
		var p core.AppendPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return Row{}, fmt.Errorf("decode append payload: %w", err)
		}
		r.Detail = "appended"
		r.Incomes, r.Outcomes = len(p.Incomes), len(p.Outcomes)
		r.IncomeTotal = core.SumIncomes(p.Incomes)
		r.OutcomeTotal = core.SumOutcomes(p.Outcomes)
	default:
		return Row{}, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return r, nil
}
