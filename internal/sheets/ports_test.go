package sheets

import (
	"encoding/json"
	"testing"
	"time"

	"ledger/internal/core"

	"github.com/shopspring/decimal"
)

func TestRowFromEvent(t *testing.T) {
	c := core.Category{Name: "Groceries", Owner: "u1"}
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	appended := core.NewEvent(core.EventTransactionsAppended, c, core.AppendPayload{
		Incomes: []core.Income{{Description: "cashback", Amount: decimal.RequireFromString("1.5")}},
		Outcomes: []core.Outcome{
			{Description: "milk", Amount: decimal.RequireFromString("3.5")},
			{Description: "eggs", Amount: decimal.RequireFromString("2.25")},
		},
	}, now)
	appended.ID = 9

	r, err := RowFromEvent(appended)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Incomes != 1 || r.Outcomes != 2 {
		t.Fatalf("unexpected counts: %+v", r)
	}
	vals := r.Values()
	if len(vals) != len(Header) {
		t.Fatalf("values/header mismatch: %d vs %d", len(vals), len(Header))
	}
	if vals[0] != "9" || vals[1] != "2025-03-01T09:30:00Z" || vals[9] != "5.75" {
		t.Fatalf("unexpected values: %v", vals)
	}

	deleted := core.NewEvent(core.EventCategoryDeleted, c, core.MergeResult{
		Deleted: "Groceries", Target: "default", IncomesMoved: 1, OutcomesMoved: 2,
	}, now)
	r, err = RowFromEvent(deleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Detail != `merged into "default"` || r.Outcomes != 2 {
		t.Fatalf("unexpected delete row: %+v", r)
	}

	renamed := core.NewEvent(core.EventCategoryRenamed, c, core.RenamePayload{From: "Food", To: "Groceries"}, now)
	if r, _ = RowFromEvent(renamed); r.Detail != `renamed from "Food"` {
		t.Fatalf("unexpected rename detail: %q", r.Detail)
	}
}

func TestRowFromEventRejectsBadInput(t *testing.T) {
	if _, err := RowFromEvent(core.Event{Kind: "category.exploded"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	bad := core.Event{Kind: core.EventCategoryRenamed, Payload: json.RawMessage(`[1,2]`)}
	if _, err := RowFromEvent(bad); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
