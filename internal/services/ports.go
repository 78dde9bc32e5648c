package services

import (
	"context"
	"time"

	"ledger/internal/core"

	"github.com/shopspring/decimal"
)

// CategoryStore persists categories and their records. Every call is scoped
// by owner and bounded by the store's own timeout.
type CategoryStore interface {
	FindByName(ctx context.Context, owner, name string) (core.Category, error)
	Exists(ctx context.Context, owner, name string) (bool, error)
	Create(ctx context.Context, owner, name string) (core.Category, error)
	Rename(ctx context.Context, owner, oldName, newName string) (core.Category, error)
	DeleteAndMerge(ctx context.Context, owner, name string) (core.MergeResult, error)
	AppendTransactions(ctx context.Context, owner, name string, incomes []core.Income, outcomes []core.Outcome) (core.Category, error)
	ListCategories(ctx context.Context, owner string) ([]core.Category, error)
	QueryByTimeRange(ctx context.Context, owner string, start, end time.Time) ([]core.Category, error)
	QueryByAmountRange(ctx context.Context, owner string, min, max decimal.Decimal) ([]core.Category, error)
}

// EventStore is the outbox side of the store: events written alongside
// mutations, waiting to be relayed.
type EventStore interface {
	PendingEvents(ctx context.Context, limit, maxAttempts int) ([]core.Event, error)
	MarkEventPublished(ctx context.Context, id int64) error
	MarkEventFailed(ctx context.Context, id int64, cause error) error
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

// Store is what a backend provides.
type Store interface {
	CategoryStore
	EventStore
	Ping(ctx context.Context) error
	Close() error
}

// EventPublisher delivers one ledger event to the broker.
type EventPublisher interface {
	PublishEvent(ctx context.Context, e core.Event) error
}
