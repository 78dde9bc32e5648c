package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ledger/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLifecycle(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	c, err := s.Create(ctx, "u1", "Groceries")
	require.NoError(t, err)

	_, err = s.Create(ctx, "u1", "Groceries")
	assert.ErrorIs(t, err, core.ErrDuplicateName)

	_, err = s.AppendTransactions(ctx, "u1", "Groceries", nil,
		[]core.Outcome{{Description: "milk", Amount: decimal.RequireFromString("3.5")}})
	require.NoError(t, err)

	renamed, err := s.Rename(ctx, "u1", "Groceries", "Food")
	require.NoError(t, err)
	assert.Equal(t, c.ID, renamed.ID)

	result, err := s.DeleteAndMerge(ctx, "u1", "Food")
	require.NoError(t, err)
	assert.Equal(t, 1, result.OutcomesMoved)

	def, err := s.FindByName(ctx, "u1", core.DefaultCategoryName)
	require.NoError(t, err)
	require.Len(t, def.Outcomes, 1)
	assert.Equal(t, core.StatusProcessing, def.Outcomes[0].Status)

	_, err = s.FindByName(ctx, "u1", "Food")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.AppendTransactions(ctx, "u1", "", nil,
		[]core.Outcome{{Description: "milk", Amount: decimal.NewFromInt(1)}})
	require.NoError(t, err)

	c, err := s.FindByName(ctx, "u1", core.DefaultCategoryName)
	require.NoError(t, err)
	c.Outcomes[0].Description = "changed"

	again, err := s.FindByName(ctx, "u1", core.DefaultCategoryName)
	require.NoError(t, err)
	assert.Equal(t, "milk", again.Outcomes[0].Description)
}

func TestStoreConcurrentCreate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, "u1", "Rent")
			if err != nil && !errors.Is(err, core.ErrDuplicateName) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestStoreQueriesScopedByOwner(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore().WithClock(func() time.Time { return clock })
	ctx := context.Background()

	_, err := s.Create(ctx, "u1", "Mine")
	require.NoError(t, err)
	_, err = s.Create(ctx, "u2", "Theirs")
	require.NoError(t, err)
	_, err = s.AppendTransactions(ctx, "u2", "Theirs", nil,
		[]core.Outcome{{Description: "tv", Amount: decimal.NewFromInt(500)}})
	require.NoError(t, err)

	cats, err := s.QueryByTimeRange(ctx, "u1", core.MinTime, core.MaxTime)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "Mine", cats[0].Name)

	cats, err = s.QueryByAmountRange(ctx, "u1", core.MinAmount, core.MaxAmount)
	require.NoError(t, err)
	assert.Empty(t, cats)
}

func TestStoreOutbox(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.Create(ctx, "u1", "Rent")
	require.NoError(t, err)
	_, err = s.DeleteAndMerge(ctx, "u1", "Rent")
	require.NoError(t, err)

	events, err := s.PendingEvents(ctx, 10, 2)
	require.NoError(t, err)
	// created Rent, created default, deleted Rent
	require.Len(t, events, 3)
	assert.Equal(t, core.EventCategoryDeleted, events[2].Kind)

	require.NoError(t, s.MarkEventPublished(ctx, events[0].ID))
	require.NoError(t, s.MarkEventFailed(ctx, events[1].ID, errors.New("down")))
	require.NoError(t, s.MarkEventFailed(ctx, events[1].ID, errors.New("down")))

	events, err = s.PendingEvents(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, core.EventCategoryDeleted, events[0].Kind)

	pruned, err := s.PruneEvents(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}

func TestClosedStoreUnavailable(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Close())

	_, err := s.Create(context.Background(), "u1", "Rent")
	assert.ErrorIs(t, err, core.ErrUnavailable)
	assert.ErrorIs(t, s.Ping(context.Background()), core.ErrUnavailable)
}
