package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/storage"
	"ledger/internal/storage/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// stores returns each backend the service must behave identically on.
func stores(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return memory.NewStore() },
		"sqlite": func() Store {
			repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
			require.NoError(t, err)
			t.Cleanup(func() { repo.Close() })
			return repo
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, svc *LedgerService, store Store)) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			store := open()
			fn(t, NewLedgerService(store), store)
		})
	}
}

func TestScenarioCreateAppendQuery(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *LedgerService, _ Store) {
		ctx := context.Background()

		_, err := svc.CreateCategory(ctx, "u1", "Groceries")
		require.NoError(t, err)

		results, err := svc.IngestTransactions(ctx, "u1", []core.BatchItem{{
			Name:     "Groceries",
			Outcomes: []core.Outcome{{Description: "milk", Amount: amount("3.5")}},
		}})
		require.NoError(t, err)
		require.True(t, results[0].Applied)

		view, err := svc.GetOutcomes(ctx, "u1", "Groceries", nil)
		require.NoError(t, err)
		require.Len(t, view.Outcomes, 1)
		assert.Equal(t, "milk", view.Outcomes[0].Description)
		assert.True(t, view.Outcomes[0].Amount.Equal(amount("3.5")))
		assert.Equal(t, core.StatusProcessing, view.Outcomes[0].Status)
	})
}

func TestScenarioDeleteMergesIntoDefault(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *LedgerService, store Store) {
		ctx := context.Background()

		_, err := svc.CreateCategory(ctx, "u1", "Groceries")
		require.NoError(t, err)
		_, err = svc.IngestTransactions(ctx, "u1", []core.BatchItem{
			{Name: "Groceries", Outcomes: []core.Outcome{{Description: "milk", Amount: amount("3.5")}}},
			{Incomes: []core.Income{{Description: "salary", Amount: amount("1000")}}},
		})
		require.NoError(t, err)

		before, err := svc.GetOutcomes(ctx, "u1", core.DefaultCategoryName, nil)
		require.NoError(t, err)
		assert.Empty(t, before.Outcomes)

		result, err := svc.DeleteCategory(ctx, "u1", "Groceries")
		require.NoError(t, err)
		assert.Equal(t, 1, result.OutcomesMoved)

		after, err := svc.GetOutcomes(ctx, "u1", core.DefaultCategoryName, nil)
		require.NoError(t, err)
		require.Len(t, after.Outcomes, 1, "cached default outcomes must be invalidated by the merge")
		assert.Equal(t, "milk", after.Outcomes[0].Description)

		_, err = store.FindByName(ctx, "u1", "Groceries")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestScenarioDuplicateCreate(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *LedgerService, _ Store) {
		ctx := context.Background()

		_, err := svc.CreateCategory(ctx, "u1", "Rent")
		require.NoError(t, err)
		_, err = svc.CreateCategory(ctx, "u1", "Rent")
		assert.ErrorIs(t, err, core.ErrDuplicateName)
	})
}

func TestConcurrentCreateExactlyOneWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *LedgerService, _ Store) {
		ctx := context.Background()

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = svc.CreateCategory(ctx, "u1", "Rent")
			}(i)
		}
		wg.Wait()

		ok, dup := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, core.ErrDuplicateName):
				dup++
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, dup)
	})
}

func TestMergeConservation(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *LedgerService, store Store) {
		ctx := context.Background()

		_, err := svc.IngestTransactions(ctx, "u1", []core.BatchItem{{
			Outcomes: []core.Outcome{{Description: "existing", Amount: amount("9")}},
		}})
		require.NoError(t, err)

		_, err = svc.CreateCategory(ctx, "u1", "Trip")
		require.NoError(t, err)
		incomes := []core.Income{
			{Description: "refund a", Amount: amount("5")},
			{Description: "refund b", Amount: amount("6")},
		}
		outcomes := []core.Outcome{
			{Description: "train", Amount: amount("40"), Status: core.StatusCompleted},
			{Description: "hotel", Amount: amount("120.50")},
			{Description: "dinner", Amount: amount("33.10")},
		}
		_, err = svc.IngestTransactions(ctx, "u1", []core.BatchItem{{Name: "Trip", Incomes: incomes, Outcomes: outcomes}})
		require.NoError(t, err)

		_, err = svc.DeleteCategory(ctx, "u1", "Trip")
		require.NoError(t, err)

		def, err := store.FindByName(ctx, "u1", core.DefaultCategoryName)
		require.NoError(t, err)
		require.Len(t, def.Incomes, 2)
		require.Len(t, def.Outcomes, 4)
		assert.Equal(t, "existing", def.Outcomes[0].Description)
		for i, o := range outcomes {
			got := def.Outcomes[i+1]
			assert.Equal(t, o.Description, got.Description)
			assert.True(t, o.Amount.Equal(got.Amount))
		}
		assert.Equal(t, core.StatusCompleted, def.Outcomes[1].Status)
		assert.True(t, core.SumOutcomes(def.Outcomes).Equal(amount("202.60")))

		exists, err := store.Exists(ctx, "u1", "Trip")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestRenameRules(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *LedgerService, store Store) {
		ctx := context.Background()

		_, err := svc.CreateCategory(ctx, "u1", "Food")
		require.NoError(t, err)
		_, err = svc.CreateCategory(ctx, "u1", "Rent")
		require.NoError(t, err)
		_, err = svc.IngestTransactions(ctx, "u1", []core.BatchItem{{
			Name: "Food", Outcomes: []core.Outcome{{Description: "milk", Amount: amount("1")}},
		}})
		require.NoError(t, err)

		_, err = svc.RenameCategory(ctx, "u1", "Food", "Food")
		assert.ErrorIs(t, err, core.ErrInvalidArgument)

		_, err = svc.RenameCategory(ctx, "u1", "Food", "Rent")
		assert.ErrorIs(t, err, core.ErrDuplicateName)
		food, err := store.FindByName(ctx, "u1", "Food")
		require.NoError(t, err)
		assert.Len(t, food.Outcomes, 1, "failed rename leaves the source untouched")
		rent, err := store.FindByName(ctx, "u1", "Rent")
		require.NoError(t, err)
		assert.Empty(t, rent.Outcomes, "failed rename leaves the target untouched")

		_, err = svc.RenameCategory(ctx, "u1", "Nope", "Other")
		assert.ErrorIs(t, err, core.ErrNotFound)

		_, err = svc.RenameCategory(ctx, "u1", "Food", "")
		assert.ErrorIs(t, err, core.ErrInvalidArgument)

		_, err = svc.RenameCategory(ctx, "u1", "Food", core.DefaultCategoryName)
		assert.ErrorIs(t, err, core.ErrInvalidArgument)

		// Warm the cache under the old name, then rename.
		_, err = svc.GetOutcomes(ctx, "u1", "Food", nil)
		require.NoError(t, err)
		renamed, err := svc.RenameCategory(ctx, "u1", "Food", "Groceries")
		require.NoError(t, err)
		assert.Equal(t, food.ID, renamed.ID)

		_, err = svc.GetOutcomes(ctx, "u1", "Food", nil)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestAppendValidationAtomicity(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *LedgerService, store Store) {
		ctx := context.Background()

		_, err := svc.CreateCategory(ctx, "u1", "Groceries")
		require.NoError(t, err)

		results, err := svc.IngestTransactions(ctx, "u1", []core.BatchItem{{
			Name: "Groceries",
			Outcomes: []core.Outcome{
				{Description: "milk", Amount: amount("3.5")},
				{Description: "", Amount: amount("1")},
			},
		}})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.False(t, results[0].Applied)
		assert.ErrorIs(t, results[0].Err, core.ErrInvalidArgument)
		assert.NotEmpty(t, results[0].Error)

		c, err := store.FindByName(ctx, "u1", "Groceries")
		require.NoError(t, err)
		assert.Empty(t, c.Outcomes)
	})
}

func TestIngestBestEffort(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *LedgerService, store Store) {
		ctx := context.Background()

		_, err := svc.CreateCategory(ctx, "u1", "Groceries")
		require.NoError(t, err)

		results, err := svc.IngestTransactions(ctx, "u1", []core.BatchItem{
			{Name: "Groceries", Outcomes: []core.Outcome{{Description: "milk", Amount: amount("3.5")}}},
			{Name: "Missing", Outcomes: []core.Outcome{{Description: "ghost", Amount: amount("1")}}},
			{Incomes: []core.Income{{Description: "salary", Amount: amount("2000")}}},
		})
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.True(t, results[0].Applied)
		assert.False(t, results[1].Applied)
		assert.ErrorIs(t, results[1].Err, core.ErrNotFound)
		assert.True(t, results[2].Applied, "a failed item does not stop later items")
		assert.Equal(t, core.DefaultCategoryName, results[2].Name)

		def, err := store.FindByName(ctx, "u1", core.DefaultCategoryName)
		require.NoError(t, err)
		assert.Len(t, def.Incomes, 1)

		_, err = svc.IngestTransactions(ctx, "u1", nil)
		assert.ErrorIs(t, err, core.ErrInvalidArgument)
	})
}

func TestIdempotentQuery(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *LedgerService, _ Store) {
		ctx := context.Background()

		_, err := svc.CreateCategory(ctx, "u1", "Groceries")
		require.NoError(t, err)
		_, err = svc.IngestTransactions(ctx, "u1", []core.BatchItem{{
			Name: "Groceries",
			Outcomes: []core.Outcome{
				{Description: "milk", Amount: amount("3.5")},
				{Description: "eggs", Amount: amount("2.25")},
			},
		}})
		require.NoError(t, err)

		first, err := svc.GetOutcomes(ctx, "u1", "Groceries", nil)
		require.NoError(t, err)
		second, err := svc.GetOutcomes(ctx, "u1", "Groceries", nil)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		// Callers cannot corrupt the cached copy.
		first.Outcomes[0].Description = "changed"
		third, err := svc.GetOutcomes(ctx, "u1", "Groceries", nil)
		require.NoError(t, err)
		assert.Equal(t, "milk", third.Outcomes[0].Description)
	})
}

func TestFilteredOutcomesScopedByOwner(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *LedgerService, _ Store) {
		ctx := context.Background()

		for _, owner := range []string{"u1", "u2"} {
			_, err := svc.CreateCategory(ctx, owner, "Groceries")
			require.NoError(t, err)
			_, err = svc.IngestTransactions(ctx, owner, []core.BatchItem{{
				Name: "Groceries", Outcomes: []core.Outcome{{Description: "milk", Amount: amount("3.5")}},
			}})
			require.NoError(t, err)
		}
		_, err := svc.CreateCategory(ctx, "u1", "Empty")
		require.NoError(t, err)

		lo, hi := amount("3"), amount("4")
		view, err := svc.GetOutcomes(ctx, "u1", "Empty", &core.Filter{Kind: core.FilterMoney, Min: &lo, Max: &hi})
		require.NoError(t, err)
		require.Len(t, view.Categories, 1)
		assert.Equal(t, "u1", view.Categories[0].Owner)
		assert.Equal(t, "Groceries", view.Categories[0].Name)

		view, err = svc.GetOutcomes(ctx, "u1", "Empty", &core.Filter{Kind: core.FilterTime})
		require.NoError(t, err)
		assert.Len(t, view.Categories, 2)
		for _, c := range view.Categories {
			assert.Equal(t, "u1", c.Owner)
		}

		_, err = svc.GetOutcomes(ctx, "u1", "Empty", &core.Filter{Kind: "weather"})
		assert.ErrorIs(t, err, core.ErrInvalidArgument)

		_, err = svc.GetOutcomes(ctx, "u1", "Missing", &core.Filter{Kind: core.FilterTime})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestReservedAndEmptyNames(t *testing.T) {
	svc := NewLedgerService(memory.NewStore())
	ctx := context.Background()

	_, err := svc.CreateCategory(ctx, "u1", "")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	_, err = svc.CreateCategory(ctx, "u1", core.DefaultCategoryName)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	_, err = svc.DeleteCategory(ctx, "u1", core.DefaultCategoryName)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	_, err = svc.DeleteCategory(ctx, "u1", "Missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = svc.CreateCategory(ctx, "", "Rent")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestListAndGetCategory(t *testing.T) {
	svc := NewLedgerService(memory.NewStore())
	ctx := context.Background()

	for _, n := range []string{"Rent", "Food"} {
		_, err := svc.CreateCategory(ctx, "u1", n)
		require.NoError(t, err)
	}
	_, err := svc.IngestTransactions(ctx, "u1", []core.BatchItem{{
		Name: "Food", Outcomes: []core.Outcome{{Description: "milk", Amount: amount("3.5")}},
	}})
	require.NoError(t, err)

	list, err := svc.ListCategories(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Food", list[0].Name)
	assert.Equal(t, 1, list[0].OutcomeCount)

	c, err := svc.GetCategory(ctx, "u1", "Food")
	require.NoError(t, err)
	assert.Len(t, c.Outcomes, 1)

	_, err = svc.GetCategory(ctx, "u2", "Food")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

// slowStore blocks reads until the context expires, like an unreachable store.
type slowStore struct {
	*memory.Store
}

func (s slowStore) FindByName(ctx context.Context, owner, name string) (core.Category, error) {
	<-ctx.Done()
	return core.Category{}, fmt.Errorf("find category: %w: %w", core.ErrTimeout, ctx.Err())
}

func TestStoreTimeoutSurfaces(t *testing.T) {
	svc := NewLedgerService(slowStore{memory.NewStore()})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.GetOutcomes(ctx, "u1", "Groceries", nil)
	require.Error(t, err)
	assert.Equal(t, core.ErrTimeout, core.KindOf(err))
}

func TestTimeFilterAcceptsFarBounds(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *LedgerService, _ Store) {
		ctx := context.Background()
		_, err := svc.CreateCategory(ctx, "u1", "Groceries")
		require.NoError(t, err)

		start := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC)
		view, err := svc.GetOutcomes(ctx, "u1", "Groceries", &core.Filter{Kind: core.FilterTime, Start: &start, End: &end})
		require.NoError(t, err)
		require.Len(t, view.Categories, 1)
		assert.Equal(t, "Groceries", view.Categories[0].Name)

		ancient := time.Date(1000, 1, 1, 0, 0, 0, 0, time.UTC)
		view, err = svc.GetOutcomes(ctx, "u1", "Groceries", &core.Filter{Kind: core.FilterTime, Start: &ancient})
		require.NoError(t, err)
		assert.Len(t, view.Categories, 1)
	})
}

func TestOpenMoneyBoundCoversLargestAmount(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *LedgerService, _ Store) {
		ctx := context.Background()
		_, err := svc.CreateCategory(ctx, "u1", "Big")
		require.NoError(t, err)

		results, err := svc.IngestTransactions(ctx, "u1", []core.BatchItem{
			{Name: "Big", Outcomes: []core.Outcome{{Description: "too much", Amount: amount("100000000000000000000")}}},
			{Name: "Big", Outcomes: []core.Outcome{{Description: "house", Amount: core.MaxAmount}}},
		})
		require.NoError(t, err)
		assert.False(t, results[0].Applied)
		assert.True(t, errors.Is(results[0].Err, core.ErrAmountTooLarge))
		assert.True(t, results[1].Applied)

		lo := amount("5")
		view, err := svc.GetOutcomes(ctx, "u1", "Big", &core.Filter{Kind: core.FilterMoney, Min: &lo})
		require.NoError(t, err)
		require.Len(t, view.Categories, 1)
		assert.Equal(t, "Big", view.Categories[0].Name)
	})
}

func TestOwnerKeyIsOpaque(t *testing.T) {
	forEachStore(t, func(t *testing.T, svc *LedgerService, _ Store) {
		ctx := context.Background()
		owner := " u1 "
		_, err := svc.CreateCategory(ctx, owner, "Rent")
		require.NoError(t, err)

		c, err := svc.GetCategory(ctx, owner, "Rent")
		require.NoError(t, err)
		assert.Equal(t, owner, c.Owner)

		_, err = svc.RenameCategory(ctx, owner, "Rent", "Housing")
		require.NoError(t, err)

		// A differently spaced key is a different owner.
		_, err = svc.GetCategory(ctx, "u1", "Housing")
		assert.True(t, errors.Is(err, core.ErrNotFound))
	})
}
