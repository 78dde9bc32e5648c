package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/log"

	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = 30 * time.Second
)

// OutcomeView is the answer to an outcome query. Without a filter only
// Outcomes is set; with one, Categories holds every matching category of
// the owner.
type OutcomeView struct {
	Category   string
	Filter     core.FilterKind
	Outcomes   []core.Outcome
	Categories []core.Category
}

// LedgerService orchestrates category lifecycle and transaction ingestion on
// top of a CategoryStore. It keeps no per-request state; the outcome cache is
// invalidated on every write that can change what it holds.
type LedgerService struct {
	store   CategoryStore
	queries *QueryEngine
	logger  *log.Logger

	outcomes cache.Cache[[]core.Outcome]
	loads    singleflight.Group
	// generation increments on every write so a read that raced a write does
	// not repopulate the cache with what it loaded before the write.
	generation atomic.Uint64
}

type LedgerOption func(*LedgerService)

func WithOutcomeCache(c cache.Cache[[]core.Outcome]) LedgerOption {
	return func(s *LedgerService) {
		if c != nil {
			s.outcomes = c
		}
	}
}

func WithLogger(l *log.Logger) LedgerOption {
	return func(s *LedgerService) {
		if l != nil {
			s.logger = l.WithComponent(log.ComponentLedger)
		}
	}
}

func NewLedgerService(store CategoryStore, opts ...LedgerOption) *LedgerService {
	s := &LedgerService{
		store:    store,
		queries:  NewQueryEngine(store),
		logger:   log.Discard(),
		outcomes: cache.NewLRUCache[[]core.Outcome](defaultCacheSize, defaultCacheTTL),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func checkOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return core.Invalid(core.ErrMissingOwner)
	}
	return nil
}

// CreateCategory creates a new, empty category for owner.
func (s *LedgerService) CreateCategory(ctx context.Context, owner, name string) (core.Category, error) {
	if err := checkOwner(owner); err != nil {
		return core.Category{}, err
	}
	name = strings.TrimSpace(name)
	if err := core.ValidateUserName(name); err != nil {
		return core.Category{}, err
	}

	c, err := s.store.Create(ctx, owner, name)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	s.invalidate(owner, name)

	s.logger.InfoContext(ctx, "Category created",
		log.NewFields().WithCategory(owner, name).WithOperation(log.OpCreate).ToSlice()...)
	return c, nil
}

// RenameCategory gives an existing category a new name. Both names must be
// present and distinct.
func (s *LedgerService) RenameCategory(ctx context.Context, owner, name, newName string) (core.Category, error) {
	if err := checkOwner(owner); err != nil {
		return core.Category{}, err
	}
	name, newName = strings.TrimSpace(name), strings.TrimSpace(newName)
	if err := core.ValidateUserName(name); err != nil {
		return core.Category{}, err
	}
	if err := core.ValidateUserName(newName); err != nil {
		return core.Category{}, err
	}
	if name == newName {
		return core.Category{}, core.Invalid(fmt.Errorf("new name equals current name %q", name))
	}

	c, err := s.store.Rename(ctx, owner, name, newName)
	if err != nil {
		return core.Category{}, fmt.Errorf("rename category: %w", err)
	}
	s.invalidate(owner, name, newName)

	s.logger.InfoContext(ctx, "Category renamed",
		append(log.NewFields().WithCategory(owner, name).WithOperation(log.OpRename).ToSlice(),
			log.FieldNewName, newName)...)
	return c, nil
}

// DeleteCategory checks the category exists, then moves its records onto the
// owner's default category and removes it.
func (s *LedgerService) DeleteCategory(ctx context.Context, owner, name string) (core.MergeResult, error) {
	if err := checkOwner(owner); err != nil {
		return core.MergeResult{}, err
	}
	name = strings.TrimSpace(name)
	if err := core.ValidateUserName(name); err != nil {
		return core.MergeResult{}, err
	}

	exists, err := s.store.Exists(ctx, owner, name)
	if err != nil {
		return core.MergeResult{}, fmt.Errorf("delete category: %w", err)
	}
	if !exists {
		return core.MergeResult{}, core.NotFound(name)
	}

	result, err := s.store.DeleteAndMerge(ctx, owner, name)
	if err != nil {
		return core.MergeResult{}, fmt.Errorf("delete category: %w", err)
	}
	s.invalidate(owner, name, core.DefaultCategoryName)

	s.logger.InfoContext(ctx, "Category deleted",
		append(log.NewFields().WithCategory(owner, name).WithOperation(log.OpDelete).
			WithRecords(result.IncomesMoved, result.OutcomesMoved).ToSlice(),
			"target", result.Target)...)
	return result, nil
}

// IngestTransactions applies every item of batch independently and reports
// one result per item, in input order. A failed item never prevents later
// items from being applied, and never leaves a partial append behind.
func (s *LedgerService) IngestTransactions(ctx context.Context, owner string, batch []core.BatchItem) ([]core.ItemResult, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, core.Invalid(fmt.Errorf("transaction batch is empty"))
	}

	results := make([]core.ItemResult, len(batch))
	failed := 0
	for i, item := range batch {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = core.DefaultCategoryName
		}
		res := core.ItemResult{Index: i, Name: name}

		_, err := s.store.AppendTransactions(ctx, owner, name, item.Incomes, item.Outcomes)
		if err != nil {
			res.Err = fmt.Errorf("item %d: %w", i, err)
			res.Error = core.Message(err)
			failed++
		} else {
			res.Applied = true
			s.invalidate(owner, name)
		}
		results[i] = res
	}

	s.logger.InfoContext(ctx, "Transactions ingested",
		log.FieldOwner, owner,
		log.FieldOperation, log.OpIngest,
		"items", len(batch),
		"failed", failed)
	return results, nil
}

// GetCategory returns one category with all of its records.
func (s *LedgerService) GetCategory(ctx context.Context, owner, name string) (core.Category, error) {
	if err := checkOwner(owner); err != nil {
		return core.Category{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Category{}, core.Invalid(core.ErrEmptyName)
	}
	c, err := s.store.FindByName(ctx, owner, name)
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// ListCategories summarizes the owner's categories, ordered by name.
func (s *LedgerService) ListCategories(ctx context.Context, owner string) ([]core.CategorySummary, error) {
	if err := checkOwner(owner); err != nil {
		return nil, err
	}
	cats, err := s.store.ListCategories(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.CategorySummary, 0, len(cats))
	for _, c := range cats {
		out = append(out, c.Summary())
	}
	return out, nil
}

// GetOutcomes returns the outcomes of the named category. With a filter it
// instead returns the owner's categories matching the filter; the named
// category must still exist.
func (s *LedgerService) GetOutcomes(ctx context.Context, owner, name string, filter *core.Filter) (OutcomeView, error) {
	if err := checkOwner(owner); err != nil {
		return OutcomeView{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return OutcomeView{}, core.Invalid(core.ErrEmptyName)
	}

	if filter == nil {
		outcomes, err := s.cachedOutcomes(ctx, owner, name)
		if err != nil {
			return OutcomeView{}, fmt.Errorf("get outcomes: %w", err)
		}
		return OutcomeView{Category: name, Outcomes: outcomes}, nil
	}

	if err := filter.Validate(); err != nil {
		return OutcomeView{}, err
	}
	exists, err := s.store.Exists(ctx, owner, name)
	if err != nil {
		return OutcomeView{}, fmt.Errorf("get outcomes: %w", err)
	}
	if !exists {
		return OutcomeView{}, core.NotFound(name)
	}

	cats, err := s.queries.Run(ctx, owner, *filter)
	if err != nil {
		return OutcomeView{}, fmt.Errorf("get outcomes: %w", err)
	}
	s.logger.DebugContext(ctx, "Outcome query",
		log.FieldOwner, owner,
		log.FieldFilter, string(filter.Kind),
		"matches", len(cats))
	return OutcomeView{Category: name, Filter: filter.Kind, Categories: cats}, nil
}

func (s *LedgerService) cachedOutcomes(ctx context.Context, owner, name string) ([]core.Outcome, error) {
	key := cacheKey(owner, name)
	if cached, ok := s.outcomes.Get(key); ok {
		return cloneOutcomes(cached), nil
	}

	gen := s.generation.Load()
	v, err, _ := s.loads.Do(key, func() (any, error) {
		c, err := s.store.FindByName(ctx, owner, name)
		if err != nil {
			return nil, err
		}
		if s.generation.Load() == gen {
			s.outcomes.Set(key, c.Outcomes)
		}
		return c.Outcomes, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneOutcomes(v.([]core.Outcome)), nil
}

func (s *LedgerService) invalidate(owner string, names ...string) {
	s.generation.Add(1)
	for _, n := range names {
		s.outcomes.Delete(cacheKey(owner, n))
	}
}

func cacheKey(owner, name string) string {
	return owner + "\x00" + name
}

func cloneOutcomes(in []core.Outcome) []core.Outcome {
	return append(make([]core.Outcome, 0, len(in)), in...)
}
