// Package memory is an in-process category store. One mutex guards all
// state, so every operation is atomic with respect to every other.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ledger/internal/core"

	"github.com/shopspring/decimal"
)

type key struct {
	owner string
	name  string
}

type eventRecord struct {
	event       core.Event
	publishedAt time.Time
	lastError   string
}

type Store struct {
	mu         sync.RWMutex
	categories map[key]*core.Category
	events     []*eventRecord
	nextEvent  int64
	now        func() time.Time
	closed     bool
}

func NewStore() *Store {
	return &Store{
		categories: make(map[key]*core.Category),
		now:        time.Now,
	}
}

// WithClock replaces the timestamp source. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("ping: %w", core.ErrUnavailable)
	}
	return ctx.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// begin takes the write lock and fails fast on a closed store or a done context.
func (s *Store) begin(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.ErrUnavailable
	}
	return nil
}

func (s *Store) FindByName(ctx context.Context, owner, name string) (core.Category, error) {
	if err := ctx.Err(); err != nil {
		return core.Category{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[key{owner, name}]
	if !ok {
		return core.Category{}, core.NotFound(name)
	}
	return c.Clone(), nil
}

func (s *Store) Exists(ctx context.Context, owner, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.categories[key{owner, name}]
	return ok, nil
}

func (s *Store) Create(ctx context.Context, owner, name string) (core.Category, error) {
	c, err := core.NewCategory(owner, name, s.now())
	if err != nil {
		return core.Category{}, err
	}
	if err := s.begin(ctx); err != nil {
		return core.Category{}, err
	}
	defer s.mu.Unlock()

	k := key{c.Owner, c.Name}
	if _, ok := s.categories[k]; ok {
		return core.Category{}, core.Duplicate(c.Name)
	}
	s.categories[k] = &c
	s.record(core.NewEvent(core.EventCategoryCreated, c, nil, s.now()))
	return c.Clone(), nil
}

func (s *Store) Rename(ctx context.Context, owner, oldName, newName string) (core.Category, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return core.Category{}, core.Invalid(core.ErrEmptyName)
	}
	if oldName == newName {
		return core.Category{}, core.Invalid(fmt.Errorf("new name equals current name %q", oldName))
	}
	if err := s.begin(ctx); err != nil {
		return core.Category{}, err
	}
	defer s.mu.Unlock()

	c, ok := s.categories[key{owner, oldName}]
	if !ok {
		return core.Category{}, core.NotFound(oldName)
	}
	if _, taken := s.categories[key{owner, newName}]; taken {
		return core.Category{}, core.Duplicate(newName)
	}
	delete(s.categories, key{owner, oldName})
	c.Name = newName
	s.categories[key{owner, newName}] = c
	s.record(core.NewEvent(core.EventCategoryRenamed, *c, core.RenamePayload{From: oldName, To: newName}, s.now()))
	return c.Clone(), nil
}

func (s *Store) DeleteAndMerge(ctx context.Context, owner, name string) (core.MergeResult, error) {
	if name == core.DefaultCategoryName {
		return core.MergeResult{}, core.Invalid(core.ErrReservedName)
	}
	if err := s.begin(ctx); err != nil {
		return core.MergeResult{}, err
	}
	defer s.mu.Unlock()

	src, ok := s.categories[key{owner, name}]
	if !ok {
		return core.MergeResult{}, core.NotFound(name)
	}
	dst := s.ensureDefault(owner)
	dst.Incomes = append(dst.Incomes, src.Incomes...)
	dst.Outcomes = append(dst.Outcomes, src.Outcomes...)
	delete(s.categories, key{owner, name})

	result := core.MergeResult{
		Deleted:       name,
		Target:        dst.Name,
		IncomesMoved:  len(src.Incomes),
		OutcomesMoved: len(src.Outcomes),
	}
	s.record(core.NewEvent(core.EventCategoryDeleted, *src, result, s.now()))
	return result, nil
}

func (s *Store) AppendTransactions(ctx context.Context, owner, name string, incomes []core.Income, outcomes []core.Outcome) (core.Category, error) {
	incomes, outcomes, err := core.PrepareRecords(incomes, outcomes)
	if err != nil {
		return core.Category{}, err
	}
	name = strings.TrimSpace(name)
	if err := s.begin(ctx); err != nil {
		return core.Category{}, err
	}
	defer s.mu.Unlock()

	var target *core.Category
	if name == "" || name == core.DefaultCategoryName {
		target = s.ensureDefault(owner)
	} else {
		c, ok := s.categories[key{owner, name}]
		if !ok {
			return core.Category{}, core.NotFound(name)
		}
		target = c
	}
	target.Incomes = append(target.Incomes, incomes...)
	target.Outcomes = append(target.Outcomes, outcomes...)
	payload := core.AppendPayload{Incomes: incomes, Outcomes: outcomes}
	s.record(core.NewEvent(core.EventTransactionsAppended, *target, payload, s.now()))
	return target.Clone(), nil
}

func (s *Store) ListCategories(ctx context.Context, owner string) ([]core.Category, error) {
	return s.selectCategories(ctx, owner, func(core.Category) bool { return true }, byName)
}

func (s *Store) QueryByTimeRange(ctx context.Context, owner string, start, end time.Time) ([]core.Category, error) {
	return s.selectCategories(ctx, owner, func(c core.Category) bool {
		return core.InTimeRange(c.CreatedAt, start, end)
	}, byCreated)
}

func (s *Store) QueryByAmountRange(ctx context.Context, owner string, min, max decimal.Decimal) ([]core.Category, error) {
	return s.selectCategories(ctx, owner, func(c core.Category) bool {
		return c.HasOutcomeInRange(min, max)
	}, byName)
}

func byName(a, b core.Category) bool { return a.Name < b.Name }

func byCreated(a, b core.Category) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.Name < b.Name
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (s *Store) selectCategories(ctx context.Context, owner string, keep func(core.Category) bool, less func(a, b core.Category) bool) ([]core.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []core.Category{}
	for k, c := range s.categories {
		if k.owner != owner || !keep(*c) {
			continue
		}
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

// ensureDefault must be called with the write lock held.
func (s *Store) ensureDefault(owner string) *core.Category {
	k := key{owner, core.DefaultCategoryName}
	if c, ok := s.categories[k]; ok {
		return c
	}
	c, _ := core.NewCategory(owner, core.DefaultCategoryName, s.now())
	s.categories[k] = &c
	s.record(core.NewEvent(core.EventCategoryCreated, c, nil, s.now()))
	return &c
}
