package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ledger/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const categoryColumns = `id, owner, name, created_at`

// FindByName returns the owner's category with its records in entry order.
func (r *SQLiteRepository) FindByName(ctx context.Context, owner, name string) (core.Category, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	c, err := loadCategory(ctx, r.db, owner, name)
	if err != nil {
		return core.Category{}, classify("find category", err)
	}
	return c, nil
}

func (r *SQLiteRepository) Exists(ctx context.Context, owner, name string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM categories WHERE owner = ? AND name = ?`, owner, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify("category exists", err)
	}
	return true, nil
}

// Create inserts a new category. The (owner, name) unique index arbitrates
// concurrent creates: the loser gets DuplicateName.
func (r *SQLiteRepository) Create(ctx context.Context, owner, name string) (core.Category, error) {
	c, err := core.NewCategory(owner, name, r.now())
	if err != nil {
		return core.Category{}, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	err = r.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertCategory(ctx, tx, c); err != nil {
			return err
		}
		return insertEvent(ctx, tx, core.NewEvent(core.EventCategoryCreated, c, nil, r.now()))
	})
	if err != nil {
		return core.Category{}, classify("create category", err)
	}

	slog.InfoContext(ctx, "Category created", "owner", c.Owner, "name", c.Name, "id", c.ID)
	return c, nil
}

// Rename changes a category's name. The id, and therefore every record's
// link to the category, is unchanged.
func (r *SQLiteRepository) Rename(ctx context.Context, owner, oldName, newName string) (core.Category, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return core.Category{}, core.Invalid(core.ErrEmptyName)
	}
	if oldName == newName {
		return core.Category{}, core.Invalid(fmt.Errorf("new name equals current name %q", oldName))
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var renamed core.Category
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE categories SET name = ? WHERE owner = ? AND name = ?`, newName, owner, oldName)
		if isUniqueViolation(err) {
			return core.Duplicate(newName)
		}
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return core.NotFound(oldName)
		}

		renamed, err = loadCategory(ctx, tx, owner, newName)
		if err != nil {
			return err
		}
		payload := core.RenamePayload{From: oldName, To: newName}
		return insertEvent(ctx, tx, core.NewEvent(core.EventCategoryRenamed, renamed, payload, r.now()))
	})
	if err != nil {
		return core.Category{}, classify("rename category", err)
	}

	slog.InfoContext(ctx, "Category renamed", "owner", owner, "from", oldName, "to", newName)
	return renamed, nil
}

// DeleteAndMerge moves every record of the named category onto the owner's
// default category, after its existing records, then removes the category.
// All of it happens in one transaction.
func (r *SQLiteRepository) DeleteAndMerge(ctx context.Context, owner, name string) (core.MergeResult, error) {
	if name == core.DefaultCategoryName {
		return core.MergeResult{}, core.Invalid(core.ErrReservedName)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result := core.MergeResult{Deleted: name, Target: core.DefaultCategoryName}
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		src, err := findCategoryRow(ctx, tx, owner, name)
		if err != nil {
			return err
		}
		dst, err := r.ensureDefault(ctx, tx, owner)
		if err != nil {
			return err
		}

		moved, err := moveRecords(ctx, tx, "incomes", src.ID, dst.ID)
		if err != nil {
			return err
		}
		result.IncomesMoved = moved
		if moved, err = moveRecords(ctx, tx, "outcomes", src.ID, dst.ID); err != nil {
			return err
		}
		result.OutcomesMoved = moved

		if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, src.ID.String()); err != nil {
			return err
		}
		return insertEvent(ctx, tx, core.NewEvent(core.EventCategoryDeleted, src, result, r.now()))
	})
	if err != nil {
		return core.MergeResult{}, classify("delete category", err)
	}

	slog.InfoContext(ctx, "Category deleted and merged",
		"owner", owner,
		"name", name,
		"incomes_moved", result.IncomesMoved,
		"outcomes_moved", result.OutcomesMoved)
	return result, nil
}

// AppendTransactions validates the whole batch, then appends it to the named
// category. An empty name (or the default name) targets the default category,
// creating it on first use; any other name must already exist.
func (r *SQLiteRepository) AppendTransactions(ctx context.Context, owner, name string, incomes []core.Income, outcomes []core.Outcome) (core.Category, error) {
	incomes, outcomes, err := core.PrepareRecords(incomes, outcomes)
	if err != nil {
		return core.Category{}, err
	}
	name = strings.TrimSpace(name)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var updated core.Category
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		var (
			target core.Category
			err    error
		)
		if name == "" || name == core.DefaultCategoryName {
			target, err = r.ensureDefault(ctx, tx, owner)
		} else {
			target, err = findCategoryRow(ctx, tx, owner, name)
		}
		if err != nil {
			return err
		}

		if err := insertIncomes(ctx, tx, target.ID, incomes); err != nil {
			return err
		}
		if err := insertOutcomes(ctx, tx, target.ID, outcomes); err != nil {
			return err
		}

		updated, err = loadCategory(ctx, tx, owner, target.Name)
		if err != nil {
			return err
		}
		payload := core.AppendPayload{Incomes: incomes, Outcomes: outcomes}
		return insertEvent(ctx, tx, core.NewEvent(core.EventTransactionsAppended, updated, payload, r.now()))
	})
	if err != nil {
		return core.Category{}, classify("append transactions", err)
	}

	slog.DebugContext(ctx, "Transactions appended",
		"owner", owner,
		"category", updated.Name,
		"incomes", len(incomes),
		"outcomes", len(outcomes))
	return updated, nil
}

// ListCategories returns the owner's categories ordered by name.
func (r *SQLiteRepository) ListCategories(ctx context.Context, owner string) ([]core.Category, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	cats, err := queryCategories(ctx, r.db,
		`SELECT `+categoryColumns+` FROM categories WHERE owner = ? ORDER BY name`, owner)
	if err != nil {
		return nil, classify("list categories", err)
	}
	if err := hydrate(ctx, r.db, owner, cats); err != nil {
		return nil, classify("list categories", err)
	}
	return cats, nil
}

// QueryByTimeRange returns the owner's categories created in [start, end].
func (r *SQLiteRepository) QueryByTimeRange(ctx context.Context, owner string, start, end time.Time) ([]core.Category, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	cats, err := queryCategories(ctx, r.db,
		`SELECT `+categoryColumns+` FROM categories
		 WHERE owner = ? AND created_at BETWEEN ? AND ?
		 ORDER BY created_at, name`,
		owner, start.UnixNano(), end.UnixNano())
	if err != nil {
		return nil, classify("query by time range", err)
	}
	if err := hydrate(ctx, r.db, owner, cats); err != nil {
		return nil, classify("query by time range", err)
	}
	return cats, nil
}

// QueryByAmountRange returns the owner's categories having at least one
// outcome in [min, max]. The REAL column narrows candidates with a one unit
// margin; the exact decimal comparison decides.
func (r *SQLiteRepository) QueryByAmountRange(ctx context.Context, owner string, min, max decimal.Decimal) ([]core.Category, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	lo, _ := min.Sub(decimal.NewFromInt(1)).Float64()
	hi, _ := max.Add(decimal.NewFromInt(1)).Float64()
	cats, err := queryCategories(ctx, r.db,
		`SELECT c.id, c.owner, c.name, c.created_at FROM categories c
		 WHERE c.owner = ? AND EXISTS (
		     SELECT 1 FROM outcomes o
		     WHERE o.category_id = c.id AND o.amount_value BETWEEN ? AND ?)
		 ORDER BY c.name`,
		owner, lo, hi)
	if err != nil {
		return nil, classify("query by amount range", err)
	}
	if err := hydrate(ctx, r.db, owner, cats); err != nil {
		return nil, classify("query by amount range", err)
	}

	out := cats[:0]
	for _, c := range cats {
		if c.HasOutcomeInRange(min, max) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ensureDefault returns the owner's default category, creating it if missing.
// ON CONFLICT keeps concurrent first uses from colliding.
func (r *SQLiteRepository) ensureDefault(ctx context.Context, tx *sql.Tx, owner string) (core.Category, error) {
	c, err := core.NewCategory(owner, core.DefaultCategoryName, r.now())
	if err != nil {
		return core.Category{}, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO categories (id, owner, name, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (owner, name) DO NOTHING`,
		c.ID.String(), c.Owner, c.Name, c.CreatedAt.UnixNano())
	if err != nil {
		return core.Category{}, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		slog.InfoContext(ctx, "Default category created", "owner", owner, "id", c.ID)
		if err := insertEvent(ctx, tx, core.NewEvent(core.EventCategoryCreated, c, nil, r.now())); err != nil {
			return core.Category{}, err
		}
		return c, nil
	}
	return findCategoryRow(ctx, tx, owner, core.DefaultCategoryName)
}

func insertCategory(ctx context.Context, q querier, c core.Category) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO categories (id, owner, name, created_at) VALUES (?, ?, ?, ?)`,
		c.ID.String(), c.Owner, c.Name, c.CreatedAt.UnixNano())
	if isUniqueViolation(err) {
		return core.Duplicate(c.Name)
	}
	return err
}

// moveRecords re-points every row of table from src to dst, shifting positions
// past dst's current maximum so the moved rows keep their order at the end.
func moveRecords(ctx context.Context, q querier, table string, src, dst uuid.UUID) (int, error) {
	var offset int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM `+table+` WHERE category_id = ?`, dst.String()).Scan(&offset)
	if err != nil {
		return 0, fmt.Errorf("read %s offset: %w", table, err)
	}
	res, err := q.ExecContext(ctx,
		`UPDATE `+table+` SET category_id = ?, position = position + ? WHERE category_id = ?`,
		dst.String(), offset, src.String())
	if err != nil {
		return 0, fmt.Errorf("move %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func nextPosition(ctx context.Context, q querier, table string, categoryID uuid.UUID) (int64, error) {
	var pos int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM `+table+` WHERE category_id = ?`, categoryID.String()).Scan(&pos)
	return pos, err
}

func insertIncomes(ctx context.Context, q querier, categoryID uuid.UUID, incomes []core.Income) error {
	if len(incomes) == 0 {
		return nil
	}
	pos, err := nextPosition(ctx, q, "incomes", categoryID)
	if err != nil {
		return err
	}
	for i, in := range incomes {
		value, _ := in.Amount.Float64()
		_, err := q.ExecContext(ctx,
			`INSERT INTO incomes (category_id, position, description, amount, amount_value) VALUES (?, ?, ?, ?, ?)`,
			categoryID.String(), pos+int64(i), in.Description, in.Amount.String(), value)
		if err != nil {
			return fmt.Errorf("insert income %d: %w", i, err)
		}
	}
	return nil
}

func insertOutcomes(ctx context.Context, q querier, categoryID uuid.UUID, outcomes []core.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	pos, err := nextPosition(ctx, q, "outcomes", categoryID)
	if err != nil {
		return err
	}
	for i, o := range outcomes {
		value, _ := o.Amount.Float64()
		_, err := q.ExecContext(ctx,
			`INSERT INTO outcomes (category_id, position, description, amount, amount_value, status) VALUES (?, ?, ?, ?, ?, ?)`,
			categoryID.String(), pos+int64(i), o.Description, o.Amount.String(), value, string(o.Status))
		if err != nil {
			return fmt.Errorf("insert outcome %d: %w", i, err)
		}
	}
	return nil
}

// findCategoryRow loads a category without its records.
func findCategoryRow(ctx context.Context, q querier, owner, name string) (core.Category, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE owner = ? AND name = ?`, owner, name)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NotFound(name)
	}
	return c, err
}

func loadCategory(ctx context.Context, q querier, owner, name string) (core.Category, error) {
	c, err := findCategoryRow(ctx, q, owner, name)
	if err != nil {
		return core.Category{}, err
	}
	cats := []core.Category{c}
	if err := hydrate(ctx, q, owner, cats); err != nil {
		return core.Category{}, err
	}
	return cats[0], nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(s rowScanner) (core.Category, error) {
	var (
		id        string
		createdAt int64
		c         core.Category
	)
	if err := s.Scan(&id, &c.Owner, &c.Name, &createdAt); err != nil {
		return core.Category{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return core.Category{}, fmt.Errorf("parse category id %q: %w", id, err)
	}
	c.ID = parsed
	c.CreatedAt = time.Unix(0, createdAt).UTC()
	c.Incomes = []core.Income{}
	c.Outcomes = []core.Outcome{}
	return c, nil
}

func queryCategories(ctx context.Context, q querier, query string, args ...any) ([]core.Category, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cats := []core.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// hydrate fills the record sequences of cats. A single category is loaded by
// id; larger sets load the owner's records in one pass per table.
func hydrate(ctx context.Context, q querier, owner string, cats []core.Category) error {
	if len(cats) == 0 {
		return nil
	}
	index := make(map[string]int, len(cats))
	for i, c := range cats {
		index[c.ID.String()] = i
	}

	where, arg := `c.owner = ?`, any(owner)
	if len(cats) == 1 {
		where, arg = `c.id = ?`, any(cats[0].ID.String())
	}

	rows, err := q.QueryContext(ctx,
		`SELECT i.category_id, i.description, i.amount FROM incomes i
		 JOIN categories c ON c.id = i.category_id
		 WHERE `+where+` ORDER BY i.category_id, i.position`, arg)
	if err != nil {
		return fmt.Errorf("load incomes: %w", err)
	}
	for rows.Next() {
		var id, desc, amount string
		if err := rows.Scan(&id, &desc, &amount); err != nil {
			rows.Close()
			return err
		}
		k, ok := index[id]
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			rows.Close()
			return fmt.Errorf("parse income amount %q: %w", amount, err)
		}
		cats[k].Incomes = append(cats[k].Incomes, core.Income{Description: desc, Amount: d})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = q.QueryContext(ctx,
		`SELECT o.category_id, o.description, o.amount, o.status FROM outcomes o
		 JOIN categories c ON c.id = o.category_id
		 WHERE `+where+` ORDER BY o.category_id, o.position`, arg)
	if err != nil {
		return fmt.Errorf("load outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, desc, amount, status string
		if err := rows.Scan(&id, &desc, &amount, &status); err != nil {
			return err
		}
		k, ok := index[id]
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return fmt.Errorf("parse outcome amount %q: %w", amount, err)
		}
		cats[k].Outcomes = append(cats[k].Outcomes, core.Outcome{
			Description: desc,
			Amount:      d,
			Status:      core.OutcomeStatus(status),
		})
	}
	return rows.Err()
}
