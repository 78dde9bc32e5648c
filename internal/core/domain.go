package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCategoryName is the per-owner sink for orphaned and unqualified transactions.
const DefaultCategoryName = "default"

const maxDescriptionLength = 200

const (
	StatusProcessing OutcomeStatus = "Processing"
	StatusCompleted  OutcomeStatus = "Completed"
)

type (
	OutcomeStatus string

	Income struct {
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
	}

	Outcome struct {
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Status      OutcomeStatus   `json:"status"`
	}

	// Category owns the income and outcome records of one owner, in entry order.
	Category struct {
		ID        uuid.UUID `json:"id"`
		Name      string    `json:"name"`
		Owner     string    `json:"owner"`
		Incomes   []Income  `json:"incomes"`
		Outcomes  []Outcome `json:"outcomes"`
		CreatedAt time.Time `json:"createdAt"`
	}

	// BatchItem is one unit of a transaction ingestion request. An empty Name
	// targets the owner's default category.
	BatchItem struct {
		Name     string    `json:"name,omitempty"`
		Incomes  []Income  `json:"incomes"`
		Outcomes []Outcome `json:"outcomes"`
	}

	// ItemResult reports the outcome of one BatchItem.
	ItemResult struct {
		Index   int    `json:"index"`
		Name    string `json:"name"`
		Applied bool   `json:"applied"`
		Error   string `json:"error,omitempty"`
		Err     error  `json:"-"`
	}

	// MergeResult describes what a delete moved onto the default category.
	MergeResult struct {
		Deleted       string `json:"deleted"`
		Target        string `json:"target"`
		IncomesMoved  int    `json:"incomesMoved"`
		OutcomesMoved int    `json:"outcomesMoved"`
	}
)

var (
	ErrEmptyName        = errors.New("category name required")
	ErrMissingOwner     = errors.New("owner required")
	ErrEmptyDescription = errors.New("empty description")
	ErrDescriptionLong  = fmt.Errorf("description too long (max %d characters)", maxDescriptionLength)
	ErrInvalidStatus    = errors.New("invalid outcome status")
	ErrAmountTooLarge   = errors.New("amount magnitude exceeds 10^15")
	ErrReservedName     = fmt.Errorf("category name %q is reserved", DefaultCategoryName)
)

// NewCategory builds a category with a fresh identifier. Name is trimmed; the
// owner key is opaque and kept as given.
func NewCategory(owner, name string, now time.Time) (Category, error) {
	c := Category{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		Owner:     owner,
		Incomes:   []Income{},
		Outcomes:  []Outcome{},
		CreatedAt: now.UTC(),
	}
	if err := c.Validate(); err != nil {
		return Category{}, err
	}
	return c, nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Owner) == "" {
		return Invalid(ErrMissingOwner)
	}
	if c.Name == "" {
		return Invalid(ErrEmptyName)
	}
	return nil
}

// IsDefault reports whether c is its owner's default category.
func (c Category) IsDefault() bool {
	return c.Name == DefaultCategoryName
}

// Clone returns a copy whose record slices do not alias c's.
func (c Category) Clone() Category {
	out := c
	out.Incomes = append(make([]Income, 0, len(c.Incomes)), c.Incomes...)
	out.Outcomes = append(make([]Outcome, 0, len(c.Outcomes)), c.Outcomes...)
	return out
}

func (i Income) Validate() error {
	if err := validateDescription(i.Description); err != nil {
		return err
	}
	return validateAmount(i.Amount)
}

func (o Outcome) Validate() error {
	if err := validateDescription(o.Description); err != nil {
		return err
	}
	if err := validateAmount(o.Amount); err != nil {
		return err
	}
	switch o.Status {
	case "", StatusProcessing, StatusCompleted:
		return nil
	default:
		return Invalid(fmt.Errorf("%w: %q", ErrInvalidStatus, o.Status))
	}
}

// WithDefaults fills in the Processing status for outcomes that carry none.
func (o Outcome) WithDefaults() Outcome {
	if o.Status == "" {
		o.Status = StatusProcessing
	}
	return o
}

// validateAmount keeps amounts inside [MinAmount, MaxAmount] so an open
// filter bound always covers every stored record.
func validateAmount(a decimal.Decimal) error {
	if a.Abs().GreaterThan(MaxAmount) {
		return Invalid(ErrAmountTooLarge)
	}
	return nil
}

func validateDescription(desc string) error {
	if strings.TrimSpace(desc) == "" {
		return Invalid(ErrEmptyDescription)
	}
	if len(desc) > maxDescriptionLength {
		return Invalid(ErrDescriptionLong)
	}
	return nil
}

// PrepareRecords validates a whole batch before anything is written and returns
// normalized copies. One bad record rejects the batch.
func PrepareRecords(incomes []Income, outcomes []Outcome) ([]Income, []Outcome, error) {
	outIncomes := make([]Income, 0, len(incomes))
	for i, in := range incomes {
		if err := in.Validate(); err != nil {
			return nil, nil, fmt.Errorf("income %d: %w", i, err)
		}
		in.Description = strings.TrimSpace(in.Description)
		outIncomes = append(outIncomes, in)
	}
	outOutcomes := make([]Outcome, 0, len(outcomes))
	for i, o := range outcomes {
		if err := o.Validate(); err != nil {
			return nil, nil, fmt.Errorf("outcome %d: %w", i, err)
		}
		o = o.WithDefaults()
		o.Description = strings.TrimSpace(o.Description)
		outOutcomes = append(outOutcomes, o)
	}
	return outIncomes, outOutcomes, nil
}

// ValidateUserName checks a name supplied through the user-facing operations,
// where the default category name is off limits.
func ValidateUserName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return Invalid(ErrEmptyName)
	}
	if name == DefaultCategoryName {
		return Invalid(ErrReservedName)
	}
	return nil
}
