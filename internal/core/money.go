// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and summing record amounts exactly.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

func init() {
	// Amounts travel as JSON numbers, matching the stored record shape.
	decimal.MarshalJSONWithoutQuotes = true
}

// ParseAmount converts a decimal string to an exact amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional sign. Empty or non-numeric input is an InvalidArgument error.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("-3")    -> -3, nil
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, Invalid(ErrInvalidAmount)
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 || strings.ContainsAny(s, "eE") {
		return decimal.Zero, Invalid(ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, Invalid(ErrInvalidAmount)
	}
	return d, nil
}

// SumIncomes returns the exact total of the given incomes.
func SumIncomes(in []Income) decimal.Decimal {
	total := decimal.Zero
	for _, i := range in {
		total = total.Add(i.Amount)
	}
	return total
}

// SumOutcomes returns the exact total of the given outcomes.
func SumOutcomes(out []Outcome) decimal.Decimal {
	total := decimal.Zero
	for _, o := range out {
		total = total.Add(o.Amount)
	}
	return total
}
