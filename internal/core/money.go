// Package core provides money parsing and handling utilities.
//
// Amounts are carried as signed integer minor units (cents) everywhere and
// only converted to major units for presentation and aggregation output.
package core

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseMinorUnits parses a signed integer amount in minor units.
//
// Data files store amounts as integers (e.g. "-1250" for -12.50). A value
// with a zero fractional part such as "1250.0" is accepted, anything else
// with decimals is rejected.
//
// Examples:
//
//	ParseMinorUnits("1250")   -> 1250, nil
//	ParseMinorUnits("-75")    -> -75, nil
//	ParseMinorUnits("12.0")   -> 12, nil
//	ParseMinorUnits("12.5")   -> 0, ErrInvalidAmount
func ParseMinorUnits(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, ErrInvalidAmount
	}
	if f > math.MaxInt64 || f < math.MinInt64 {
		return 0, ErrInvalidAmount
	}
	return int64(f), nil
}

// MinorToMajor converts minor units to major units (cents to units).
func MinorToMajor(amount int64) float64 {
	return float64(amount) / 100.0
}

// AbsMajor returns abs(amount)/100.
func AbsMajor(amount int64) float64 {
	return math.Abs(MinorToMajor(amount))
}

// Major returns the value in major units for display purposes.
// Use Cents for calculations to avoid floating-point precision issues.
func (m Money) Major() float64 {
	return MinorToMajor(m.Cents)
}

// FormatAmount renders minor units with two decimals and an explicit sign
// for income, e.g. "+12.50 USD" and "-3.00 EUR".
func FormatAmount(amount int64, currency string) string {
	sign := ""
	switch {
	case amount > 0:
		sign = "+"
	case amount < 0:
		sign = "-"
	}
	abs := amount
	if abs < 0 {
		abs = -abs
	}
	s := sign + strconv.FormatInt(abs/100, 10) + "." + pad2(abs%100)
	if currency != "" {
		s += " " + currency
	}
	return s
}

func pad2(v int64) string {
	if v < 10 {
		return "0" + strconv.FormatInt(v, 10)
	}
	return strconv.FormatInt(v, 10)
}
