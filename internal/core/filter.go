package core

import (
	"slices"
	"sort"
	"strings"
)

// Filter is the dashboard's input restriction. Zero dates mean unbounded, an
// empty Currencies set means every currency and an empty Type means both
// sides of the ledger.
type Filter struct {
	StartDate  Date     `json:"startDate"`
	EndDate    Date     `json:"endDate"`
	Currencies []string `json:"currency"`
	Type       TxType   `json:"type"`
}

// IsEmpty reports whether the filter restricts nothing.
func (f Filter) IsEmpty() bool {
	return f.StartDate.IsZero() && f.EndDate.IsZero() && len(f.Currencies) == 0 && f.Type == ""
}

// Matches reports whether t satisfies every criterion of f.
func (f Filter) Matches(t Transaction) bool {
	if !f.StartDate.IsZero() && t.Date.Before(f.StartDate.Time) {
		return false
	}
	if !f.EndDate.IsZero() && t.Date.After(f.EndDate.Time) {
		return false
	}
	if len(f.Currencies) > 0 && !slices.Contains(f.Currencies, t.Currency) {
		return false
	}
	return t.Is(f.Type)
}

// ToggleCurrency returns a copy of f with currency added when absent and
// removed when present.
func (f Filter) ToggleCurrency(currency string) Filter {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	out := f
	out.Currencies = nil
	found := false
	for _, c := range f.Currencies {
		if c == currency {
			found = true
			continue
		}
		out.Currencies = append(out.Currencies, c)
	}
	if !found && currency != "" {
		out.Currencies = append(out.Currencies, currency)
	}
	return out
}

// ApplyFilter returns the transactions matching f in input order. The input
// slice is never modified.
func ApplyFilter(txs []Transaction, f Filter) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// SortByDateDesc sorts a copy of txs newest first. Transactions on the same
// day keep their relative order.
func SortByDateDesc(txs []Transaction) []Transaction {
	out := slices.Clone(txs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date.Time)
	})
	return out
}

// Currencies returns the sorted distinct currencies present in txs.
func Currencies(txs []Transaction) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range txs {
		if _, ok := seen[t.Currency]; ok || t.Currency == "" {
			continue
		}
		seen[t.Currency] = struct{}{}
		out = append(out, t.Currency)
	}
	sort.Strings(out)
	return out
}

// Query holds the raw data API filters. Nil pointers and empty strings are
// unset.
type Query struct {
	StartDate  Date
	EndDate    Date
	Category   string
	Source     string
	MinAmount  *int64
	MaxAmount  *int64
	Currencies []string
}

// Matches reports whether t satisfies q. Category and source comparisons
// are exact.
func (q Query) Matches(t Transaction) bool {
	if !q.StartDate.IsZero() && t.Date.Before(q.StartDate.Time) {
		return false
	}
	if !q.EndDate.IsZero() && t.Date.After(q.EndDate.Time) {
		return false
	}
	if q.Category != "" && t.Category != q.Category {
		return false
	}
	if q.Source != "" && t.Source != q.Source {
		return false
	}
	if q.MinAmount != nil && t.Amount < *q.MinAmount {
		return false
	}
	if q.MaxAmount != nil && t.Amount > *q.MaxAmount {
		return false
	}
	if len(q.Currencies) > 0 && !slices.Contains(q.Currencies, t.Currency) {
		return false
	}
	return true
}

// ApplyQuery filters txs by q, preserving order.
func ApplyQuery(txs []Transaction, q Query) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if q.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}
