// Package selection holds the shared hover/click selection state that links
// the dashboard views.
package selection

import (
	"encoding/json"
	"sort"

	"findash/internal/core"
)

// IDSet is an immutable set of transaction ids. The zero value is empty.
type IDSet struct {
	m map[string]struct{}
}

func NewIDSet(ids ...string) IDSet {
	if len(ids) == 0 {
		return IDSet{}
	}
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return IDSet{m: m}
}

func (s IDSet) Has(id string) bool {
	_, ok := s.m[id]
	return ok
}

func (s IDSet) Len() int { return len(s.m) }

// Any reports whether at least one of ids is in the set.
func (s IDSet) Any(ids []string) bool {
	if len(s.m) == 0 {
		return false
	}
	for _, id := range ids {
		if s.Has(id) {
			return true
		}
	}
	return false
}

// IDs returns the members in sorted order.
func (s IDSet) IDs() []string {
	out := make([]string, 0, len(s.m))
	for id := range s.m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s IDSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

// Predicate selects transactions.
type Predicate func(core.Transaction) bool

func ByID(id string) Predicate {
	return func(t core.Transaction) bool { return t.ID == id }
}

// ByDateRange matches dates within [start, end], both inclusive.
func ByDateRange(start, end core.Date) Predicate {
	return func(t core.Transaction) bool {
		return !t.Date.Before(start.Time) && !t.Date.After(end.Time)
	}
}

// ByCategories matches on the display label, so "Uncategorized" selects
// transactions with an empty category.
func ByCategories(categories []string) Predicate {
	set := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		set[c] = struct{}{}
	}
	return func(t core.Transaction) bool {
		_, ok := set[t.CategoryLabel()]
		return ok
	}
}

// Match evaluates p over data. Ids that are not in data can never be
// selected.
func Match(data []core.Transaction, p Predicate) IDSet {
	var ids []string
	for _, t := range data {
		if p(t) {
			ids = append(ids, t.ID)
		}
	}
	return NewIDSet(ids...)
}
