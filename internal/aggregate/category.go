// Package aggregate derives the view-ready category breakdown and the
// currency-normalized timeline from a filtered transaction list.
package aggregate

import (
	"sort"

	"findash/internal/core"
)

// OthersLabel names the synthetic group that absorbs small categories.
const OthersLabel = "Others"

const (
	// A category below this share of the total may be folded into Others.
	othersSharePercent = 2.0
	// Others may never grow past this share of the total.
	othersCapPercent = 10.0
)

// CategoryGroup is one slice of the category breakdown. Amount is in major
// units and never negative.
type CategoryGroup struct {
	Name       string   `json:"name"`
	Amount     float64  `json:"amount"`
	IDs        []string `json:"ids"`
	Categories []string `json:"categories"`
	// Others marks the synthetic group, which may hold several categories.
	Others bool `json:"others,omitempty"`
}

// GroupCategories builds the category breakdown of one ledger side. Main
// groups come largest first; Others, when it holds anything, is last.
//
// A group is folded into Others only when its share is under 2% of the
// total and the Others total would stay within 10% after adding it. Groups
// are visited smallest first, so one tiny group cannot close the bucket for
// the rest.
func GroupCategories(txs []core.Transaction) []CategoryGroup {
	groups := groupByCategory(txs)

	var total float64
	for _, g := range groups {
		total += g.Amount
	}

	ascending := make([]CategoryGroup, len(groups))
	copy(ascending, groups)
	sort.SliceStable(ascending, func(i, j int) bool {
		return ascending[i].Amount < ascending[j].Amount
	})

	var (
		main   []CategoryGroup
		others = CategoryGroup{Name: OthersLabel, Others: true}
	)
	for _, g := range ascending {
		share := percentOf(g.Amount, total)
		if share < othersSharePercent && percentOf(others.Amount+g.Amount, total) <= othersCapPercent {
			others.Amount += g.Amount
			others.IDs = append(others.IDs, g.IDs...)
			others.Categories = append(others.Categories, g.Categories...)
			continue
		}
		main = append(main, g)
	}

	sort.SliceStable(main, func(i, j int) bool {
		return main[i].Amount > main[j].Amount
	})
	if others.Amount > 0 {
		main = append(main, others)
	}
	return main
}

// groupByCategory accumulates abs(amount)/100 per category in first-seen
// order.
func groupByCategory(txs []core.Transaction) []CategoryGroup {
	index := make(map[string]int)
	var groups []CategoryGroup
	for _, t := range txs {
		name := t.CategoryLabel()
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, CategoryGroup{Name: name, Categories: []string{name}})
		}
		groups[i].Amount += core.AbsMajor(t.Amount)
		groups[i].IDs = append(groups[i].IDs, t.ID)
	}
	return groups
}

func percentOf(amount, total float64) float64 {
	if total == 0 {
		return 0
	}
	return amount / total * 100
}

// Total sums the group amounts.
func Total(groups []CategoryGroup) float64 {
	var total float64
	for _, g := range groups {
		total += g.Amount
	}
	return total
}

// Breakdown is the income and expense category split of one dataset.
type Breakdown struct {
	Income  []CategoryGroup `json:"income"`
	Expense []CategoryGroup `json:"expense"`
}

// Categories splits txs by ledger side and groups each side. Zero-amount
// transactions belong to neither side.
func Categories(txs []core.Transaction) Breakdown {
	income, expense := core.SplitByType(txs)
	return Breakdown{
		Income:  GroupCategories(income),
		Expense: GroupCategories(expense),
	}
}
