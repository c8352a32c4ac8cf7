package dashboard

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"findash/internal/aggregate"
	"findash/internal/core"
	"findash/internal/selection"
)

var ErrUnknownTarget = errors.New("dashboard: unknown interaction target")

// ListView binds the chronological transaction list to the selection.
type ListView struct {
	coord selection.Coordinator
	data  []core.Transaction
}

func NewListView(coord selection.Coordinator, data []core.Transaction) (*ListView, error) {
	if coord == nil {
		return nil, fmt.Errorf("list view: %w", selection.ErrNoCoordinator)
	}
	return &ListView{coord: coord, data: data}, nil
}

func (v *ListView) Hover(id string) { v.coord.SetPreviewByID(id, v.data) }

func (v *ListView) Leave() { v.coord.ClearPreview() }

// Click locks the row, or clears the lock when the row is already locked.
func (v *ListView) Click(id string) {
	if v.coord.Active().Has(id) {
		v.coord.ClearActive()
		return
	}
	v.coord.SetActiveByID(id, v.data)
}

// Row is one list entry with its highlight state. FirstOfDate marks where a
// date divider goes.
type Row struct {
	core.Transaction
	Label       string `json:"label"`
	Active      bool   `json:"active"`
	Selected    bool   `json:"selected"`
	FirstOfDate bool   `json:"firstOfDate"`
}

func (v *ListView) Rows() []Row {
	snap := v.coord.Snapshot()
	rows := make([]Row, len(v.data))
	for i, t := range v.data {
		rows[i] = Row{
			Transaction: t,
			Label:       core.FormatAmount(t.Amount, t.Currency),
			Active:      snap.Active.Has(t.ID),
			Selected:    snap.Preview.Has(t.ID),
			FirstOfDate: i == 0 || v.data[i-1].Date.Compare(t.Date) != 0,
		}
	}
	return rows
}

// CategoryView binds one side of the category breakdown to the selection.
type CategoryView struct {
	coord  selection.Coordinator
	data   []core.Transaction
	groups []aggregate.CategoryGroup
}

func NewCategoryView(coord selection.Coordinator, data []core.Transaction, groups []aggregate.CategoryGroup) (*CategoryView, error) {
	if coord == nil {
		return nil, fmt.Errorf("category view: %w", selection.ErrNoCoordinator)
	}
	return &CategoryView{coord: coord, data: data, groups: groups}, nil
}

func (v *CategoryView) group(name string) (aggregate.CategoryGroup, error) {
	i := slices.IndexFunc(v.groups, func(g aggregate.CategoryGroup) bool { return g.Name == name })
	if i < 0 {
		return aggregate.CategoryGroup{}, fmt.Errorf("%w: category %q", ErrUnknownTarget, name)
	}
	return v.groups[i], nil
}

// Hover previews every transaction of the named group. Hovering Others
// previews all of the categories folded into it.
func (v *CategoryView) Hover(name string) error {
	g, err := v.group(name)
	if err != nil {
		return err
	}
	v.coord.SetPreviewByCategories(g.Categories, v.data)
	return nil
}

func (v *CategoryView) Leave() { v.coord.ClearPreview() }

// Click locks the group's categories, or clears the lock when the group
// already holds a locked transaction.
func (v *CategoryView) Click(name string) error {
	g, err := v.group(name)
	if err != nil {
		return err
	}
	if v.coord.Active().Any(g.IDs) {
		v.coord.ClearActive()
		return nil
	}
	v.coord.SetActiveByCategories(g.Categories, v.data)
	return nil
}

// Slice is a category group decorated for display.
type Slice struct {
	aggregate.CategoryGroup
	Percent  float64 `json:"percent"`
	Color    string  `json:"color"`
	Active   bool    `json:"active"`
	Selected bool    `json:"selected"`
}

const (
	incomeHue  = 140
	expenseHue = 0
)

// Slices decorates the groups with share, color and highlight state. Colors
// step lightness from 30% to 70% by group index, so they only depend on the
// group order.
func (v *CategoryView) Slices(hue int) []Slice {
	snap := v.coord.Snapshot()
	total := aggregate.Total(v.groups)
	out := make([]Slice, len(v.groups))
	for i, g := range v.groups {
		pct := 0.0
		if total > 0 {
			pct = g.Amount / total * 100
		}
		out[i] = Slice{
			CategoryGroup: g,
			Percent:       pct,
			Color:         sliceColor(hue, i, len(v.groups)),
			Active:        snap.Active.Any(g.IDs),
			Selected:      snap.Preview.Any(g.IDs),
		}
	}
	return out
}

func sliceColor(hue, i, n int) string {
	steps := n - 1
	if steps < 1 {
		steps = 1
	}
	lightness := 30 + float64(i)*(40/float64(steps))
	return "hsl(" + strconv.Itoa(hue) + ", 60%, " + strconv.FormatFloat(lightness, 'f', -1, 64) + "%)"
}

// TimelineView binds the trend chart buckets to the selection.
type TimelineView struct {
	coord   selection.Coordinator
	data    []core.Transaction
	buckets []aggregate.TimeBucket
}

func NewTimelineView(coord selection.Coordinator, data []core.Transaction, buckets []aggregate.TimeBucket) (*TimelineView, error) {
	if coord == nil {
		return nil, fmt.Errorf("timeline view: %w", selection.ErrNoCoordinator)
	}
	return &TimelineView{coord: coord, data: data, buckets: buckets}, nil
}

// bucket resolves a target to a bucket by its index. Labels repeat once
// several windows fall in the same month, so they cannot identify one.
func (v *TimelineView) bucket(target string) (aggregate.TimeBucket, error) {
	i, err := strconv.Atoi(strings.TrimSpace(target))
	if err != nil || i < 0 || i >= len(v.buckets) {
		return aggregate.TimeBucket{}, fmt.Errorf("%w: bucket %q", ErrUnknownTarget, target)
	}
	return v.buckets[i], nil
}

// Hover previews the transactions dated within the bucket.
func (v *TimelineView) Hover(target string) error {
	b, err := v.bucket(target)
	if err != nil {
		return err
	}
	v.coord.SetPreviewByDateRange(b.Start, b.End, v.data)
	return nil
}

func (v *TimelineView) Leave() { v.coord.ClearPreview() }

// Click locks the bucket's date range, or clears the lock when the bucket
// already holds a locked transaction.
func (v *TimelineView) Click(target string) error {
	b, err := v.bucket(target)
	if err != nil {
		return err
	}
	if b.IsAnyActive {
		v.coord.ClearActive()
		return nil
	}
	v.coord.SetActiveByDateRange(b.Start, b.End, v.data)
	return nil
}
