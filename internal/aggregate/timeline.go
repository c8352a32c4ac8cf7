package aggregate

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"findash/internal/core"
	"findash/internal/log"
	"findash/internal/selection"
)

const (
	// FallbackCurrency is the display currency of an empty dataset.
	FallbackCurrency = "USD"
	// MaxPointsCount caps the number of timeline buckets.
	MaxPointsCount = 10
	// Windows longer than this many days are labelled by month.
	monthLabelAfterDays = 30

	dayLabelLayout   = "01/02"
	monthLabelLayout = "Jan 06"

	defaultConvertConcurrency = 16
)

// ErrSuperseded is returned by Normalize when a newer batch was requested
// before this one finished.
var ErrSuperseded = errors.New("aggregate: timeline batch superseded")

// Converter converts an amount in minor units between currencies.
type Converter interface {
	Convert(ctx context.Context, amount int64, from, to string) (float64, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(ctx context.Context, amount int64, from, to string) (float64, error)

func (f ConverterFunc) Convert(ctx context.Context, amount int64, from, to string) (float64, error) {
	return f(ctx, amount, from, to)
}

// Converted is a transaction with its amount expressed in the display
// currency, still in minor units.
type Converted struct {
	core.Transaction
	ConvertedAmount float64 `json:"convertedAmount"`
}

// DominantCurrency returns the currency with the largest absolute volume.
// Ties go to the currency seen first. Empty input yields FallbackCurrency.
func DominantCurrency(txs []core.Transaction) string {
	if len(txs) == 0 {
		return FallbackCurrency
	}
	totals := make(map[string]float64)
	var order []string
	for _, t := range txs {
		if _, ok := totals[t.Currency]; !ok {
			order = append(order, t.Currency)
		}
		totals[t.Currency] += math.Abs(float64(t.Amount))
	}
	best := order[0]
	for _, c := range order[1:] {
		if totals[c] > totals[best] {
			best = c
		}
	}
	return best
}

// Span returns the earliest and latest dates and the inclusive day count
// ceil((max-min)/day)+1. Empty input has a span of 0 days.
func Span(dates []time.Time) (first, last time.Time, days int) {
	if len(dates) == 0 {
		return time.Time{}, time.Time{}, 0
	}
	first, last = dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}
	days = int(math.Ceil(float64(last.Sub(first))/float64(24*time.Hour))) + 1
	return first, last, days
}

// MaxPoints is the largest usable bucket count for a span of days.
func MaxPoints(days int) int {
	if days < 1 {
		days = 1
	}
	return min(MaxPointsCount, days)
}

// ClampPoints bounds a requested bucket count to [1, MaxPoints(days)]. Zero
// or negative requests mean "as many as possible".
func ClampPoints(points, days int) int {
	limit := MaxPoints(days)
	if points < 1 || points > limit {
		return limit
	}
	return points
}

// Normalizer converts transaction batches into a display currency. Each
// call is tagged with a generation; a batch that finishes after a newer one
// was started is discarded.
type Normalizer struct {
	conv   Converter
	logger *log.Logger
	limit  int
	gen    atomic.Uint64
}

func NewNormalizer(conv Converter, logger *log.Logger) *Normalizer {
	if logger == nil {
		logger = log.Discard()
	}
	return &Normalizer{
		conv:   conv,
		logger: logger.WithComponent(log.ComponentAggregate),
		limit:  defaultConvertConcurrency,
	}
}

// Normalize converts every transaction concurrently and waits for all of
// them. A failed conversion keeps the original amount. It returns
// ErrSuperseded when another Normalize call started in the meantime.
func (n *Normalizer) Normalize(ctx context.Context, txs []core.Transaction, to string) ([]Converted, error) {
	gen := n.gen.Add(1)
	out := make([]Converted, len(txs))

	var g errgroup.Group
	g.SetLimit(n.limit)
	for i, t := range txs {
		g.Go(func() error {
			out[i] = Converted{Transaction: t, ConvertedAmount: n.convert(ctx, t, to)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if latest := n.gen.Load(); latest != gen {
		n.logger.DebugContext(ctx, "Discarded stale timeline batch",
			log.FieldGeneration, gen, "latest_generation", latest)
		return nil, ErrSuperseded
	}
	return out, nil
}

func (n *Normalizer) convert(ctx context.Context, t core.Transaction, to string) float64 {
	if to == "" || t.Currency == to || n.conv == nil {
		return float64(t.Amount)
	}
	v, err := n.conv.Convert(ctx, t.Amount, t.Currency, to)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		fields := log.NewFields().
			WithConversion(t.ID, t.Amount, t.Currency, to).
			WithOperation(log.OpConvert).
			WithError(err)
		n.logger.WarnContext(ctx, "Currency conversion failed, using unconverted amount", fields.ToSlice()...)
		return float64(t.Amount)
	}
	return v
}

// Window is one bucket of a Series before selection flags are applied.
// Members fall in (Start, End] unless the series has a single window.
type Window struct {
	Index      int
	Label      string
	Point      time.Time
	Start      time.Time
	End        time.Time
	Income     float64
	Expense    float64
	IncomeIDs  []string
	ExpenseIDs []string
	IDs        []string
	First      core.Date
	Last       core.Date
}

// Series is the numeric part of the timeline. It does not depend on the
// selection, so it can be reused while only the highlight flags change.
type Series struct {
	Days    int
	Points  int
	Windows []Window
}

// BuildSeries buckets converted transactions into evenly spaced windows.
// points is clamped to MaxPoints of the data span.
func BuildSeries(txs []Converted, points int) Series {
	if len(txs) == 0 {
		return Series{}
	}
	dates := make([]time.Time, len(txs))
	for i, t := range txs {
		dates[i] = t.Date.Time
	}
	first, last, days := Span(dates)
	points = ClampPoints(points, days)

	span := last.Sub(first)
	interval := float64(span)
	if points > 1 {
		interval /= float64(points - 1)
	}
	layout := dayLabelLayout
	if days > monthLabelAfterDays {
		layout = monthLabelLayout
	}

	// edges[k] closes window k-1 and opens window k.
	edges := make([]time.Time, points+1)
	for k := range edges {
		edges[k] = first.Add(time.Duration((float64(k) - 0.5) * interval))
	}
	windows := make([]Window, points)
	for i := range windows {
		point := first.Add(time.Duration(float64(i) * interval)).UTC()
		windows[i] = Window{
			Index: i,
			Label: point.Format(layout),
			Point: point,
			Start: edges[i],
			End:   edges[i+1],
		}
	}

	for _, t := range txs {
		windows[windowIndex(t.Date.Sub(first), span, points)].add(t)
	}
	return Series{Days: days, Points: points, Windows: windows}
}

// windowIndex returns the window whose (start, end] holds offset. Windows
// are centred on i*span/(points-1) and are one interval wide. The test is
// done in whole seconds so adjacent windows share their edge exactly.
func windowIndex(offset, span time.Duration, points int) int {
	o, s := int64(offset/time.Second), int64(span/time.Second)
	if points <= 1 || s <= 0 {
		return 0
	}
	// ceil((o*(points-1) - s/2) / s)
	num := 2*o*int64(points-1) - s
	den := 2 * s
	idx := num / den
	if num > 0 && num%den != 0 {
		idx++
	}
	return max(0, min(int(idx), points-1))
}

func (w *Window) add(t Converted) {
	switch {
	case t.IsIncome():
		w.Income += t.ConvertedAmount / 100
		w.IncomeIDs = append(w.IncomeIDs, t.ID)
	case t.IsExpense():
		w.Expense += math.Abs(t.ConvertedAmount / 100)
		w.ExpenseIDs = append(w.ExpenseIDs, t.ID)
	}
	w.IDs = append(w.IDs, t.ID)
	if w.First.IsZero() || t.Date.Before(w.First.Time) {
		w.First = t.Date
	}
	if w.Last.IsZero() || t.Date.After(w.Last.Time) {
		w.Last = t.Date
	}
}

// TimeBucket is one point of the trend chart. Active flags follow the
// click-locked set, Selected flags the hover preview.
type TimeBucket struct {
	Index           int       `json:"index"`
	Label           string    `json:"label"`
	Start           core.Date `json:"start"`
	End             core.Date `json:"end"`
	Income          float64   `json:"income"`
	Expense         float64   `json:"expense"`
	IncomeActive    bool      `json:"incomeActive"`
	IncomeSelected  bool      `json:"incomeSelected"`
	ExpenseActive   bool      `json:"expenseActive"`
	ExpenseSelected bool      `json:"expenseSelected"`
	IsAnyActive     bool      `json:"isAnyActive"`
	IsAnySelected   bool      `json:"isAnySelected"`
}

// Buckets applies the selection flags to the series. Start and End are the
// first and last transaction dates inside each window.
func (s Series) Buckets(active, preview selection.IDSet) []TimeBucket {
	out := make([]TimeBucket, len(s.Windows))
	for i, w := range s.Windows {
		out[i] = TimeBucket{
			Index:           w.Index,
			Label:           w.Label,
			Start:           w.First,
			End:             w.Last,
			Income:          w.Income,
			Expense:         w.Expense,
			IncomeActive:    active.Any(w.IncomeIDs),
			IncomeSelected:  preview.Any(w.IncomeIDs),
			ExpenseActive:   active.Any(w.ExpenseIDs),
			ExpenseSelected: preview.Any(w.ExpenseIDs),
			IsAnyActive:     active.Any(w.IDs),
			IsAnySelected:   preview.Any(w.IDs),
		}
	}
	return out
}
