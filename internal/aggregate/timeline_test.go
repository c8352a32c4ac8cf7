package aggregate

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"findash/internal/core"
	"findash/internal/selection"
)

func tx(id, date string, amount int64, currency string) core.Transaction {
	return core.Transaction{ID: id, Date: core.MustDate(date), Amount: amount, Currency: currency}
}

func identity(txs []core.Transaction) []Converted {
	out := make([]Converted, len(txs))
	for i, t := range txs {
		out[i] = Converted{Transaction: t, ConvertedAmount: float64(t.Amount)}
	}
	return out
}

func TestDominantCurrency(t *testing.T) {
	cases := []struct {
		name string
		txs  []core.Transaction
		want string
	}{
		{"empty", nil, FallbackCurrency},
		{"absolute volume", []core.Transaction{tx("1", "2024-01-01", 100, "USD"), tx("2", "2024-01-01", -300, "EUR")}, "EUR"},
		{"tie keeps first seen", []core.Transaction{tx("1", "2024-01-01", 100, "GBP"), tx("2", "2024-01-01", -100, "EUR")}, "GBP"},
	}
	for _, tc := range cases {
		if got := DominantCurrency(tc.txs); got != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestSpanAndMaxPoints(t *testing.T) {
	_, _, days := Span(nil)
	if days != 0 || MaxPoints(days) != 1 {
		t.Fatalf("empty span: days=%d max=%d", days, MaxPoints(days))
	}
	dates := []time.Time{core.MustDate("2024-01-05").Time, core.MustDate("2024-01-01").Time}
	first, last, days := Span(dates)
	if days != 5 || !first.Equal(dates[1]) || !last.Equal(dates[0]) {
		t.Fatalf("unexpected span %v %v %d", first, last, days)
	}
	if MaxPoints(5) != 5 || MaxPoints(400) != MaxPointsCount {
		t.Fatalf("unexpected max points")
	}
	if ClampPoints(0, 5) != 5 || ClampPoints(3, 5) != 3 || ClampPoints(12, 400) != 10 {
		t.Fatalf("unexpected clamping")
	}
}

func TestBuildSeriesSinglePointHoldsEverything(t *testing.T) {
	txs := []core.Transaction{
		tx("1", "2024-01-01", 500, "USD"),
		tx("2", "2024-03-01", -200, "USD"),
		tx("3", "2024-06-01", -50, "USD"),
	}
	s := BuildSeries(identity(txs), 1)
	if len(s.Windows) != 1 || len(s.Windows[0].IDs) != 3 {
		t.Fatalf("expected one bucket with all ids, got %+v", s.Windows)
	}
	if s.Windows[0].Income != 5 || s.Windows[0].Expense != 2.5 {
		t.Fatalf("unexpected sums: %+v", s.Windows[0])
	}
	if s.Windows[0].Label != "Jan 24" {
		t.Fatalf("expected month label, got %q", s.Windows[0].Label)
	}
}

func TestBuildSeriesCoverageAndBoundary(t *testing.T) {
	var txs []core.Transaction
	for i, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"} {
		txs = append(txs, tx(string(rune('a'+i)), d, -100, "USD"))
	}
	s := BuildSeries(identity(txs), 3)
	if s.Days != 5 || s.Points != 3 {
		t.Fatalf("unexpected series shape: days=%d points=%d", s.Days, s.Points)
	}
	// Windows are (-1d,1d], (1d,3d], (3d,5d]: a date on a shared edge goes to
	// the earlier window.
	want := [][]string{{"a", "b"}, {"c", "d"}, {"e"}}
	seen := 0
	for i, w := range s.Windows {
		if !reflect.DeepEqual(w.IDs, want[i]) {
			t.Fatalf("window %d: got %v, want %v", i, w.IDs, want[i])
		}
		seen += len(w.IDs)
	}
	if seen != len(txs) {
		t.Fatalf("expected every transaction exactly once, saw %d", seen)
	}
	labels := []string{s.Windows[0].Label, s.Windows[1].Label, s.Windows[2].Label}
	if !reflect.DeepEqual(labels, []string{"01/01", "01/03", "01/05"}) {
		t.Fatalf("unexpected labels %v", labels)
	}
}

func TestBuildSeriesCoversEverySpan(t *testing.T) {
	start := core.MustDate("2024-01-01")
	for days := 1; days <= 400; days++ {
		var txs []core.Transaction
		for d := 0; d < days; d++ {
			date := core.Date{Time: start.AddDate(0, 0, d)}
			txs = append(txs, core.Transaction{ID: date.String(), Date: date, Amount: -100, Currency: "USD"})
		}
		for points := 1; points <= MaxPointsCount; points++ {
			s := BuildSeries(identity(txs), points)
			seen := make(map[string]int, len(txs))
			prev := ""
			for _, w := range s.Windows {
				for _, id := range w.IDs {
					seen[id]++
					if id < prev {
						t.Fatalf("days=%d points=%d: %s placed before %s", days, points, id, prev)
					}
					prev = id
				}
			}
			if len(seen) != len(txs) {
				t.Fatalf("days=%d points=%d: covered %d of %d", days, points, len(seen), len(txs))
			}
			for id, n := range seen {
				if n != 1 {
					t.Fatalf("days=%d points=%d: %s counted %d times", days, points, id, n)
				}
			}
			for i := 1; i < len(s.Windows); i++ {
				if !s.Windows[i].Start.Equal(s.Windows[i-1].End) {
					t.Fatalf("days=%d points=%d: window %d does not start where %d ends", days, points, i, i-1)
				}
			}
		}
	}
}

func TestWindowIndexEdges(t *testing.T) {
	day := 24 * time.Hour
	cases := []struct {
		offset, span time.Duration
		points, want int
	}{
		{0, 0, 1, 0},
		{3 * day, 4 * day, 1, 0},
		{0, 4 * day, 3, 0},
		{1 * day, 4 * day, 3, 0}, // shared edge stays in the earlier window
		{2 * day, 4 * day, 3, 1},
		{3 * day, 4 * day, 3, 1},
		{4 * day, 4 * day, 3, 2},
		{10 * day, 10 * day, 8, 7},
		{5 * day, 10 * day, 8, 3}, // 5d is the edge between windows 3 and 4
	}
	for _, tc := range cases {
		if got := windowIndex(tc.offset, tc.span, tc.points); got != tc.want {
			t.Errorf("windowIndex(%v, %v, %d) = %d, want %d", tc.offset, tc.span, tc.points, got, tc.want)
		}
	}
}

func TestBuildSeriesClampsPointsToSpan(t *testing.T) {
	txs := []core.Transaction{tx("1", "2024-01-01", 100, "USD"), tx("2", "2024-01-01", -100, "USD")}
	s := BuildSeries(identity(txs), 10)
	if s.Points != 1 || len(s.Windows) != 1 {
		t.Fatalf("single-day data must collapse to one point, got %d", s.Points)
	}
	if len(BuildSeries(nil, 5).Windows) != 0 {
		t.Fatalf("empty data must have no windows")
	}
}

func TestBucketFlags(t *testing.T) {
	txs := []core.Transaction{
		tx("in", "2024-01-01", 100, "USD"),
		tx("out", "2024-01-01", -100, "USD"),
		tx("zero", "2024-01-10", 0, "USD"),
		tx("late", "2024-01-10", -10, "USD"),
	}
	s := BuildSeries(identity(txs), 2)
	buckets := s.Buckets(selection.NewIDSet("in"), selection.NewIDSet("out", "zero"))
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	b0, b1 := buckets[0], buckets[1]
	if !b0.IncomeActive || b0.IncomeSelected || b0.ExpenseActive || !b0.ExpenseSelected || !b0.IsAnyActive || !b0.IsAnySelected {
		t.Fatalf("unexpected flags on first bucket: %+v", b0)
	}
	if b1.IncomeSelected || b1.ExpenseSelected || !b1.IsAnySelected || b1.IsAnyActive {
		t.Fatalf("zero-amount id should only raise the any flag: %+v", b1)
	}
	if b1.Income != 0 || b1.Expense != 0.1 {
		t.Fatalf("unexpected sums: %+v", b1)
	}
	if b0.Start.String() != "2024-01-01" || b1.End.String() != "2024-01-10" {
		t.Fatalf("unexpected bucket dates: %v %v", b0.Start, b1.End)
	}
}

func TestNormalizeConvertsConcurrently(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	conv := ConverterFunc(func(_ context.Context, amount int64, from, to string) (float64, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return float64(amount) * 2, nil
	})
	txs := []core.Transaction{tx("1", "2024-01-01", 100, "EUR"), tx("2", "2024-01-02", -50, "USD"), tx("3", "2024-01-03", 30, "EUR")}
	got, err := NewNormalizer(conv, nil).Normalize(context.Background(), txs, "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("same-currency rows must skip the converter, got %d calls", calls)
	}
	want := []float64{200, -50, 60}
	for i, c := range got {
		if c.ConvertedAmount != want[i] || c.ID != txs[i].ID {
			t.Fatalf("row %d: got %+v", i, c)
		}
	}
}

func TestNormalizeFailingConverterFallsBack(t *testing.T) {
	conv := ConverterFunc(func(context.Context, int64, string, string) (float64, error) {
		return 0, errors.New("rates unavailable")
	})
	txs := []core.Transaction{tx("1", "2024-01-01", 500, "EUR"), tx("2", "2024-01-02", -200, "EUR")}
	got, err := NewNormalizer(conv, nil).Normalize(context.Background(), txs, "USD")
	if err != nil {
		t.Fatalf("conversion failures must not fail the batch: %v", err)
	}
	s := BuildSeries(got, 1)
	if s.Windows[0].Income != 5 || s.Windows[0].Expense != 2 {
		t.Fatalf("expected raw amounts, got %+v", s.Windows[0])
	}
}

func TestNormalizeDiscardsSupersededBatch(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	slow := ConverterFunc(func(context.Context, int64, string, string) (float64, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return 1, nil
	})
	n := NewNormalizer(slow, nil)
	txs := []core.Transaction{tx("1", "2024-01-01", 500, "EUR")}

	errc := make(chan error, 1)
	go func() {
		_, err := n.Normalize(context.Background(), txs, "USD")
		errc <- err
	}()
	<-started

	// A newer batch in the display currency never touches the converter.
	latest, err := n.Normalize(context.Background(), []core.Transaction{tx("2", "2024-01-01", 100, "USD")}, "USD")
	if err != nil || len(latest) != 1 {
		t.Fatalf("latest batch failed: %v", err)
	}
	close(release)
	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
}
