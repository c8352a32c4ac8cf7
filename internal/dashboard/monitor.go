// Package dashboard holds one dashboard session: the chosen data file, the
// filter, the shared selection and the aggregates derived from them.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"findash/internal/aggregate"
	"findash/internal/cache"
	"findash/internal/core"
	"findash/internal/log"
	"findash/internal/selection"
	"findash/internal/sources"
)

const (
	DefaultFetchTimeout = 10 * time.Second

	conversionCacheSize = 32
	conversionCacheTTL  = 30 * time.Minute
)

var (
	ErrInvalidCurrency = errors.New("dashboard: invalid display currency")
	ErrInvalidPoints   = errors.New("dashboard: invalid points count")
	ErrUnknownView     = errors.New("dashboard: unknown view")
	ErrUnknownAction   = errors.New("dashboard: unknown action")
)

type Option func(*Monitor)

func WithFetchTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.fetchTimeout = d
		}
	}
}

// WithSelectionOptions configures every selection store the monitor
// creates.
func WithSelectionOptions(opts ...selection.Option) Option {
	return func(m *Monitor) { m.storeOpts = append(m.storeOpts, opts...) }
}

// WithDefaultCurrency sets the display currency used when there is no data
// to pick a dominant currency from.
func WithDefaultCurrency(code string) Option {
	return func(m *Monitor) { m.defaultCurrency = strings.ToUpper(code) }
}

// WithConversionCache replaces the cache of converted batches.
func WithConversionCache(c cache.Cache[[]aggregate.Converted]) Option {
	return func(m *Monitor) { m.converted = c }
}

// Monitor is a dashboard session. Selecting a file or changing the filter
// starts a fresh selection and resets the display currency and points.
type Monitor struct {
	source          sources.Source
	normalizer      *aggregate.Normalizer
	converted       cache.Cache[[]aggregate.Converted]
	group           singleflight.Group
	logger          *log.Logger
	events          *log.StructuredLogger
	fetchTimeout    time.Duration
	storeOpts       []selection.Option
	defaultCurrency string

	mu       sync.RWMutex
	files    []core.FileInfo
	file     string
	loading  bool
	loadGen  uint64
	raw      []core.Transaction
	filter   core.Filter
	filtered []core.Transaction
	version  uint64
	store    *selection.Store
	currency string
	points   int
}

func NewMonitor(source sources.Source, conv aggregate.Converter, logger *log.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentDashboard)
	m := &Monitor{
		source:       source,
		normalizer:   aggregate.NewNormalizer(conv, logger),
		converted:    cache.NewLRUCache[[]aggregate.Converted](conversionCacheSize, conversionCacheTTL),
		logger:       logger,
		events:       log.NewStructuredLogger(logger),
		fetchTimeout: DefaultFetchTimeout,
		files:        []core.FileInfo{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.storeOpts = append([]selection.Option{selection.WithLogger(logger)}, m.storeOpts...)
	m.store = selection.NewStore(m.storeOpts...)
	return m
}

// ConversionCache exposes the converted-batch cache for periodic cleanup.
func (m *Monitor) ConversionCache() cache.Cache[[]aggregate.Converted] {
	return m.converted
}

// LoadFiles refreshes the file list. A failing source yields an empty list.
func (m *Monitor) LoadFiles(ctx context.Context) []core.FileInfo {
	ctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	files, err := m.source.ListFiles(ctx)
	if err != nil {
		m.events.LogFetchFailure(ctx, "", err)
		files = nil
	}
	if files == nil {
		files = []core.FileInfo{}
	}

	m.mu.Lock()
	m.files = files
	m.mu.Unlock()
	return slices.Clone(files)
}

// SelectFile loads a file's transactions newest first. A failing source
// yields an empty dataset. When another SelectFile starts before this one
// finishes, only the latest one is kept.
func (m *Monitor) SelectFile(ctx context.Context, name string) State {
	m.mu.Lock()
	m.loadGen++
	gen := m.loadGen
	m.file = name
	m.loading = true
	m.raw = nil
	m.applyFilterLocked()
	m.mu.Unlock()

	fctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	txs, err := m.source.FetchTransactions(fctx, name)
	cancel()
	if err != nil {
		m.events.LogFetchFailure(ctx, name, err)
		txs = nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.loadGen {
		m.logger.DebugContext(ctx, "Discarded superseded file load", log.FieldFile, name)
		return m.stateLocked()
	}
	m.raw = core.SortByDateDesc(txs)
	m.loading = false
	m.applyFilterLocked()
	m.logger.InfoContext(ctx, "Data file selected", log.FieldFile, name, log.FieldCount, len(m.raw))
	return m.stateLocked()
}

// SetFilter replaces the filter. Currency codes are upper-cased.
func (m *Monitor) SetFilter(f core.Filter) State {
	codes := make([]string, 0, len(f.Currencies))
	for _, c := range f.Currencies {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" && !slices.Contains(codes, c) {
			codes = append(codes, c)
		}
	}
	f.Currencies = codes

	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = f
	m.applyFilterLocked()
	return m.stateLocked()
}

// ToggleCurrency adds code to the currency filter, or removes it when
// present.
func (m *Monitor) ToggleCurrency(code string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = m.filter.ToggleCurrency(code)
	m.applyFilterLocked()
	return m.stateLocked()
}

func (m *Monitor) ClearFilter() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filter = core.Filter{}
	m.applyFilterLocked()
	return m.stateLocked()
}

func (m *Monitor) Filter() core.Filter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filter
}

// applyFilterLocked recomputes the filtered set and starts a new session
// over it.
func (m *Monitor) applyFilterLocked() {
	m.filtered = core.ApplyFilter(m.raw, m.filter)
	m.version++
	m.store.Close()
	m.store = selection.NewStore(m.storeOpts...)
	m.currency = ""
	m.points = 0
}

// State is a summary of the session for clients.
type State struct {
	Files           []core.FileInfo `json:"files"`
	SelectedFile    string          `json:"selectedFile"`
	Loading         bool            `json:"loading"`
	Filter          core.Filter     `json:"filter"`
	Total           int             `json:"total"`
	Filtered        int             `json:"filtered"`
	Currencies      []string        `json:"currencies"`
	DisplayCurrency string          `json:"displayCurrency"`
	Points          int             `json:"points"`
	Version         uint64          `json:"version"`
}

func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

func (m *Monitor) stateLocked() State {
	currencies := core.Currencies(m.raw)
	if currencies == nil {
		currencies = []string{}
	}
	return State{
		Files:           slices.Clone(m.files),
		SelectedFile:    m.file,
		Loading:         m.loading,
		Filter:          m.filter,
		Total:           len(m.raw),
		Filtered:        len(m.filtered),
		Currencies:      currencies,
		DisplayCurrency: m.displayCurrencyLocked(),
		Points:          m.points,
		Version:         m.version,
	}
}

// session is a consistent read of the data and selection at one moment.
type session struct {
	data     []core.Transaction
	store    *selection.Store
	version  uint64
	currency string
	points   int
}

func (m *Monitor) session() session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return session{
		data:     m.filtered,
		store:    m.store,
		version:  m.version,
		currency: m.displayCurrencyLocked(),
		points:   m.points,
	}
}

// Transactions returns the filtered list, newest first.
func (m *Monitor) Transactions() []core.Transaction {
	return slices.Clone(m.session().data)
}

// Selection returns the current active and preview sets.
func (m *Monitor) Selection() selection.Snapshot {
	return m.session().store.Snapshot()
}

// Summary totals the filtered set per currency.
func (m *Monitor) Summary() []core.CurrencySummary {
	return core.Summarize(m.session().data)
}

// List returns the list view rows.
func (m *Monitor) List() ([]Row, error) {
	s := m.session()
	v, err := NewListView(s.store, s.data)
	if err != nil {
		return nil, err
	}
	return v.Rows(), nil
}

// Categories is the category breakdown with highlight state.
type Categories struct {
	Income       []Slice `json:"income"`
	Expense      []Slice `json:"expense"`
	IncomeTotal  float64 `json:"incomeTotal"`
	ExpenseTotal float64 `json:"expenseTotal"`
}

func (m *Monitor) Categories() (Categories, error) {
	s := m.session()
	income, expense, err := m.categoryViews(s)
	if err != nil {
		return Categories{}, err
	}
	return Categories{
		Income:       income.Slices(incomeHue),
		Expense:      expense.Slices(expenseHue),
		IncomeTotal:  aggregate.Total(income.groups),
		ExpenseTotal: aggregate.Total(expense.groups),
	}, nil
}

func (m *Monitor) categoryViews(s session) (income, expense *CategoryView, err error) {
	b := aggregate.Categories(s.data)
	if income, err = NewCategoryView(s.store, s.data, b.Income); err != nil {
		return nil, nil, err
	}
	if expense, err = NewCategoryView(s.store, s.data, b.Expense); err != nil {
		return nil, nil, err
	}
	return income, expense, nil
}

// Timeline is the trend chart in the display currency.
type Timeline struct {
	Currency  string                 `json:"currency"`
	Points    int                    `json:"points"`
	MaxPoints int                    `json:"maxPoints"`
	Days      int                    `json:"days"`
	Buckets   []aggregate.TimeBucket `json:"buckets"`
}

// Timeline converts the filtered set into the display currency and buckets
// it. Converted batches are cached per dataset version and currency, so
// point and selection changes only rebuild the buckets.
func (m *Monitor) Timeline(ctx context.Context) (Timeline, error) {
	s := m.session()
	t, _, err := m.timeline(ctx, s)
	return t, err
}

func (m *Monitor) timeline(ctx context.Context, s session) (Timeline, []aggregate.TimeBucket, error) {
	converted, err := m.convert(ctx, s)
	if err != nil {
		return Timeline{}, nil, err
	}
	series := aggregate.BuildSeries(converted, s.points)
	snap := s.store.Snapshot()
	buckets := series.Buckets(snap.Active, snap.Preview)
	if buckets == nil {
		buckets = []aggregate.TimeBucket{}
	}
	return Timeline{
		Currency:  s.currency,
		Points:    series.Points,
		MaxPoints: aggregate.MaxPoints(series.Days),
		Days:      series.Days,
		Buckets:   buckets,
	}, buckets, nil
}

func (m *Monitor) convert(ctx context.Context, s session) ([]aggregate.Converted, error) {
	key := strconv.FormatUint(s.version, 10) + ":" + s.currency
	if c, ok := m.converted.Get(key); ok {
		return c, nil
	}
	v, err, _ := m.group.Do(key, func() (any, error) {
		c, err := m.normalizer.Normalize(ctx, s.data, s.currency)
		if err != nil {
			return nil, err
		}
		m.converted.Set(key, c)
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]aggregate.Converted), nil
}

// SetDisplayCurrency picks the timeline currency. An empty code restores
// the default.
func (m *Monitor) SetDisplayCurrency(code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code != "" && !isCurrencyCode(code) {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currency = code
	return nil
}

// SetPoints sets the timeline bucket count. Zero means as many as the data
// span allows; larger values are clamped when the timeline is built.
func (m *Monitor) SetPoints(n int) error {
	if n < 0 || n > aggregate.MaxPointsCount {
		return fmt.Errorf("%w: %d", ErrInvalidPoints, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = n
	return nil
}

// displayCurrencyLocked is the explicit choice, else the dominant currency
// of the filtered data, else the configured default.
func (m *Monitor) displayCurrencyLocked() string {
	if m.currency != "" {
		return m.currency
	}
	if len(m.filtered) == 0 && m.defaultCurrency != "" {
		return m.defaultCurrency
	}
	return aggregate.DominantCurrency(m.filtered)
}

func isCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
