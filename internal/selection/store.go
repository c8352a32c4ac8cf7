package selection

import (
	"errors"
	"sync"
	"time"

	"findash/internal/core"
	"findash/internal/log"
)

// DefaultDebounce delays hover-driven preview updates.
const DefaultDebounce = 10 * time.Millisecond

// ErrNoCoordinator is returned when a selection consumer is built without a
// coordinator to talk to.
var ErrNoCoordinator = errors.New("selection: no coordinator")

// Snapshot is a read-only view of the selection at one point in time.
type Snapshot struct {
	Active  IDSet  `json:"active"`
	Preview IDSet  `json:"preview"`
	Version uint64 `json:"version"`
}

// Reader exposes the current selection without any way to change it.
type Reader interface {
	Active() IDSet
	Preview() IDSet
	Snapshot() Snapshot
}

// Coordinator is the only mutation surface for the selection. Every setter
// replaces its target set with the ids in data matching the predicate.
type Coordinator interface {
	Reader
	SetPreviewByID(id string, data []core.Transaction)
	SetPreviewByDateRange(start, end core.Date, data []core.Transaction)
	SetPreviewByCategories(categories []string, data []core.Transaction)
	ClearPreview()
	SetActiveByID(id string, data []core.Transaction)
	SetActiveByDateRange(start, end core.Date, data []core.Transaction)
	SetActiveByCategories(categories []string, data []core.Transaction)
	ClearActive()
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. The default uses time.AfterFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Option configures a Store.
type Option func(*Store)

func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

func WithScheduler(sched Scheduler) Option {
	return func(s *Store) { s.sched = sched }
}

// WithOnChange registers a callback invoked after every applied change,
// outside the store's lock.
func WithOnChange(fn func(Snapshot)) Option {
	return func(s *Store) { s.onChange = fn }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l.WithComponent(log.ComponentSelection) }
}

// Store is the Coordinator implementation. Preview updates are debounced:
// each call bumps a generation and a fired callback only applies when its
// generation is still current. Active updates apply immediately.
type Store struct {
	mu       sync.Mutex
	active   IDSet
	preview  IDSet
	gen      uint64
	pending  Timer
	version  uint64
	closed   bool
	debounce time.Duration
	sched    Scheduler
	onChange func(Snapshot)
	logger   *log.Logger
}

var _ Coordinator = (*Store)(nil)

func NewStore(opts ...Option) *Store {
	s := &Store{
		debounce: DefaultDebounce,
		sched:    realScheduler{},
		logger:   log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Active() IDSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Store) Preview() IDSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preview
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Version increases with every applied change.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{Active: s.active, Preview: s.preview, Version: s.version}
}

func (s *Store) SetPreviewByID(id string, data []core.Transaction) {
	s.schedulePreview(ByID(id), data)
}

func (s *Store) SetPreviewByDateRange(start, end core.Date, data []core.Transaction) {
	s.schedulePreview(ByDateRange(start, end), data)
}

func (s *Store) SetPreviewByCategories(categories []string, data []core.Transaction) {
	s.schedulePreview(ByCategories(categories), data)
}

// ClearPreview cancels a pending preview update and empties the preview set
// without delay.
func (s *Store) ClearPreview() {
	s.mu.Lock()
	s.cancelPendingLocked()
	snap, changed := s.applyLocked(func() { s.preview = IDSet{} })
	s.mu.Unlock()
	s.notify(snap, changed)
}

func (s *Store) SetActiveByID(id string, data []core.Transaction) {
	s.setActive(Match(data, ByID(id)))
}

func (s *Store) SetActiveByDateRange(start, end core.Date, data []core.Transaction) {
	s.setActive(Match(data, ByDateRange(start, end)))
}

func (s *Store) SetActiveByCategories(categories []string, data []core.Transaction) {
	s.setActive(Match(data, ByCategories(categories)))
}

func (s *Store) ClearActive() {
	s.setActive(IDSet{})
}

// Close cancels any pending preview update. Later preview calls are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPendingLocked()
	s.closed = true
}

func (s *Store) setActive(ids IDSet) {
	s.mu.Lock()
	snap, changed := s.applyLocked(func() { s.active = ids })
	s.mu.Unlock()
	s.notify(snap, changed)
}

func (s *Store) schedulePreview(p Predicate, data []core.Transaction) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.cancelPendingLocked()
	gen := s.gen

	if s.debounce <= 0 {
		snap, changed := s.applyLocked(func() { s.preview = Match(data, p) })
		s.mu.Unlock()
		s.notify(snap, changed)
		return
	}

	s.pending = s.sched.AfterFunc(s.debounce, func() {
		s.firePreview(gen, p, data)
	})
	s.mu.Unlock()
}

func (s *Store) firePreview(gen uint64, p Predicate, data []core.Transaction) {
	ids := Match(data, p)

	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		s.logger.Debug("Dropped superseded preview update", log.FieldGeneration, gen)
		return
	}
	s.pending = nil
	snap, changed := s.applyLocked(func() { s.preview = ids })
	s.mu.Unlock()
	s.notify(snap, changed)
}

// cancelPendingLocked invalidates any scheduled preview update. Bumping the
// generation covers timers that already fired but have not taken the lock.
func (s *Store) cancelPendingLocked() {
	s.gen++
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

func (s *Store) applyLocked(mutate func()) (Snapshot, bool) {
	mutate()
	s.version++
	return s.snapshotLocked(), s.onChange != nil
}

func (s *Store) notify(snap Snapshot, changed bool) {
	if changed {
		s.onChange(snap)
	}
}
