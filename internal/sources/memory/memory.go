// Package memory keeps data files in process memory. It backs tests and
// the "memory" backend, which is seeded once from another source.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"findash/internal/core"
	"findash/internal/log"
	ports "findash/internal/sources"
)

type Store struct {
	mu    sync.RWMutex
	files map[string][]core.Transaction
}

var (
	_ ports.Source   = (*Store)(nil)
	_ ports.Importer = (*Store)(nil)
)

func New() *Store {
	return &Store{files: make(map[string][]core.Transaction)}
}

// NewFromSource copies every readable file of src. Files that fail to load
// are skipped and logged.
func NewFromSource(ctx context.Context, src ports.Source, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentSources)

	files, err := src.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list seed files: %w", err)
	}
	s := New()
	for _, f := range files {
		txs, err := src.FetchTransactions(ctx, f.Name)
		if err != nil {
			logger.WarnContext(ctx, "Skipping seed file", log.FieldFile, f.Name, log.FieldError, err.Error())
			continue
		}
		s.Put(f.Name, txs)
	}
	logger.InfoContext(ctx, "Memory store seeded", log.FieldCount, len(s.files))
	return s, nil
}

// Put stores a copy of txs under name, replacing any previous content.
func (s *Store) Put(name string, txs []core.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = slices.Clone(txs)
}

func (s *Store) ImportFile(_ context.Context, name string, txs []core.Transaction) error {
	s.Put(name, txs)
	return nil
}

func (s *Store) ListFiles(_ context.Context) ([]core.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.FileInfo, 0, len(s.files))
	for name, txs := range s.files {
		out = append(out, core.FileInfo{Name: name, TransactionsCount: len(txs)})
	}
	ports.SortBySize(out)
	return out, nil
}

func (s *Store) FetchTransactions(_ context.Context, name string) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txs, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrFileNotFound, name)
	}
	return slices.Clone(txs), nil
}
