// Package csvdir serves data files from a directory of CSV files.
package csvdir

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"findash/internal/core"
	"findash/internal/log"
	ports "findash/internal/sources"
)

const extension = ".csv"

// Dir reads data files from a single directory.
type Dir struct {
	root   string
	logger *log.Logger
}

var _ ports.Source = (*Dir)(nil)

func New(root string, logger *log.Logger) *Dir {
	if logger == nil {
		logger = log.Discard()
	}
	return &Dir{root: root, logger: logger.WithComponent(log.ComponentSources)}
}

// Root returns the directory being served.
func (d *Dir) Root() string { return d.root }

// ListFiles returns every CSV file in the directory with its row count.
// Unreadable files are skipped. A missing directory lists nothing.
func (d *Dir) ListFiles(ctx context.Context) ([]core.FileInfo, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []core.FileInfo{}, nil
		}
		return nil, fmt.Errorf("read data dir %s: %w", d.root, err)
	}

	files := make([]core.FileInfo, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !hasCSVExt(e.Name()) {
			continue
		}
		rows, err := d.readRows(e.Name())
		if err != nil {
			d.logger.WarnContext(ctx, "Skipping unreadable data file",
				log.FieldFile, e.Name(), log.FieldError, err.Error())
			continue
		}
		count := 0
		if len(rows) > 1 {
			count = len(rows) - 1
		}
		files = append(files, core.FileInfo{Name: e.Name(), TransactionsCount: count})
	}
	ports.SortBySize(files)
	return files, nil
}

// FetchTransactions loads and validates one file.
func (d *Dir) FetchTransactions(ctx context.Context, filename string) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !hasCSVExt(filename) {
		return nil, fmt.Errorf("%w: %s", ports.ErrUnsupportedFile, filename)
	}
	rows, err := d.readRows(filename)
	if err != nil {
		return nil, err
	}
	txs, err := ports.ParseTable(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return txs, nil
}

func (d *Dir) readRows(filename string) ([][]string, error) {
	path, err := d.path(filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ports.ErrFileNotFound, filename)
		}
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	defer f.Close()
	return readCSV(f)
}

// path resolves filename inside root. Names with path separators are
// treated as absent files.
func (d *Dir) path(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.ContainsAny(filename, `/\`) {
		return "", fmt.Errorf("%w: %s", ports.ErrFileNotFound, filename)
	}
	return filepath.Join(d.root, filename), nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ports.ErrInvalidStructure, err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func hasCSVExt(name string) bool {
	return strings.EqualFold(filepath.Ext(name), extension)
}
