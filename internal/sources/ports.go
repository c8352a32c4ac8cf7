// Package sources defines where dashboard data files come from. Each
// backend exposes a list of named files and the transactions inside one.
package sources

import (
	"context"
	"errors"

	"findash/internal/core"
)

// Ports for data file backends.
type (
	FileLister interface {
		// ListFiles returns every readable file, largest first.
		ListFiles(ctx context.Context) ([]core.FileInfo, error)
	}

	TransactionFetcher interface {
		// FetchTransactions returns the validated rows of one file. An empty
		// file yields an empty slice and no error.
		FetchTransactions(ctx context.Context, filename string) ([]core.Transaction, error)
	}

	Source interface {
		FileLister
		TransactionFetcher
	}

	// Importer replaces the stored rows of one file.
	Importer interface {
		ImportFile(ctx context.Context, filename string, txs []core.Transaction) error
	}
)

var (
	ErrUnsupportedFile  = errors.New("only CSV files are supported")
	ErrFileNotFound     = errors.New("file not found")
	ErrInvalidStructure = errors.New("invalid file structure")
	ErrDataIntegrity    = errors.New("data integrity error")
)
