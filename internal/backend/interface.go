// Package backend builds the data file source selected by DATA_BACKEND.
package backend

import (
	"context"
	"time"

	"findash/internal/sources"
)

// Backend is any source of data files.
type Backend = sources.Source

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func(ctx context.Context) error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	// Importer is set when the backend can store imported files.
	Importer sources.Importer
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// csv and memory
	DataDirectory string

	// sqlite
	SQLiteDBPath string

	// sheets
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// mongo
	MongoURI      string
	MongoDatabase string

	// remote
	RemoteAPIURL string
	FetchTimeout time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	CSVBackend    BackendType = "csv"
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MongoBackend  BackendType = "mongo"
	RemoteBackend BackendType = "remote"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case CSVBackend, MemoryBackend, SQLiteBackend, SheetsBackend, MongoBackend, RemoteBackend:
		return true
	default:
		return false
	}
}
