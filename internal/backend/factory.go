package backend

import (
	"context"
	"fmt"
	"net/http"

	"findash/internal/log"
	"findash/internal/sources/csvdir"
	"findash/internal/sources/google"
	"findash/internal/sources/memory"
	"findash/internal/sources/mongodb"
	"findash/internal/sources/remote"
	"findash/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case CSVBackend:
		result = &BackendResult{Backend: csvdir.New(dataDir(config), f.logger)}
	case MemoryBackend:
		result, err = f.createMemoryBackend(ctx, config)
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case SheetsBackend:
		result, err = f.createSheetsBackend(ctx, config)
	case MongoBackend:
		result, err = f.createMongoBackend(ctx, config)
	case RemoteBackend:
		client := &http.Client{Timeout: config.FetchTimeout}
		result = &BackendResult{Backend: remote.New(config.RemoteAPIURL, client)}
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.logger.Info("Initialized data backend", log.FieldBackend, config.Type.String())
	return result, nil
}

func dataDir(config Config) string {
	if config.DataDirectory == "" {
		return "data"
	}
	return config.DataDirectory
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := memory.NewFromSource(ctx, csvdir.New(dataDir(config), f.logger), f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to seed memory backend: %w", err)
	}
	return &BackendResult{Backend: store, Importer: store}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	return &BackendResult{
		Backend:  repo,
		Importer: repo,
		Cleanup:  func(context.Context) error { return repo.Close() },
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := google.New(ctx, google.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	return &BackendResult{Backend: cli}, nil
}

func (f *DefaultFactory) createMongoBackend(ctx context.Context, config Config) (*BackendResult, error) {
	src, err := mongodb.Connect(ctx, config.MongoURI, config.MongoDatabase, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	return &BackendResult{Backend: src, Importer: src, Cleanup: src.Close}, nil
}
