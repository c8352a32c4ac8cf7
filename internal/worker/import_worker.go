// Package worker copies data files into the local store on request.
package worker

import (
	"context"
	"errors"
	"fmt"

	"findash/internal/amqp"
	"findash/internal/core"
	"findash/internal/log"
	"findash/internal/sources"
	"findash/internal/storage"
)

// JobRecorder keeps the outcome of each import job.
type JobRecorder interface {
	RecordImport(ctx context.Context, job storage.ImportJob) error
}

// ImportWorker reads a file from source and replaces its rows in sink.
type ImportWorker struct {
	source   sources.Source
	sink     sources.Importer
	recorder JobRecorder
	logger   *log.Logger
}

func NewImportWorker(source sources.Source, sink sources.Importer, recorder JobRecorder, logger *log.Logger) *ImportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ImportWorker{
		source:   source,
		sink:     sink,
		recorder: recorder,
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleImportMessage processes one queued import. Files that can never be
// imported (bad extension, missing, malformed) are recorded as failed and
// acknowledged; other errors are returned so the delivery is requeued.
func (w *ImportWorker) HandleImportMessage(ctx context.Context, msg *amqp.ImportFileMessage) error {
	logger := w.logger.With(log.FieldJobID, msg.JobID.String(), log.FieldFile, msg.Filename)
	logger.InfoContext(ctx, "Processing import request", log.FieldOperation, log.OpImport)

	n, err := w.importFile(ctx, msg.Filename)
	job := storage.ImportJob{JobID: msg.JobID.String(), File: msg.Filename, Rows: n, Status: storage.JobSucceeded}
	if err != nil {
		job.Status = storage.JobFailed
		job.Error = err.Error()
	}
	if w.recorder != nil {
		if recErr := w.recorder.RecordImport(ctx, job); recErr != nil {
			logger.ErrorContext(ctx, "Failed to record import job", log.FieldError, recErr.Error())
		}
	}

	if err != nil {
		if isPermanent(err) {
			logger.WarnContext(ctx, "Import rejected", log.FieldError, err.Error())
			return nil
		}
		return err
	}

	logger.InfoContext(ctx, "Import finished", log.FieldCount, n)
	return nil
}

// StartupImport copies every file the source lists. Failures are logged per
// file and do not stop the pass.
func (w *ImportWorker) StartupImport(ctx context.Context) error {
	files, err := w.source.ListFiles(ctx)
	if err != nil {
		return fmt.Errorf("list files for startup import: %w", err)
	}
	if len(files) == 0 {
		w.logger.InfoContext(ctx, "No data files found on startup")
		return nil
	}

	successCount, errorCount := 0, 0
	for _, f := range files {
		if _, err := w.importFile(ctx, f.Name); err != nil {
			w.logger.ErrorContext(ctx, "Failed to import file during startup",
				log.FieldFile, f.Name, log.FieldError, err.Error())
			errorCount++
			continue
		}
		successCount++
	}

	w.logger.InfoContext(ctx, "Startup import completed",
		"total", len(files),
		"imported", successCount,
		"errors", errorCount)
	return nil
}

func (w *ImportWorker) importFile(ctx context.Context, filename string) (int, error) {
	txs, err := w.source.FetchTransactions(ctx, filename)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", filename, err)
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	if err := w.sink.ImportFile(ctx, filename, txs); err != nil {
		return 0, fmt.Errorf("store %s: %w", filename, err)
	}
	return len(txs), nil
}

func isPermanent(err error) bool {
	return errors.Is(err, sources.ErrUnsupportedFile) ||
		errors.Is(err, sources.ErrFileNotFound) ||
		errors.Is(err, sources.ErrInvalidStructure) ||
		errors.Is(err, sources.ErrDataIntegrity)
}
