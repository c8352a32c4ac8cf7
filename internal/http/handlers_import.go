package http

import (
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"

	"findash/internal/amqp"
	"findash/internal/log"
)

type importAccepted struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
}

// handleImport queues a CSV data file for import into the local store and
// answers 202 with the job id.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		ServiceUnavailableError("import queue is not configured").Write(w)
		return
	}
	name := r.PathValue("filename")
	if !validFilename(name) {
		BadRequestError("invalid filename").Write(w)
		return
	}
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		ErrorResponse(http.StatusUnsupportedMediaType, "only CSV files are supported").Write(w)
		return
	}

	msg := amqp.NewImportFileMessage(name)
	logger := log.FromContext(r.Context())
	if err := s.publisher.PublishImport(r.Context(), msg); err != nil {
		logger.ErrorContext(r.Context(), "Failed to queue import",
			log.FieldFile, name, log.FieldJobID, msg.JobID.String(),
			log.FieldOperation, log.OpPublish, log.FieldError, err.Error())
		ServiceUnavailableError("could not queue import").Write(w)
		return
	}

	atomic.AddInt64(&s.appMetrics.importsQueued, 1)
	s.txCache.Delete(name)
	logger.InfoContext(r.Context(), "Import queued",
		log.FieldFile, name, log.FieldJobID, msg.JobID.String())

	NewJSONResponse().
		Status(http.StatusAccepted).
		Body(importAccepted{JobID: msg.JobID.String(), Filename: name}).
		Write(w)
}
