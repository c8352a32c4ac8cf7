package http

import (
	"context"
	"net/http"
	"slices"
	"sync/atomic"

	gocache "github.com/patrickmn/go-cache"

	"findash/internal/core"
	"findash/internal/log"
)

// handleListFiles lists every readable data file, largest first.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.fetchTimeout)
	defer cancel()

	files, err := s.source.ListFiles(ctx)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "List files failed",
			log.FieldOperation, log.OpList, log.FieldError, err.Error())
		InternalServerError("could not list data files").Write(w)
		return
	}
	if files == nil {
		files = []core.FileInfo{}
	}
	OK(w, files)
}

// handleTransactions returns the validated rows of one file, narrowed by
// the query filters. An empty result is answered with 204.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	txs, ok := s.queryTransactions(w, r)
	if !ok {
		return
	}
	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	OK(w, txs)
}

// handleSummary totals the filtered rows of one file per currency.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	txs, ok := s.queryTransactions(w, r)
	if !ok {
		return
	}
	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	OK(w, core.Summarize(txs))
}

// queryTransactions writes the error response itself and reports false
// when the request cannot be served.
func (s *Server) queryTransactions(w http.ResponseWriter, r *http.Request) ([]core.Transaction, bool) {
	name := r.PathValue("filename")
	if !validFilename(name) {
		BadRequestError("invalid filename").Write(w)
		return nil, false
	}
	q, err := ParseQuery(r.URL.Query())
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return nil, false
	}

	txs, err := s.fileTransactions(r.Context(), name)
	if err != nil {
		status := statusForSourceError(err)
		logger := log.FromContext(r.Context())
		if status == http.StatusInternalServerError {
			logger.ErrorContext(r.Context(), "Fetch transactions failed",
				log.FieldFile, name, log.FieldError, err.Error())
			InternalServerError("could not read data file").Write(w)
			return nil, false
		}
		logger.WarnContext(r.Context(), "Rejected data file",
			log.FieldFile, name, log.FieldError, err.Error())
		ErrorResponse(status, err.Error()).Write(w)
		return nil, false
	}
	return core.ApplyQuery(txs, q), true
}

// fileTransactions reads a file through the per-file cache. Cached slices
// are never handed out directly.
func (s *Server) fileTransactions(ctx context.Context, name string) ([]core.Transaction, error) {
	if v, found := s.txCache.Get(name); found {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		return slices.Clone(v.([]core.Transaction)), nil
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	txs, err := s.source.FetchTransactions(ctx, name)
	if err != nil {
		return nil, err
	}
	s.txCache.Set(name, slices.Clone(txs), gocache.DefaultExpiration)
	return txs, nil
}
