package http

import (
	"errors"
	"net/http"

	"findash/internal/dashboard"
	"findash/internal/log"
)

// writeDashboardError maps a session error to a response, logging the
// ones that are not the client's fault.
func writeDashboardError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForDashboardError(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Dashboard request failed",
			log.FieldPath, r.URL.Path, log.FieldError, err.Error())
		ErrorResponse(status, http.StatusText(status)).Write(w)
		return
	}
	ErrorResponse(status, err.Error()).Write(w)
}

func (s *Server) handleDashboardFiles(w http.ResponseWriter, r *http.Request) {
	OK(w, s.monitor.LoadFiles(r.Context()))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	OK(w, s.monitor.State())
}

type selectFileRequest struct {
	Filename string `json:"filename"`
}

// handleSelectFile switches the session to another data file. Load
// failures are not errors: the session shows an empty dataset.
func (s *Server) handleSelectFile(w http.ResponseWriter, r *http.Request) {
	var req selectFileRequest
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	name := sanitizeInput(req.Filename)
	if !validFilename(name) {
		BadRequestError("invalid filename").Write(w)
		return
	}
	OK(w, s.monitor.SelectFile(r.Context(), name))
}

func (s *Server) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	OK(w, s.monitor.Filter())
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	OK(w, s.monitor.SetFilter(f))
}

func (s *Server) handleClearFilter(w http.ResponseWriter, r *http.Request) {
	OK(w, s.monitor.ClearFilter())
}

func (s *Server) handleToggleCurrency(w http.ResponseWriter, r *http.Request) {
	code := sanitizeInput(r.PathValue("code"))
	if len(code) != 3 {
		BadRequestError("currency must be a 3-letter code").Write(w)
		return
	}
	OK(w, s.monitor.ToggleCurrency(code))
}

func (s *Server) handleDashboardTransactions(w http.ResponseWriter, r *http.Request) {
	rows, err := s.monitor.List()
	if err != nil {
		writeDashboardError(w, r, err)
		return
	}
	OK(w, rows)
}

func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	OK(w, s.monitor.Summary())
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	c, err := s.monitor.Categories()
	if err != nil {
		writeDashboardError(w, r, err)
		return
	}
	OK(w, c)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	tl, err := s.monitor.Timeline(r.Context())
	if err != nil {
		writeDashboardError(w, r, err)
		return
	}
	OK(w, tl)
}

// timelineSettings changes only the fields that are present.
type timelineSettings struct {
	Currency *string `json:"currency"`
	Points   *int    `json:"points"`
}

func (s *Server) handleTimelineSettings(w http.ResponseWriter, r *http.Request) {
	var req timelineSettings
	if err := DecodeJSON(r, &req); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if req.Currency != nil {
		if err := s.monitor.SetDisplayCurrency(*req.Currency); err != nil {
			writeDashboardError(w, r, err)
			return
		}
	}
	if req.Points != nil {
		if err := s.monitor.SetPoints(*req.Points); err != nil {
			writeDashboardError(w, r, err)
			return
		}
	}
	s.handleTimeline(w, r)
}

func (s *Server) handleInteraction(w http.ResponseWriter, r *http.Request) {
	var in dashboard.Interaction
	if err := DecodeJSON(r, &in); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	in.Target = sanitizeInput(in.Target)
	snap, err := s.monitor.Interact(r.Context(), in)
	if err != nil {
		writeDashboardError(w, r, err)
		return
	}
	OK(w, snap)
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	OK(w, s.monitor.Selection())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req dashboard.SelectionRequest
	if err := DecodeJSON(r, &req); err != nil {
		if errors.Is(err, ErrEmptyBody) {
			err = dashboard.ErrEmptySelection
		}
		BadRequestError(err.Error()).Write(w)
		return
	}
	snap, err := s.monitor.Select(r.PathValue("channel"), req)
	if err != nil {
		writeDashboardError(w, r, err)
		return
	}
	OK(w, snap)
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	snap, err := s.monitor.ClearSelection(r.PathValue("channel"))
	if err != nil {
		writeDashboardError(w, r, err)
		return
	}
	OK(w, snap)
}
