package http

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"findash/internal/aggregate"
	"findash/internal/dashboard"
	"findash/internal/sources"
)

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// validFilename rejects names that could escape the data directory.
func validFilename(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && path.Base(name) == name
}

// statusForSourceError maps data file errors to the raw API status codes.
func statusForSourceError(err error) int {
	switch {
	case errors.Is(err, sources.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, sources.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, sources.ErrInvalidStructure), errors.Is(err, sources.ErrDataIntegrity):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// statusForDashboardError maps session errors to status codes.
func statusForDashboardError(err error) int {
	switch {
	case errors.Is(err, dashboard.ErrUnknownTarget):
		return http.StatusNotFound
	case errors.Is(err, dashboard.ErrUnknownView),
		errors.Is(err, dashboard.ErrUnknownAction),
		errors.Is(err, dashboard.ErrUnknownChannel),
		errors.Is(err, dashboard.ErrEmptySelection),
		errors.Is(err, dashboard.ErrInvalidPoints),
		errors.Is(err, dashboard.ErrInvalidCurrency):
		return http.StatusBadRequest
	case errors.Is(err, aggregate.ErrSuperseded):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
