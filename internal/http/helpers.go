package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dinners/internal/core"
	"dinners/internal/editor"
	"dinners/internal/log"
)

var (
	errRateLimited = errors.New("rate limit exceeded, please try again later")
	errBadRequest  = errors.New("bad request")
)

// parseYearMonth reads year and month from the query, falling back to def
// for whichever is missing.
func parseYearMonth(r *http.Request, def core.YearMonth) (core.YearMonth, error) {
	ym := def
	if v := strings.TrimSpace(r.FormValue("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return core.YearMonth{}, fmt.Errorf("%w: year %q", core.ErrInvalidDate, v)
		}
		ym.Year = y
	}
	if v := strings.TrimSpace(r.FormValue("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return core.YearMonth{}, fmt.Errorf("%w: month %q", core.ErrInvalidDate, v)
		}
		ym.Month = time.Month(m)
	}
	return ym, ym.Validate()
}

// requiredField returns the trimmed form value or an error naming it.
func requiredField(r *http.Request, name string) (string, error) {
	v := sanitizeInput(r.FormValue(name))
	if v == "" {
		return "", fmt.Errorf("%w: missing %s", errBadRequest, name)
	}
	return v, nil
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInvalidPrice),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, editor.ErrUnknownPerson),
		errors.Is(err, editor.ErrUnknownPreset):
		return http.StatusUnprocessableEntity
	case errors.Is(err, editor.ErrNotEditing),
		errors.Is(err, editor.ErrConfirmationRequired):
		return http.StatusConflict
	case errors.Is(err, core.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// wantsHTML reports whether the request came from the page rather than an
// API client.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to encode response", log.FieldError, err)
	}
}

// fail reports err to the client: a JSON error body for API clients, a
// redirect back to the page with the message for the page.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", log.FieldError, err, log.FieldStatusCode, status)
	} else {
		logger.DebugContext(r.Context(), "Request rejected", log.FieldError, err, log.FieldStatusCode, status)
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	if wantsHTML(r) && status != http.StatusTooManyRequests {
		// Only form posts go back to the page; a failing GET / would loop.
		if r.Method == http.MethodPost {
			http.Redirect(w, r, "/?error="+url.QueryEscape(msg), http.StatusSeeOther)
			return
		}
		http.Error(w, msg, status)
		return
	}
	writeJSON(w, r, status, map[string]string{"error": msg})
}

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
