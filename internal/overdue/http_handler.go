package overdue

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"libraryapi/internal/httpx"
)

const defaultRunsLimit = 20

type HTTPHandler struct {
	scanner *Scanner
	runs    RunRepository
}

func NewHTTPHandler(scanner *Scanner, runs RunRepository) *HTTPHandler {
	return &HTTPHandler{scanner: scanner, runs: runs}
}

// Routes mounts the scan endpoints on r.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Post("/overdue-scans", h.Trigger)
	r.Get("/overdue-scans", h.List)
}

// Trigger handles POST /overdue-scans
func (h *HTTPHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	run, err := h.scanner.Run(r.Context())
	if err != nil {
		if errors.Is(err, ErrScanInProgress) {
			httpx.JSONError(w, r, http.StatusConflict, "SCAN_IN_PROGRESS", "An overdue scan is already running", nil)
			return
		}
		httpx.JSONError(w, r, http.StatusInternalServerError, "SCAN_FAILED", err.Error(), nil)
		return
	}
	httpx.JSONSuccess(w, r, run, nil)
}

// List handles GET /overdue-scans
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = defaultRunsLimit
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		httpx.JSONError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
		return
	}
	if runs == nil {
		runs = []ScanRun{}
	}
	httpx.JSONSuccess(w, r, runs, map[string]any{"limit": limit})
}
