package loan

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"libraryapi/internal/httpx"
	"libraryapi/internal/page"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// Routes mounts the loan endpoints on r.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Post("/loans", h.Create)
	r.Get("/loans", h.Find)
	r.Get("/loans/late", h.Late)
	r.Get("/loans/{id}", h.Get)
	r.Patch("/loans/{id}", h.Return)
	r.Get("/books/{id}/loans", h.ByBook)
}

type createRequest struct {
	ISBN     string `json:"isbn" validate:"notblank"`
	Customer string `json:"customer" validate:"notblank,max=255"`
	Email    string `json:"email" validate:"omitempty,email"`
}

type createResponse struct {
	ID string `json:"id"`
}

type returnRequest struct {
	Returned *bool `json:"returned" validate:"required"`
}

// Create handles POST /loans
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if details, err := httpx.DecodeJSON(r, &req); err != nil || len(details) > 0 {
		httpx.WriteDecodeError(w, r, details, err)
		return
	}

	l, err := h.service.CreateLoan(r.Context(), req.ISBN, req.Customer, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, createResponse{ID: l.ID})
}

// Return handles PATCH /loans/{id}
func (h *HTTPHandler) Return(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if details, err := httpx.DecodeJSON(r, &req); err != nil || len(details) > 0 {
		httpx.WriteDecodeError(w, r, details, err)
		return
	}

	if _, err := h.service.ReturnLoan(r.Context(), chi.URLParam(r, "id"), *req.Returned); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONNoContent(w)
}

// Get handles GET /loans/{id}
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, l, nil)
}

// Find handles GET /loans
func (h *HTTPHandler) Find(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := Filter{ISBN: query.Get("isbn"), Customer: query.Get("customer")}

	result, err := h.service.Find(r.Context(), filter, page.FromQuery(query))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, result.Content, result.Meta())
}

// Late handles GET /loans/late
func (h *HTTPHandler) Late(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.GetAllLateLoans(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if loans == nil {
		loans = []Loan{}
	}
	httpx.JSONSuccess(w, r, loans, map[string]any{
		"total":     len(loans),
		"threshold": h.service.LateThreshold().Format("2006-01-02"),
	})
}

// ByBook handles GET /books/{id}/loans
func (h *HTTPHandler) ByBook(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetLoansByBookID(r.Context(), chi.URLParam(r, "id"), page.FromQuery(r.URL.Query()))
	if err != nil {
		if errors.Is(err, ErrBookNotFound) {
			httpx.JSONError(w, r, http.StatusNotFound, "NOT_FOUND", "Book not found", nil)
			return
		}
		writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, result.Content, result.Meta())
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.JSONError(w, r, http.StatusNotFound, "NOT_FOUND", "Loan not found", nil)
	case errors.Is(err, ErrBookNotFound):
		httpx.JSONError(w, r, http.StatusBadRequest, "BOOK_NOT_FOUND", "Book not found for passed isbn", nil)
	case errors.Is(err, ErrAlreadyLoaned):
		httpx.JSONError(w, r, http.StatusConflict, "ALREADY_LOANED", "Book already loaned", nil)
	case errors.Is(err, ErrInvalidArgument):
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		httpx.JSONError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
	}
}
