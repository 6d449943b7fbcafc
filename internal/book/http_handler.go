package book

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

// Routes mounts the book endpoints on r.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Post("/books", h.Create)
	r.Get("/books", h.List)
	r.Get("/books/{id}", h.Get)
	r.Put("/books/{id}", h.Update)
	r.Delete("/books/{id}", h.Delete)
}

type createRequest struct {
	ISBN   string `json:"isbn" validate:"notblank,max=32"`
	Title  string `json:"title" validate:"notblank,max=255"`
	Author string `json:"author" validate:"notblank,max=255"`
}

type updateRequest struct {
	Title  string `json:"title" validate:"notblank,max=255"`
	Author string `json:"author" validate:"notblank,max=255"`
}

// Create handles POST /books
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if details, err := httpx.DecodeJSON(r, &req); err != nil || len(details) > 0 {
		httpx.WriteDecodeError(w, r, details, err)
		return
	}

	b, err := h.service.Save(r.Context(), Book{ISBN: req.ISBN, Title: req.Title, Author: req.Author})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, b)
}

// List handles GET /books
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := Filter{
		ISBN:   query.Get("isbn"),
		Title:  query.Get("title"),
		Author: query.Get("author"),
	}

	result, err := h.service.Find(r.Context(), filter, page.FromQuery(query))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, result.Content, result.Meta())
}

// Get handles GET /books/{id}
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, b, nil)
}

// Update handles PUT /books/{id}
func (h *HTTPHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if details, err := httpx.DecodeJSON(r, &req); err != nil || len(details) > 0 {
		httpx.WriteDecodeError(w, r, details, err)
		return
	}

	b, err := h.service.Update(r.Context(), Book{
		ID:     chi.URLParam(r, "id"),
		Title:  req.Title,
		Author: req.Author,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, b, nil)
}

// Delete handles DELETE /books/{id}
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), Book{ID: chi.URLParam(r, "id")}); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSONNoContent(w)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.JSONError(w, r, http.StatusNotFound, "NOT_FOUND", "Book not found", nil)
	case errors.Is(err, ErrDuplicateISBN):
		httpx.JSONError(w, r, http.StatusConflict, "DUPLICATE_ISBN", "A book with this ISBN already exists", nil)
	case errors.Is(err, ErrHasActiveLoan):
		httpx.JSONError(w, r, http.StatusConflict, "BOOK_ON_LOAN", "Book is currently on loan", nil)
	case errors.Is(err, ErrInvalidArgument):
		httpx.JSONError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		httpx.JSONError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
	}
}
