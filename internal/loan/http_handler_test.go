package loan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryapi/internal/book"
	"libraryapi/internal/testutil"
)

func newTestRouter(t *testing.T) (http.Handler, *Service, *book.MemoryRepo) {
	service, _, books := newMemoryService(t)
	r := chi.NewRouter()
	NewHTTPHandler(service).Routes(r)
	return r, service, books
}

func TestHTTPHandler_Create(t *testing.T) {
	router, _, books := newTestRouter(t)
	addBook(t, books, "123")

	t.Run("created", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, testutil.NewRequest(http.MethodPost, "/loans", map[string]string{
			"isbn": "123", "customer": "Fulano", "email": "customer@email.com",
		}))

		res := testutil.RecordHTTPResponse(w)
		assert.Equal(t, http.StatusCreated, res.Code)
		assert.NotEmpty(t, res.Data()["id"])
	})

	t.Run("already loaned", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, testutil.NewRequest(http.MethodPost, "/loans", map[string]string{
			"isbn": "123", "customer": "Ciclano",
		}))

		res := testutil.RecordHTTPResponse(w)
		assert.Equal(t, http.StatusConflict, res.Code)
		assert.Equal(t, "ALREADY_LOANED", res.ErrorCode())
	})

	t.Run("unknown isbn", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, testutil.NewRequest(http.MethodPost, "/loans", map[string]string{
			"isbn": "999", "customer": "Fulano",
		}))

		res := testutil.RecordHTTPResponse(w)
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Equal(t, "BOOK_NOT_FOUND", res.ErrorCode())
	})

	t.Run("invalid body", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, testutil.NewRequest(http.MethodPost, "/loans", map[string]string{
			"isbn": "123", "email": "not-an-email",
		}))

		res := testutil.RecordHTTPResponse(w)
		assert.Equal(t, http.StatusBadRequest, res.Code)
		assert.Equal(t, "VALIDATION_ERROR", res.ErrorCode())
	})
}

func TestHTTPHandler_Return(t *testing.T) {
	router, service, books := newTestRouter(t)
	addBook(t, books, "123")
	l, err := service.CreateLoan(context.Background(), "123", "Fulano", "")
	require.NoError(t, err)

	t.Run("returned", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, testutil.NewRequest(http.MethodPatch, "/loans/"+l.ID, map[string]bool{"returned": true}))

		assert.Equal(t, http.StatusNoContent, w.Code)
		got, err := service.GetByID(context.Background(), l.ID)
		require.NoError(t, err)
		assert.True(t, got.Returned)
	})

	t.Run("unknown loan", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, testutil.NewRequest(http.MethodPatch, "/loans/missing", map[string]bool{"returned": true}))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing flag", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, testutil.NewRequest(http.MethodPatch, "/loans/"+l.ID, map[string]string{}))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHTTPHandler_Find(t *testing.T) {
	router, service, books := newTestRouter(t)
	addBook(t, books, "123")
	_, err := service.CreateLoan(context.Background(), "123", "Fulano", "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, testutil.NewRequest(http.MethodGet, "/loans?isbn=123&customer=Fulano&page=0&size=10", nil))

	res := testutil.RecordHTTPResponse(w)
	require.Equal(t, http.StatusOK, res.Code)
	data, ok := res.Body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	loan := data[0].(map[string]any)
	assert.Equal(t, "123", loan["book"].(map[string]any)["isbn"])

	meta := res.Body["meta"].(map[string]any)
	assert.EqualValues(t, 1, meta["total"])
	assert.EqualValues(t, 10, meta["page_size"])
	assert.EqualValues(t, 0, meta["page"])
}

func TestHTTPHandler_Late(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, testutil.NewRequest(http.MethodGet, "/loans/late", nil))

	res := testutil.RecordHTTPResponse(w)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, []any{}, res.Body["data"])
	assert.Equal(t, "2026-10-11", res.Body["meta"].(map[string]any)["threshold"])
}

func TestHTTPHandler_ByBook(t *testing.T) {
	router, service, books := newTestRouter(t)
	b := addBook(t, books, "123")
	_, err := service.CreateLoan(context.Background(), "123", "Fulano", "")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, testutil.NewRequest(http.MethodGet, "/books/"+b.ID+"/loans", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, testutil.NewRequest(http.MethodGet, "/books/missing/loans", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
