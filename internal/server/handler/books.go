package handler

import (
	"net/http"

	"github.com/alanyoungcy/basketbot/internal/domain"
)

// BookSource exposes the per-tick market view.
type BookSource interface {
	Snapshot() map[string]domain.OrderbookSnapshot
	Book(instrument string) (domain.OrderbookSnapshot, bool)
}

// BookHandler serves the books seen on the last tick.
type BookHandler struct {
	books BookSource
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(books BookSource) *BookHandler {
	return &BookHandler{books: books}
}

// ListBooks returns every book from the last refresh.
// GET /api/books
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.books.Snapshot())
}

// GetBook returns one instrument's book.
// GET /api/books/{instrument}
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("instrument")
	book, ok := h.books.Book(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no book for "+id)
		return
	}
	writeJSON(w, http.StatusOK, book)
}
