package book

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a book is not found.
	ErrNotFound = errors.New("book not found")
	// ErrDuplicateISBN is returned when another book already uses the ISBN.
	ErrDuplicateISBN = errors.New("isbn already registered")
	// ErrInvalidArgument is returned for unpersisted or malformed books.
	ErrInvalidArgument = errors.New("invalid book")
	// ErrHasActiveLoan is returned when deleting a book that is currently lent out.
	ErrHasActiveLoan = errors.New("book has an active loan")
)

// Book represents a catalog entry. ISBN is immutable once stored.
type Book struct {
	ID        string    `json:"id"`
	ISBN      string    `json:"isbn"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Filter is a match-by-example template: set fields must match exactly,
// empty fields match anything.
type Filter struct {
	ISBN   string
	Title  string
	Author string
}

func (f Filter) Matches(b Book) bool {
	if f.ISBN != "" && f.ISBN != b.ISBN {
		return false
	}
	if f.Title != "" && f.Title != b.Title {
		return false
	}
	if f.Author != "" && f.Author != b.Author {
		return false
	}
	return true
}
