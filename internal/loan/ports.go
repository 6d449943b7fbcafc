package loan

import (
	"context"
	"time"

	"libraryapi/internal/book"
	"libraryapi/internal/page"
)

//go:generate mockgen -source=ports.go -destination=mock_repository.go -package=loan

// Repository defines the contract for loan data storage.
type Repository interface {
	ExistsActiveLoan(ctx context.Context, bookID string) (bool, error)
	Insert(ctx context.Context, l *Loan) error
	FindByID(ctx context.Context, id string) (Loan, error)
	Update(ctx context.Context, l *Loan) error
	FindByBookIsbnOrCustomer(ctx context.Context, isbn, customer string, req page.Request) (page.Page[Loan], error)
	// FindLate returns unreturned loans dated strictly before threshold,
	// oldest first.
	FindLate(ctx context.Context, threshold time.Time) ([]Loan, error)
	FindByBook(ctx context.Context, bookID string, req page.Request) (page.Page[Loan], error)
	// WithinBookLock runs fn while holding the book's exclusive lock.
	// Calls made through tx share the lock scope; the lock is released
	// when fn returns.
	WithinBookLock(ctx context.Context, bookID string, fn func(ctx context.Context, tx Repository) error) error
}

// BookCatalog resolves the books loans refer to.
type BookCatalog interface {
	GetByISBN(ctx context.Context, isbn string) (book.Book, error)
	GetByID(ctx context.Context, id string) (book.Book, error)
}
