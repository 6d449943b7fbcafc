package book

import (
	"context"

	"libraryapi/internal/page"
)

//go:generate mockgen -source=ports.go -destination=mock_repository.go -package=book

// Repository defines the contract for book data storage.
type Repository interface {
	ExistsByISBN(ctx context.Context, isbn string) (bool, error)
	GetByISBN(ctx context.Context, isbn string) (Book, error)
	GetByID(ctx context.Context, id string) (Book, error)
	Insert(ctx context.Context, b *Book) error
	Update(ctx context.Context, b *Book) error
	Delete(ctx context.Context, id string) error
	Find(ctx context.Context, f Filter, req page.Request) (page.Page[Book], error)
}

// LoanGuard serializes catalog changes with lending of the same book.
type LoanGuard interface {
	// HoldBook runs fn while no loan for bookID can be created. onLoan
	// reports whether the book was lent out when the hold was taken.
	HoldBook(ctx context.Context, bookID string, fn func(ctx context.Context, onLoan bool) error) error
}
