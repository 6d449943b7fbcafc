package book

import (
	"context"
	"fmt"
	"strings"

	"libraryapi/internal/page"
)

// Service provides book-related business logic.
type Service struct {
	repo  Repository
	loans LoanGuard
}

// NewService creates a new book service.
func NewService(repo Repository, loans LoanGuard) *Service {
	return &Service{repo: repo, loans: loans}
}

// Save registers a new book, rejecting ISBNs that are already in the catalog.
func (s *Service) Save(ctx context.Context, b Book) (Book, error) {
	b.ISBN = strings.TrimSpace(b.ISBN)
	if b.ISBN == "" {
		return Book{}, fmt.Errorf("%w: isbn is required", ErrInvalidArgument)
	}

	exists, err := s.repo.ExistsByISBN(ctx, b.ISBN)
	if err != nil {
		return Book{}, err
	}
	if exists {
		return Book{}, ErrDuplicateISBN
	}

	if err := s.repo.Insert(ctx, &b); err != nil {
		return Book{}, err
	}
	return b, nil
}

// GetByID returns a book by its identifier.
func (s *Service) GetByID(ctx context.Context, id string) (Book, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByISBN returns a book by its ISBN.
func (s *Service) GetByISBN(ctx context.Context, isbn string) (Book, error) {
	return s.repo.GetByISBN(ctx, isbn)
}

// Update stores new title and author values for a persisted book.
func (s *Service) Update(ctx context.Context, b Book) (Book, error) {
	if b.ID == "" {
		return Book{}, fmt.Errorf("%w: book id is required", ErrInvalidArgument)
	}
	if err := s.repo.Update(ctx, &b); err != nil {
		return Book{}, err
	}
	return b, nil
}

// Delete removes a persisted book. Books with an active loan are kept;
// returned loans keep their history without the book reference. The check
// and the removal happen under the book's loan hold, so no loan can be
// created in between.
func (s *Service) Delete(ctx context.Context, b Book) error {
	if b.ID == "" {
		return fmt.Errorf("%w: book id is required", ErrInvalidArgument)
	}

	return s.loans.HoldBook(ctx, b.ID, func(ctx context.Context, onLoan bool) error {
		if onLoan {
			return ErrHasActiveLoan
		}
		return s.repo.Delete(ctx, b.ID)
	})
}

// Find returns a page of books matching the filter template.
func (s *Service) Find(ctx context.Context, f Filter, req page.Request) (page.Page[Book], error) {
	return s.repo.Find(ctx, f, req)
}
