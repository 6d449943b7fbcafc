package loan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"libraryapi/internal/book"
	"libraryapi/internal/page"
)

// Config tunes the lending rules. The zero value has no grace period and
// reads the wall clock.
type Config struct {
	GracePeriodDays int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Service provides loan-related business logic.
type Service struct {
	repo  Repository
	books BookCatalog
	grace int
	now   func() time.Time
}

// NewService creates a new loan service.
func NewService(repo Repository, books BookCatalog, cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, books: books, grace: cfg.GracePeriodDays, now: now}
}

// CreateLoan lends the book with the given ISBN. The active-loan check and
// the insert run under the book's lock, so concurrent requests for one book
// produce exactly one loan.
func (s *Service) CreateLoan(ctx context.Context, isbn, customer, email string) (Loan, error) {
	customer = strings.TrimSpace(customer)
	if customer == "" {
		return Loan{}, fmt.Errorf("%w: customer is required", ErrInvalidArgument)
	}

	b, err := s.books.GetByISBN(ctx, strings.TrimSpace(isbn))
	if err != nil {
		if errors.Is(err, book.ErrNotFound) {
			return Loan{}, ErrBookNotFound
		}
		return Loan{}, err
	}

	var created Loan
	err = s.repo.WithinBookLock(ctx, b.ID, func(ctx context.Context, tx Repository) error {
		active, err := tx.ExistsActiveLoan(ctx, b.ID)
		if err != nil {
			return err
		}
		if active {
			return ErrAlreadyLoaned
		}
		// The book may have been deleted while we waited for the lock.
		if _, err := s.books.GetByID(ctx, b.ID); err != nil {
			if errors.Is(err, book.ErrNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		l := Loan{
			Book:          b,
			Customer:      customer,
			CustomerEmail: strings.TrimSpace(email),
			LoanDate:      s.Today(),
		}
		if err := tx.Insert(ctx, &l); err != nil {
			return err
		}
		created = l
		return nil
	})
	if err != nil {
		return Loan{}, err
	}
	return created, nil
}

// ReturnLoan sets the returned flag. Repeating a call is harmless; clearing
// the flag is accepted as long as the book is not lent out again meanwhile.
func (s *Service) ReturnLoan(ctx context.Context, id string, returned bool) (Loan, error) {
	l, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Loan{}, err
	}
	l.Returned = returned
	if err := s.repo.Update(ctx, &l); err != nil {
		return Loan{}, err
	}
	return l, nil
}

// GetByID returns a loan by its identifier.
func (s *Service) GetByID(ctx context.Context, id string) (Loan, error) {
	return s.repo.FindByID(ctx, id)
}

// Update persists a loan that already has an identity.
func (s *Service) Update(ctx context.Context, l Loan) (Loan, error) {
	if l.ID == "" {
		return Loan{}, fmt.Errorf("%w: loan id is required", ErrInvalidArgument)
	}
	if err := s.repo.Update(ctx, &l); err != nil {
		return Loan{}, err
	}
	return l, nil
}

// Find returns loans whose book ISBN or customer contains the filter text.
func (s *Service) Find(ctx context.Context, f Filter, req page.Request) (page.Page[Loan], error) {
	return s.repo.FindByBookIsbnOrCustomer(ctx, f.ISBN, f.Customer, req)
}

// GetLoansByBook returns the loan history of a book.
func (s *Service) GetLoansByBook(ctx context.Context, b book.Book, req page.Request) (page.Page[Loan], error) {
	return s.repo.FindByBook(ctx, b.ID, req)
}

// GetLoansByBookID resolves the book first, failing with ErrBookNotFound.
func (s *Service) GetLoansByBookID(ctx context.Context, bookID string, req page.Request) (page.Page[Loan], error) {
	b, err := s.books.GetByID(ctx, bookID)
	if err != nil {
		if errors.Is(err, book.ErrNotFound) {
			return page.Page[Loan]{}, ErrBookNotFound
		}
		return page.Page[Loan]{}, err
	}
	return s.GetLoansByBook(ctx, b, req)
}

// GetAllLateLoans returns unreturned loans older than the grace period.
func (s *Service) GetAllLateLoans(ctx context.Context) ([]Loan, error) {
	return s.repo.FindLate(ctx, s.LateThreshold())
}

// LateThreshold is the first loan date that is not yet late.
func (s *Service) LateThreshold() time.Time {
	return s.Today().AddDate(0, 0, -s.grace)
}

// Today is the current calendar date according to the service clock.
func (s *Service) Today() time.Time {
	return Today(s.now())
}

// HoldBook runs fn under the same per-book lock CreateLoan takes, so the
// catalog can remove a book without a loan slipping in.
func (s *Service) HoldBook(ctx context.Context, bookID string, fn func(ctx context.Context, onLoan bool) error) error {
	return s.repo.WithinBookLock(ctx, bookID, func(ctx context.Context, tx Repository) error {
		onLoan, err := tx.ExistsActiveLoan(ctx, bookID)
		if err != nil {
			return err
		}
		return fn(ctx, onLoan)
	})
}
