package loan

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"libraryapi/internal/book"
	"libraryapi/internal/page"
)

// MemoryRepo is a process-local ledger. It enforces the one-active-loan
// rule on write, mirroring the partial unique index of the loans table.
// When a catalog is given, reads refresh the embedded book and drop the
// reference of deleted books, like the join of the Postgres ledger.
type MemoryRepo struct {
	mu    sync.RWMutex
	loans map[string]Loan
	books BookCatalog

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewMemoryRepo(books BookCatalog) *MemoryRepo {
	return &MemoryRepo{
		books: books,
		loans: make(map[string]Loan),
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *MemoryRepo) bookLock(bookID string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()
	m, ok := r.locks[bookID]
	if !ok {
		m = &sync.Mutex{}
		r.locks[bookID] = m
	}
	return m
}

func (r *MemoryRepo) WithinBookLock(ctx context.Context, bookID string, fn func(ctx context.Context, tx Repository) error) error {
	m := r.bookLock(bookID)
	m.Lock()
	defer m.Unlock()
	return fn(ctx, r)
}

func (r *MemoryRepo) ExistsActiveLoan(_ context.Context, bookID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLoanOf(bookID, "") != "", nil
}

// activeLoanOf returns the id of an unreturned loan for bookID other than
// exclude. Callers hold mu.
func (r *MemoryRepo) activeLoanOf(bookID, exclude string) string {
	for id, l := range r.loans {
		if id != exclude && l.Book.ID == bookID && l.Active() {
			return id
		}
	}
	return ""
}

func (r *MemoryRepo) Insert(_ context.Context, l *Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.Active() && r.activeLoanOf(l.Book.ID, "") != "" {
		return ErrAlreadyLoaned
	}
	l.ID = uuid.NewString()
	r.loans[l.ID] = *l
	return nil
}

func (r *MemoryRepo) FindByID(ctx context.Context, id string) (Loan, error) {
	r.mu.RLock()
	l, ok := r.loans[id]
	r.mu.RUnlock()
	if !ok {
		return Loan{}, ErrNotFound
	}
	return r.withBook(ctx, l), nil
}

func (r *MemoryRepo) withBook(ctx context.Context, l Loan) Loan {
	if r.books == nil || l.Book.ID == "" {
		return l
	}
	b, err := r.books.GetByID(ctx, l.Book.ID)
	switch {
	case err == nil:
		l.Book = b
	case errors.Is(err, book.ErrNotFound):
		l.Book = book.Book{}
	}
	return l
}

func (r *MemoryRepo) Update(_ context.Context, l *Loan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.loans[l.ID]
	if !ok {
		return ErrNotFound
	}
	if l.Active() && r.activeLoanOf(stored.Book.ID, l.ID) != "" {
		return ErrAlreadyLoaned
	}
	stored.Customer = l.Customer
	stored.CustomerEmail = l.CustomerEmail
	stored.LoanDate = l.LoanDate
	stored.Returned = l.Returned
	r.loans[l.ID] = stored
	return nil
}

func (r *MemoryRepo) FindByBookIsbnOrCustomer(ctx context.Context, isbn, customer string, req page.Request) (page.Page[Loan], error) {
	isbn = strings.ToLower(isbn)
	customer = strings.ToLower(customer)

	return page.Slice(r.collect(ctx, func(l Loan) bool {
		if isbn == "" && customer == "" {
			return true
		}
		return (isbn != "" && strings.Contains(strings.ToLower(l.Book.ISBN), isbn)) ||
			(customer != "" && strings.Contains(strings.ToLower(l.Customer), customer))
	}), req), nil
}

func (r *MemoryRepo) FindLate(ctx context.Context, threshold time.Time) ([]Loan, error) {
	return r.collect(ctx, func(l Loan) bool {
		return l.Active() && l.LoanDate.Before(threshold)
	}), nil
}

func (r *MemoryRepo) FindByBook(ctx context.Context, bookID string, req page.Request) (page.Page[Loan], error) {
	return page.Slice(r.collect(ctx, func(l Loan) bool {
		return l.Book.ID == bookID
	}), req), nil
}

// collect returns the matching loans ordered by loan date, then id.
func (r *MemoryRepo) collect(ctx context.Context, match func(Loan) bool) []Loan {
	r.mu.RLock()
	snapshot := make([]Loan, 0, len(r.loans))
	for _, l := range r.loans {
		snapshot = append(snapshot, l)
	}
	r.mu.RUnlock()

	out := make([]Loan, 0)
	for _, l := range snapshot {
		if l = r.withBook(ctx, l); match(l) {
			out = append(out, l)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LoanDate.Equal(out[j].LoanDate) {
			return out[i].LoanDate.Before(out[j].LoanDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
