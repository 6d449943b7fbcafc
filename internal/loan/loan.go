package loan

import (
	"errors"
	"net/mail"
	"time"

	"libraryapi/internal/book"
)

var (
	// ErrNotFound is returned when a loan is not found.
	ErrNotFound = errors.New("loan not found")
	// ErrBookNotFound is returned when the book to lend does not exist.
	ErrBookNotFound = errors.New("book not found for isbn")
	// ErrAlreadyLoaned is returned when the book already has an outstanding loan.
	ErrAlreadyLoaned = errors.New("book already loaned")
	// ErrInvalidArgument is returned for unpersisted or malformed loans.
	ErrInvalidArgument = errors.New("invalid loan")
)

// DefaultGracePeriodDays is how long a loan may stay out before it is late.
const DefaultGracePeriodDays = 4

// Loan records one book lent to one customer. Book is a copy of the
// catalog entry taken on read; only Book.ID is persisted with the loan.
type Loan struct {
	ID            string    `json:"id"`
	Book          book.Book `json:"book"`
	Customer      string    `json:"customer"`
	CustomerEmail string    `json:"email,omitempty"`
	LoanDate      time.Time `json:"loan_date"`
	Returned      bool      `json:"returned"`
}

// Active reports whether the book is still out.
func (l Loan) Active() bool {
	return !l.Returned
}

// ContactAddress is where a late notice goes: the stored email, or the
// customer key itself when it is a mail address. Empty when neither is.
func (l Loan) ContactAddress() string {
	if l.CustomerEmail != "" {
		return l.CustomerEmail
	}
	if addr, err := mail.ParseAddress(l.Customer); err == nil {
		return addr.Address
	}
	return ""
}

// Filter selects loans whose book ISBN or customer contains the given text,
// ignoring case. Empty fields do not take part in the match.
type Filter struct {
	ISBN     string
	Customer string
}

// Today truncates now to its local calendar date, expressed as UTC
// midnight so it compares equal to dates read back from storage.
func Today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
