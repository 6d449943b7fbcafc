// Package notify delivers late-loan notices to customers.
package notify

import (
	"context"
	"errors"
	"fmt"

	"libraryapi/internal/loan"
)

// ErrNoRecipient is returned for loans without a usable contact address.
var ErrNoRecipient = errors.New("loan has no contact address")

// Dispatcher sends one late notice per call.
type Dispatcher interface {
	NotifyLate(ctx context.Context, l loan.Loan) error
}

// DispatchError reports a notice that could not be delivered.
type DispatchError struct {
	LoanID    string
	Recipient string
	Err       error
}

func (e *DispatchError) Error() string {
	if e.Recipient == "" {
		return fmt.Sprintf("notify loan %s: %v", e.LoanID, e.Err)
	}
	return fmt.Sprintf("notify loan %s to %s: %v", e.LoanID, e.Recipient, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

const lateSubject = "Late book return"

func lateBody(l loan.Loan) string {
	title := l.Book.Title
	if title == "" {
		title = "the borrowed book"
	}
	return fmt.Sprintf(
		"Hello %s,\r\n\r\nYour loan of %s (ISBN %s), taken on %s, is overdue.\r\nPlease return the book as soon as possible.\r\n",
		l.Customer, title, l.Book.ISBN, l.LoanDate.Format("2006-01-02"),
	)
}
