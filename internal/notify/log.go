package notify

import (
	"context"

	"github.com/rs/zerolog"

	"libraryapi/internal/loan"
)

// LogDispatcher writes notices to the log instead of sending them.
type LogDispatcher struct {
	logger zerolog.Logger
}

func NewLogDispatcher(logger zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With().Str("component", "log_dispatcher").Logger()}
}

func (d *LogDispatcher) NotifyLate(_ context.Context, l loan.Loan) error {
	d.logger.Info().
		Str("loan_id", l.ID).
		Str("customer", l.Customer).
		Str("to", l.ContactAddress()).
		Str("isbn", l.Book.ISBN).
		Time("loan_date", l.LoanDate).
		Msg("late notice")
	return nil
}
