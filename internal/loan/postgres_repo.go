package loan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"libraryapi/internal/page"
	"libraryapi/internal/platform/pg"
)

const activeLoanConstraint = "loans_one_active_per_book"

var (
	dialect     = goqu.Dialect("postgres")
	loanColumns = []any{
		goqu.I("l.id"),
		goqu.I("l.book_id"),
		goqu.COALESCE(goqu.I("b.isbn"), ""),
		goqu.COALESCE(goqu.I("b.title"), ""),
		goqu.COALESCE(goqu.I("b.author"), ""),
		goqu.I("l.customer"),
		goqu.I("l.customer_email"),
		goqu.I("l.loan_date"),
		goqu.I("l.returned"),
	}
	likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
)

// loansJoined is loans with their book, which may have been deleted.
func loansJoined() *goqu.SelectDataset {
	return dialect.From(goqu.T("loans").As("l")).
		LeftJoin(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id")))).
		Prepared(true)
}

// byLoanDate is the listing order of every loan query.
var byLoanDate = []exp.OrderedExpression{goqu.I("l.loan_date").Asc(), goqu.I("l.id").Asc()}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepo stores loans in Postgres. A repo handed to a
// WithinBookLock callback is bound to that transaction.
type PostgresRepo struct {
	db      pg.Querier
	begin   txBeginner
	timeout time.Duration
}

// NewPostgresRepo accepts a *pgxpool.Pool or anything else that can both
// query and begin transactions.
func NewPostgresRepo(db interface {
	pg.Querier
	txBeginner
}, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, begin: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *PostgresRepo) WithinBookLock(ctx context.Context, bookID string, fn func(ctx context.Context, tx Repository) error) error {
	if r.begin == nil {
		return fn(ctx, r)
	}

	tx, err := r.begin.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin loan tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, bookID); err != nil {
		return fmt.Errorf("lock book %s: %w", bookID, err)
	}
	if err := fn(ctx, &PostgresRepo{db: tx, timeout: r.timeout}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if pg.IsUniqueViolation(err, activeLoanConstraint) {
			return ErrAlreadyLoaned
		}
		return fmt.Errorf("commit loan tx: %w", err)
	}
	return nil
}

func (r *PostgresRepo) ExistsActiveLoan(ctx context.Context, bookID string) (bool, error) {
	if _, err := uuid.Parse(bookID); err != nil {
		return false, nil
	}
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var exists bool
	err := r.db.QueryRow(timeoutCtx,
		`SELECT EXISTS (SELECT 1 FROM loans WHERE book_id = $1 AND NOT returned)`, bookID,
	).Scan(&exists)
	return exists, err
}

func (r *PostgresRepo) Insert(ctx context.Context, l *Loan) error {
	const query = `
		INSERT INTO loans (book_id, customer, customer_email, loan_date, returned)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query,
		l.Book.ID, l.Customer, l.CustomerEmail, l.LoanDate, l.Returned,
	).Scan(&l.ID)
	if err != nil {
		switch {
		case pg.IsUniqueViolation(err, activeLoanConstraint):
			return ErrAlreadyLoaned
		case pg.IsForeignKeyViolation(err):
			return ErrBookNotFound
		}
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (r *PostgresRepo) FindByID(ctx context.Context, id string) (Loan, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Loan{}, ErrNotFound
	}
	query, args, err := loansJoined().Select(loanColumns...).
		Where(goqu.I("l.id").Eq(id)).
		ToSQL()
	if err != nil {
		return Loan{}, fmt.Errorf("build loan query: %w", err)
	}
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanLoan(r.db.QueryRow(timeoutCtx, query, args...))
}

// Update rewrites the mutable loan fields. The book reference is fixed.
func (r *PostgresRepo) Update(ctx context.Context, l *Loan) error {
	if _, err := uuid.Parse(l.ID); err != nil {
		return ErrNotFound
	}
	const query = `
		UPDATE loans
		SET customer = $2, customer_email = $3, loan_date = $4, returned = $5, updated_at = now()
		WHERE id = $1
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	result, err := r.db.Exec(timeoutCtx, query, l.ID, l.Customer, l.CustomerEmail, l.LoanDate, l.Returned)
	if err != nil {
		if pg.IsUniqueViolation(err, activeLoanConstraint) {
			return ErrAlreadyLoaned
		}
		return fmt.Errorf("update loan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) FindByBookIsbnOrCustomer(ctx context.Context, isbn, customer string, req page.Request) (page.Page[Loan], error) {
	ds := loansJoined()

	var or []exp.Expression
	if isbn != "" {
		or = append(or, goqu.I("b.isbn").ILike(containsPattern(isbn)))
	}
	if customer != "" {
		or = append(or, goqu.I("l.customer").ILike(containsPattern(customer)))
	}
	if len(or) > 0 {
		ds = ds.Where(goqu.Or(or...))
	}

	countSQL, countArgs, err := ds.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return page.Page[Loan]{}, fmt.Errorf("build loan count query: %w", err)
	}
	dataSQL, dataArgs, err := ds.Select(loanColumns...).
		Order(byLoanDate...).
		Limit(uint(req.Limit())).
		Offset(uint(req.Offset())).
		ToSQL()
	if err != nil {
		return page.Page[Loan]{}, fmt.Errorf("build loan query: %w", err)
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	var total int
	if err := r.db.QueryRow(timeoutCtx, countSQL, countArgs...).Scan(&total); err != nil {
		return page.Page[Loan]{}, err
	}
	loans, err := r.queryLoans(timeoutCtx, dataSQL, dataArgs...)
	if err != nil {
		return page.Page[Loan]{}, err
	}
	return page.New(loans, req, total), nil
}

func (r *PostgresRepo) FindLate(ctx context.Context, threshold time.Time) ([]Loan, error) {
	query, args, err := loansJoined().Select(loanColumns...).
		Where(goqu.L("NOT ?", goqu.I("l.returned")), goqu.I("l.loan_date").Lt(threshold)).
		Order(byLoanDate...).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build late loan query: %w", err)
	}
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.queryLoans(timeoutCtx, query, args...)
}

func (r *PostgresRepo) FindByBook(ctx context.Context, bookID string, req page.Request) (page.Page[Loan], error) {
	if _, err := uuid.Parse(bookID); err != nil {
		return page.New[Loan](nil, req, 0), nil
	}
	ds := loansJoined().Where(goqu.I("l.book_id").Eq(bookID))
	countSQL, countArgs, err := ds.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return page.Page[Loan]{}, fmt.Errorf("build loan count query: %w", err)
	}
	dataSQL, dataArgs, err := ds.Select(loanColumns...).
		Order(byLoanDate...).
		Limit(uint(req.Limit())).
		Offset(uint(req.Offset())).
		ToSQL()
	if err != nil {
		return page.Page[Loan]{}, fmt.Errorf("build loan query: %w", err)
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	var total int
	if err := r.db.QueryRow(timeoutCtx, countSQL, countArgs...).Scan(&total); err != nil {
		return page.Page[Loan]{}, err
	}
	loans, err := r.queryLoans(timeoutCtx, dataSQL, dataArgs...)
	if err != nil {
		return page.Page[Loan]{}, err
	}
	return page.New(loans, req, total), nil
}

func (r *PostgresRepo) queryLoans(ctx context.Context, query string, args ...any) ([]Loan, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLoan(row pgx.Row) (Loan, error) {
	var (
		l      Loan
		bookID *string
	)
	err := row.Scan(&l.ID, &bookID, &l.Book.ISBN, &l.Book.Title, &l.Book.Author,
		&l.Customer, &l.CustomerEmail, &l.LoanDate, &l.Returned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Loan{}, ErrNotFound
		}
		return Loan{}, err
	}
	if bookID != nil {
		l.Book.ID = *bookID
	}
	return l, nil
}

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}
