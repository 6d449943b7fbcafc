package loan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryapi/internal/book"
	"libraryapi/internal/page"
	"libraryapi/internal/testutil"
)

func TestPostgresRepo(t *testing.T) {
	db := testutil.OpenTestDB(t)
	books := book.NewPostgresRepo(db, 3*time.Second)
	repo := NewPostgresRepo(db, 3*time.Second)
	service := NewService(repo, books, Config{GracePeriodDays: DefaultGracePeriodDays})
	ctx := context.Background()

	isbn := "pg-" + uuid.NewString()
	customer := "customer-" + uuid.NewString()
	b := book.Book{ISBN: isbn, Title: "Postgres Loans", Author: "Tester"}
	require.NoError(t, books.Insert(ctx, &b))

	t.Run("concurrent creates produce one loan", func(t *testing.T) {
		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := service.CreateLoan(ctx, isbn, customer, "")
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		var succeeded int
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, ErrAlreadyLoaned)
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("partial index backs the rule", func(t *testing.T) {
		l := Loan{Book: b, Customer: customer, LoanDate: Today(time.Now())}
		assert.ErrorIs(t, repo.Insert(ctx, &l), ErrAlreadyLoaned)
	})

	t.Run("search joins the book", func(t *testing.T) {
		p, err := repo.FindByBookIsbnOrCustomer(ctx, "", customer[:20], page.Of(0, 10))
		require.NoError(t, err)
		require.Equal(t, 1, p.TotalElements)
		assert.Equal(t, isbn, p.Content[0].Book.ISBN)
		assert.Equal(t, b.ID, p.Content[0].Book.ID)

		p, err = repo.FindByBookIsbnOrCustomer(ctx, isbn[:12], "", page.Of(0, 10))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p.TotalElements, 1)
	})

	t.Run("return, late query and history", func(t *testing.T) {
		p, err := repo.FindByBook(ctx, b.ID, page.Of(0, 10))
		require.NoError(t, err)
		require.Len(t, p.Content, 1)
		l := p.Content[0]

		l.LoanDate = Today(time.Now()).AddDate(0, 0, -30)
		require.NoError(t, repo.Update(ctx, &l))

		late, err := service.GetAllLateLoans(ctx)
		require.NoError(t, err)
		assert.True(t, containsLoan(late, l.ID))

		_, err = service.ReturnLoan(ctx, l.ID, true)
		require.NoError(t, err)

		late, err = service.GetAllLateLoans(ctx)
		require.NoError(t, err)
		assert.False(t, containsLoan(late, l.ID))

		active, err := repo.ExistsActiveLoan(ctx, b.ID)
		require.NoError(t, err)
		assert.False(t, active)
	})

	t.Run("unknown ids", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.FindByID(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, repo.Update(ctx, &Loan{ID: uuid.NewString()}), ErrNotFound)
	})

	t.Run("deleted book leaves history", func(t *testing.T) {
		require.NoError(t, books.Delete(ctx, b.ID))

		p, err := repo.FindByBookIsbnOrCustomer(ctx, "", customer, page.Of(0, 10))
		require.NoError(t, err)
		require.Equal(t, 1, p.TotalElements)
		assert.Empty(t, p.Content[0].Book.ID)
	})
}

func TestLoansJoined_SharedProjection(t *testing.T) {
	query, args, err := loansJoined().Select(loanColumns...).
		Where(goqu.L("NOT ?", goqu.I("l.returned")), goqu.I("l.loan_date").Lt(time.Date(2026, 10, 11, 0, 0, 0, 0, time.UTC))).
		Order(byLoanDate...).
		ToSQL()
	require.NoError(t, err)

	assert.Contains(t, query, `LEFT JOIN "books" AS "b" ON ("b"."id" = "l"."book_id")`)
	assert.Contains(t, query, `COALESCE("b"."isbn", $1)`)
	assert.Contains(t, query, `NOT "l"."returned"`)
	assert.Contains(t, query, `ORDER BY "l"."loan_date" ASC, "l"."id" ASC`)
	assert.Len(t, args, 4)
}

func containsLoan(loans []Loan, id string) bool {
	for _, l := range loans {
		if l.ID == id {
			return true
		}
	}
	return false
}

type slowDeletePostgresCatalog struct {
	*book.PostgresRepo
	beforeDelete func()
}

func (c *slowDeletePostgresCatalog) Delete(ctx context.Context, id string) error {
	c.beforeDelete()
	return c.PostgresRepo.Delete(ctx, id)
}

func TestPostgresRepo_DeleteBookHoldsTheLoanLock(t *testing.T) {
	db := testutil.OpenTestDB(t)
	books := book.NewPostgresRepo(db, 3*time.Second)
	repo := NewPostgresRepo(db, 3*time.Second)
	service := NewService(repo, books, Config{GracePeriodDays: DefaultGracePeriodDays})
	ctx := context.Background()

	b := book.Book{ISBN: "pg-" + uuid.NewString(), Title: "Contended", Author: "Tester"}
	require.NoError(t, books.Insert(ctx, &b))

	customer := "customer-" + uuid.NewString()
	created := make(chan error, 1)
	catalog := &slowDeletePostgresCatalog{PostgresRepo: books, beforeDelete: func() {
		go func() {
			_, err := service.CreateLoan(ctx, b.ISBN, customer, "")
			created <- err
		}()
		select {
		case err := <-created:
			t.Fatalf("loan request finished while the book was being removed: %v", err)
		case <-time.After(200 * time.Millisecond):
		}
	}}

	require.NoError(t, book.NewService(catalog, service).Delete(ctx, b))

	select {
	case err := <-created:
		assert.ErrorIs(t, err, ErrBookNotFound)
	case <-time.After(5 * time.Second):
		t.Fatal("loan request never finished")
	}

	var loans int
	require.NoError(t, db.QueryRow(ctx, `SELECT count(*) FROM loans WHERE customer = $1`, customer).Scan(&loans))
	assert.Zero(t, loans)
}
