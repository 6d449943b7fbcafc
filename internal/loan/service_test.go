package loan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryapi/internal/book"
	"libraryapi/internal/page"
)

var fixedNow = time.Date(2026, time.October, 15, 10, 30, 0, 0, time.Local)

func newMockService(t *testing.T) (*Service, *MockRepository, *MockBookCatalog) {
	ctrl := gomock.NewController(t)
	mockRepo := NewMockRepository(ctrl)
	mockBooks := NewMockBookCatalog(ctrl)
	service := NewService(mockRepo, mockBooks, Config{
		GracePeriodDays: DefaultGracePeriodDays,
		Now:             func() time.Time { return fixedNow },
	})
	return service, mockRepo, mockBooks
}

// runLocked makes the mocked WithinBookLock invoke its callback with repo.
func runLocked(repo *MockRepository) func(context.Context, string, func(context.Context, Repository) error) error {
	return func(ctx context.Context, _ string, fn func(context.Context, Repository) error) error {
		return fn(ctx, repo)
	}
}

func TestService_CreateLoan(t *testing.T) {
	ctx := context.Background()
	b := book.Book{ID: "book-1", ISBN: "123", Title: "Dune"}

	t.Run("creates an active loan dated today", func(t *testing.T) {
		service, mockRepo, mockBooks := newMockService(t)
		mockBooks.EXPECT().GetByISBN(ctx, "123").Return(b, nil)
		mockRepo.EXPECT().WithinBookLock(ctx, "book-1", gomock.Any()).DoAndReturn(runLocked(mockRepo))
		mockRepo.EXPECT().ExistsActiveLoan(ctx, "book-1").Return(false, nil)
		mockBooks.EXPECT().GetByID(ctx, "book-1").Return(b, nil)
		mockRepo.EXPECT().Insert(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, l *Loan) error {
			l.ID = "loan-1"
			return nil
		})

		l, err := service.CreateLoan(ctx, "123", "Fulano", "fulano@example.com")
		require.NoError(t, err)
		assert.Equal(t, "loan-1", l.ID)
		assert.Equal(t, b, l.Book)
		assert.Equal(t, "Fulano", l.Customer)
		assert.Equal(t, "fulano@example.com", l.CustomerEmail)
		assert.False(t, l.Returned)
		assert.Equal(t, time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC), l.LoanDate)
	})

	t.Run("unknown isbn writes nothing", func(t *testing.T) {
		service, _, mockBooks := newMockService(t)
		mockBooks.EXPECT().GetByISBN(ctx, "999").Return(book.Book{}, book.ErrNotFound)

		_, err := service.CreateLoan(ctx, "999", "Fulano", "")
		assert.ErrorIs(t, err, ErrBookNotFound)
	})

	t.Run("book already on loan", func(t *testing.T) {
		service, mockRepo, mockBooks := newMockService(t)
		mockBooks.EXPECT().GetByISBN(ctx, "123").Return(b, nil)
		mockRepo.EXPECT().WithinBookLock(ctx, "book-1", gomock.Any()).DoAndReturn(runLocked(mockRepo))
		mockRepo.EXPECT().ExistsActiveLoan(ctx, "book-1").Return(true, nil)

		_, err := service.CreateLoan(ctx, "123", "Fulano", "")
		assert.ErrorIs(t, err, ErrAlreadyLoaned)
	})

	t.Run("book removed while waiting for the lock", func(t *testing.T) {
		service, mockRepo, mockBooks := newMockService(t)
		mockBooks.EXPECT().GetByISBN(ctx, "123").Return(b, nil)
		mockRepo.EXPECT().WithinBookLock(ctx, "book-1", gomock.Any()).DoAndReturn(runLocked(mockRepo))
		mockRepo.EXPECT().ExistsActiveLoan(ctx, "book-1").Return(false, nil)
		mockBooks.EXPECT().GetByID(ctx, "book-1").Return(book.Book{}, book.ErrNotFound)

		_, err := service.CreateLoan(ctx, "123", "Fulano", "")
		assert.ErrorIs(t, err, ErrBookNotFound)
	})

	t.Run("blank customer", func(t *testing.T) {
		service, _, _ := newMockService(t)

		_, err := service.CreateLoan(ctx, "123", "  ", "")
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestService_ReturnLoan(t *testing.T) {
	ctx := context.Background()

	t.Run("marks returned", func(t *testing.T) {
		service, mockRepo, _ := newMockService(t)
		stored := Loan{ID: "loan-1", Customer: "Fulano"}
		mockRepo.EXPECT().FindByID(ctx, "loan-1").Return(stored, nil)
		mockRepo.EXPECT().Update(ctx, &Loan{ID: "loan-1", Customer: "Fulano", Returned: true}).Return(nil)

		l, err := service.ReturnLoan(ctx, "loan-1", true)
		require.NoError(t, err)
		assert.True(t, l.Returned)
	})

	t.Run("unknown loan", func(t *testing.T) {
		service, mockRepo, _ := newMockService(t)
		mockRepo.EXPECT().FindByID(ctx, "missing").Return(Loan{}, ErrNotFound)

		_, err := service.ReturnLoan(ctx, "missing", true)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("unpersisted loan makes no storage call", func(t *testing.T) {
		service, _, _ := newMockService(t)

		_, err := service.Update(ctx, Loan{Customer: "x"})
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("persists", func(t *testing.T) {
		service, mockRepo, _ := newMockService(t)
		mockRepo.EXPECT().Update(ctx, &Loan{ID: "loan-1", Returned: true}).Return(nil)

		l, err := service.Update(ctx, Loan{ID: "loan-1", Returned: true})
		require.NoError(t, err)
		assert.Equal(t, "loan-1", l.ID)
	})
}

func TestService_Find(t *testing.T) {
	ctx := context.Background()
	service, mockRepo, _ := newMockService(t)

	want := page.New([]Loan{{ID: "loan-1"}}, page.Of(0, 10), 1)
	mockRepo.EXPECT().FindByBookIsbnOrCustomer(ctx, "123", "", page.Of(0, 10)).Return(want, nil)

	got, err := service.Find(ctx, Filter{ISBN: "123"}, page.Of(0, 10))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestService_GetLoansByBookID(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves the book", func(t *testing.T) {
		service, mockRepo, mockBooks := newMockService(t)
		mockBooks.EXPECT().GetByID(ctx, "book-1").Return(book.Book{ID: "book-1"}, nil)
		mockRepo.EXPECT().FindByBook(ctx, "book-1", page.Of(0, 5)).Return(page.New[Loan](nil, page.Of(0, 5), 0), nil)

		p, err := service.GetLoansByBookID(ctx, "book-1", page.Of(0, 5))
		require.NoError(t, err)
		assert.Empty(t, p.Content)
	})

	t.Run("unknown book", func(t *testing.T) {
		service, _, mockBooks := newMockService(t)
		mockBooks.EXPECT().GetByID(ctx, "nope").Return(book.Book{}, book.ErrNotFound)

		_, err := service.GetLoansByBookID(ctx, "nope", page.Of(0, 5))
		assert.ErrorIs(t, err, ErrBookNotFound)
	})
}

func TestService_GetAllLateLoans(t *testing.T) {
	ctx := context.Background()

	t.Run("threshold is today minus the grace period", func(t *testing.T) {
		service, mockRepo, _ := newMockService(t)
		threshold := time.Date(2026, time.October, 11, 0, 0, 0, 0, time.UTC)
		mockRepo.EXPECT().FindLate(ctx, threshold).Return([]Loan{{ID: "late"}}, nil)

		loans, err := service.GetAllLateLoans(ctx)
		require.NoError(t, err)
		assert.Len(t, loans, 1)
	})

	t.Run("storage error", func(t *testing.T) {
		service, mockRepo, _ := newMockService(t)
		boom := errors.New("boom")
		mockRepo.EXPECT().FindLate(ctx, gomock.Any()).Return(nil, boom)

		_, err := service.GetAllLateLoans(ctx)
		assert.ErrorIs(t, err, boom)
	})
}

func TestService_HoldBook(t *testing.T) {
	ctx := context.Background()

	t.Run("reports the loan state under the book lock", func(t *testing.T) {
		service, mockRepo, _ := newMockService(t)
		mockRepo.EXPECT().WithinBookLock(ctx, "book-1", gomock.Any()).DoAndReturn(runLocked(mockRepo))
		mockRepo.EXPECT().ExistsActiveLoan(ctx, "book-1").Return(true, nil)

		var seen bool
		err := service.HoldBook(ctx, "book-1", func(_ context.Context, onLoan bool) error {
			seen = onLoan
			return nil
		})
		require.NoError(t, err)
		assert.True(t, seen)
	})

	t.Run("lookup failure skips the callback", func(t *testing.T) {
		service, mockRepo, _ := newMockService(t)
		boom := errors.New("boom")
		mockRepo.EXPECT().WithinBookLock(ctx, "book-1", gomock.Any()).DoAndReturn(runLocked(mockRepo))
		mockRepo.EXPECT().ExistsActiveLoan(ctx, "book-1").Return(false, boom)

		err := service.HoldBook(ctx, "book-1", func(context.Context, bool) error {
			t.Fatal("callback must not run")
			return nil
		})
		assert.ErrorIs(t, err, boom)
	})
}

func TestLoan_ContactAddress(t *testing.T) {
	assert.Equal(t, "a@example.com", Loan{Customer: "Ann", CustomerEmail: "a@example.com"}.ContactAddress())
	assert.Equal(t, "ann@example.com", Loan{Customer: "ann@example.com"}.ContactAddress())
	assert.Empty(t, Loan{Customer: "Ann"}.ContactAddress())
}

func TestToday(t *testing.T) {
	loc := time.FixedZone("UTC-3", -3*60*60)
	late := time.Date(2026, time.October, 15, 23, 30, 0, 0, loc)

	assert.Equal(t, time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC), Today(late))
}
