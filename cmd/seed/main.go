package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"libraryapi/internal/book"
	"libraryapi/internal/config"
	"libraryapi/internal/loan"
	"libraryapi/internal/platform/logging"
	"libraryapi/internal/platform/pg"
)

func main() {
	var (
		books = flag.Int("books", 200, "Number of books to register")
		loans = flag.Int("loans", 40, "Number of books to lend out")
		late  = flag.Int("late", 10, "How many of the loans to backdate past the grace period")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	if cfg.Database.Storage != config.StoragePostgres {
		logger.Fatal().Str("storage", cfg.Database.Storage).Msg("seed only targets postgres storage")
	}

	ctx := context.Background()
	pool, err := pg.Open(ctx, cfg.Database.DSN, cfg.Database.Timeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	bookRepo := book.NewPostgresRepo(pool, cfg.Database.Timeout)
	loanSvc := loan.NewService(loan.NewPostgresRepo(pool, cfg.Database.Timeout), bookRepo,
		loan.Config{GracePeriodDays: cfg.Loans.GracePeriodDays})
	seeder := &seeder{
		books:  book.NewService(bookRepo, loanSvc),
		loans:  loanSvc,
		grace:  cfg.Loans.GracePeriodDays,
		rnd:    rand.New(rand.NewSource(42)),
		logger: logger,
	}

	if err := seeder.run(ctx, *books, *loans, *late); err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}
}

type seeder struct {
	books  *book.Service
	loans  *loan.Service
	grace  int
	rnd    *rand.Rand
	logger zerolog.Logger
}

func (s *seeder) run(ctx context.Context, bookCount, loanCount, lateCount int) error {
	s.logger.Info().Int("books", bookCount).Msg("registering books")

	isbns := make([]string, 0, bookCount)
	for i := 0; i < bookCount; i++ {
		b := book.Book{
			ISBN:   fmt.Sprintf("978-%09d", i+1),
			Title:  fmt.Sprintf("%s of %s", randomWord(s.rnd), randomWord(s.rnd)),
			Author: authors[s.rnd.Intn(len(authors))],
		}
		if _, err := s.books.Save(ctx, b); err != nil && !errors.Is(err, book.ErrDuplicateISBN) {
			return fmt.Errorf("save book %s: %w", b.ISBN, err)
		}
		isbns = append(isbns, b.ISBN)

		if (i+1)%100 == 0 {
			s.logger.Info().Msgf("registered %d/%d books", i+1, bookCount)
		}
	}

	if loanCount > len(isbns) {
		loanCount = len(isbns)
	}
	var created, backdated int
	for i, isbn := range isbns[:loanCount] {
		customer := customers[i%len(customers)]
		l, err := s.loans.CreateLoan(ctx, isbn, customer, customerEmail(customer))
		if errors.Is(err, loan.ErrAlreadyLoaned) {
			continue
		}
		if err != nil {
			return fmt.Errorf("lend %s: %w", isbn, err)
		}
		created++

		if backdated < lateCount {
			l.LoanDate = l.LoanDate.AddDate(0, 0, -(s.grace + 1 + s.rnd.Intn(20)))
			if _, err := s.loans.Update(ctx, l); err != nil {
				return fmt.Errorf("backdate loan %s: %w", l.ID, err)
			}
			backdated++
		}
	}

	lateLoans, err := s.loans.GetAllLateLoans(ctx)
	if err != nil {
		return err
	}
	s.logger.Info().
		Int("loans_created", created).
		Int("loans_backdated", backdated).
		Int("late_total", len(lateLoans)).
		Msg("seed completed")
	return nil
}

var (
	authors   = []string{"Ursula K. Le Guin", "Frank Herbert", "Octavia E. Butler", "Italo Calvino", "Clarice Lispector", "Jorge Luis Borges"}
	customers = []string{"Fulano", "Ciclano", "Beltrano", "ana@example.com", "joao@example.com"}
	words     = []string{
		"Adventure", "Mystery", "Journey", "Discovery", "Secrets", "Dreams", "Hope",
		"Science", "Nature", "History", "Future", "Reality", "Imagination", "Wisdom",
		"Light", "Darkness", "World", "Universe", "Time", "Space", "Mind", "Soul",
	}
)

func randomWord(rnd *rand.Rand) string {
	return words[rnd.Intn(len(words))]
}

// customerEmail gives named customers a mailbox; address-like keys need none.
func customerEmail(customer string) string {
	if strings.Contains(customer, "@") {
		return ""
	}
	return strings.ToLower(customer) + "@example.com"
}
