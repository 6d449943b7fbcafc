package book

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"libraryapi/internal/page"
	"libraryapi/internal/platform/pg"
)

const isbnConstraint = "books_isbn_key"

var (
	dialect     = goqu.Dialect("postgres")
	bookColumns = []any{"id", "isbn", "title", "author", "created_at", "updated_at"}
)

type PostgresRepo struct {
	db      pg.Querier
	timeout time.Duration
}

func NewPostgresRepo(db pg.Querier, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *PostgresRepo) ExistsByISBN(ctx context.Context, isbn string) (bool, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	var exists bool
	err := r.db.QueryRow(timeoutCtx, `SELECT EXISTS (SELECT 1 FROM books WHERE isbn = $1)`, isbn).Scan(&exists)
	return exists, err
}

func (r *PostgresRepo) GetByISBN(ctx context.Context, isbn string) (Book, error) {
	const query = `
		SELECT id, isbn, title, author, created_at, updated_at
		FROM books
		WHERE isbn = $1
		LIMIT 1
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanBook(r.db.QueryRow(timeoutCtx, query, isbn))
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Book, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Book{}, ErrNotFound
	}
	const query = `
		SELECT id, isbn, title, author, created_at, updated_at
		FROM books
		WHERE id = $1
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanBook(r.db.QueryRow(timeoutCtx, query, id))
}

func (r *PostgresRepo) Insert(ctx context.Context, b *Book) error {
	const query = `
		INSERT INTO books (isbn, title, author)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query, b.ISBN, b.Title, b.Author).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if pg.IsUniqueViolation(err, isbnConstraint) {
			return ErrDuplicateISBN
		}
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Update(ctx context.Context, b *Book) error {
	if _, err := uuid.Parse(b.ID); err != nil {
		return ErrNotFound
	}
	const query = `
		UPDATE books
		SET title = $2, author = $3, updated_at = now()
		WHERE id = $1
		RETURNING isbn, created_at, updated_at
	`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	err := r.db.QueryRow(timeoutCtx, query, b.ID, b.Title, b.Author).Scan(&b.ISBN, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update book: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	result, err := r.db.Exec(timeoutCtx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Find(ctx context.Context, f Filter, req page.Request) (page.Page[Book], error) {
	ds := dialect.From("books").Prepared(true)
	if ex := filterExpression(f); len(ex) > 0 {
		ds = ds.Where(ex)
	}

	countSQL, countArgs, err := ds.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return page.Page[Book]{}, fmt.Errorf("build book count query: %w", err)
	}
	dataSQL, dataArgs, err := ds.Select(bookColumns...).
		Order(goqu.C("title").Asc(), goqu.C("id").Asc()).
		Limit(uint(req.Limit())).
		Offset(uint(req.Offset())).
		ToSQL()
	if err != nil {
		return page.Page[Book]{}, fmt.Errorf("build book query: %w", err)
	}

	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	var total int
	if err := r.db.QueryRow(timeoutCtx, countSQL, countArgs...).Scan(&total); err != nil {
		return page.Page[Book]{}, err
	}

	rows, err := r.db.Query(timeoutCtx, dataSQL, dataArgs...)
	if err != nil {
		return page.Page[Book]{}, err
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return page.Page[Book]{}, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return page.Page[Book]{}, err
	}
	return page.New(out, req, total), nil
}

func filterExpression(f Filter) goqu.Ex {
	ex := goqu.Ex{}
	if f.ISBN != "" {
		ex["isbn"] = f.ISBN
	}
	if f.Title != "" {
		ex["title"] = f.Title
	}
	if f.Author != "" {
		ex["author"] = f.Author
	}
	return ex
}

func scanBook(row pgx.Row) (Book, error) {
	var b Book
	err := row.Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Book{}, ErrNotFound
		}
		return Book{}, err
	}
	return b, nil
}
