package book

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"libraryapi/internal/page"
)

// MemoryRepo is a process-local catalog used for development and tests.
// It enforces the same ISBN uniqueness as the books table.
type MemoryRepo struct {
	mu     sync.RWMutex
	byID   map[string]Book
	byISBN map[string]string
	now    func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:   make(map[string]Book),
		byISBN: make(map[string]string),
		now:    time.Now,
	}
}

func (r *MemoryRepo) ExistsByISBN(_ context.Context, isbn string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byISBN[isbn]
	return ok, nil
}

func (r *MemoryRepo) GetByISBN(_ context.Context, isbn string) (Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byISBN[isbn]
	if !ok {
		return Book{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id string) (Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	if !ok {
		return Book{}, ErrNotFound
	}
	return b, nil
}

func (r *MemoryRepo) Insert(_ context.Context, b *Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byISBN[b.ISBN]; ok {
		return ErrDuplicateISBN
	}
	now := r.now().UTC()
	b.ID = uuid.NewString()
	b.CreatedAt = now
	b.UpdatedAt = now
	r.byID[b.ID] = *b
	r.byISBN[b.ISBN] = b.ID
	return nil
}

func (r *MemoryRepo) Update(_ context.Context, b *Book) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[b.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Title = b.Title
	stored.Author = b.Author
	stored.UpdatedAt = r.now().UTC()
	r.byID[b.ID] = stored
	*b = stored
	return nil
}

func (r *MemoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byISBN, b.ISBN)
	return nil
}

func (r *MemoryRepo) Find(_ context.Context, f Filter, req page.Request) (page.Page[Book], error) {
	r.mu.RLock()
	matches := make([]Book, 0, len(r.byID))
	for _, b := range r.byID {
		if f.Matches(b) {
			matches = append(matches, b)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Title != matches[j].Title {
			return matches[i].Title < matches[j].Title
		}
		return matches[i].ID < matches[j].ID
	})
	return page.Slice(matches, req), nil
}

// Count is the number of stored books.
func (r *MemoryRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
