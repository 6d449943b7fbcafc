package page

import (
	"math"
	"net/url"
	"strconv"
)

const (
	DefaultSize = 20
	MaxSize     = 100

	// MaxOffset caps Number*Size so offsets stay positive on every platform.
	MaxOffset = math.MaxInt32
)

// Request is a zero-based page request.
type Request struct {
	Number int `json:"page_number"`
	Size   int `json:"page_size"`
}

// Of builds a request, clamping invalid values to the defaults.
func Of(number, size int) Request {
	if number < 0 {
		number = 0
	}
	if size <= 0 || size > MaxSize {
		size = DefaultSize
	}
	if number > MaxOffset/size {
		number = MaxOffset / size
	}
	return Request{Number: number, Size: size}
}

// FromQuery reads "page" (zero-based) and "size" from query parameters.
func FromQuery(query url.Values) Request {
	number, _ := strconv.Atoi(query.Get("page"))
	size, _ := strconv.Atoi(query.Get("size"))
	return Of(number, size)
}

func (r Request) Offset() int {
	return r.Number * r.Size
}

func (r Request) Limit() int {
	return r.Size
}

// Page is one slice of a larger result set.
type Page[T any] struct {
	Content       []T     `json:"content"`
	Pageable      Request `json:"pageable"`
	TotalElements int     `json:"total_elements"`
}

func New[T any](content []T, req Request, total int) Page[T] {
	if content == nil {
		content = []T{}
	}
	return Page[T]{Content: content, Pageable: req, TotalElements: total}
}

// TotalPages uses ceiling division, like the list endpoints' meta block.
func (p Page[T]) TotalPages() int {
	if p.Pageable.Size <= 0 {
		return 0
	}
	return (p.TotalElements + p.Pageable.Size - 1) / p.Pageable.Size
}

// Meta is the pagination block attached to list responses.
func (p Page[T]) Meta() map[string]any {
	return map[string]any{
		"page":        p.Pageable.Number,
		"page_size":   p.Pageable.Size,
		"total":       p.TotalElements,
		"total_pages": p.TotalPages(),
	}
}

// Slice cuts the requested window out of an already filtered, ordered slice.
func Slice[T any](all []T, req Request) Page[T] {
	start := req.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + req.Limit()
	if end > len(all) {
		end = len(all)
	}
	out := make([]T, end-start)
	copy(out, all[start:end])
	return New(out, req, len(all))
}
