package backend

import (
	"context"

	"retriever/internal/jobs"
)

// SliceIterator yields a fixed list of candidates, checking for cancellation
// before each one.
type SliceIterator struct {
	items []jobs.Candidate
	pos   int
}

// NewSliceIterator wraps items.
func NewSliceIterator(items []jobs.Candidate) *SliceIterator {
	return &SliceIterator{items: items}
}

// Next implements Iterator.
func (it *SliceIterator) Next(ctx context.Context) (jobs.Candidate, bool, error) {
	if err := Checkpoint(ctx, "search iteration"); err != nil {
		return jobs.Candidate{}, false, err
	}
	if it.pos >= len(it.items) {
		return jobs.Candidate{}, false, nil
	}
	item := it.items[it.pos]
	it.pos++
	return item, true, nil
}

// Drain reads up to limit candidates from it. A limit <= 0 reads everything.
func Drain(ctx context.Context, it Iterator, limit int) ([]jobs.Candidate, error) {
	var out []jobs.Candidate
	for limit <= 0 || len(out) < limit {
		candidate, ok, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			break
		}
		out = append(out, candidate)
	}
	return out, nil
}
