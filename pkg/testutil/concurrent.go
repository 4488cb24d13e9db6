package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	"credregistry/internal/sentinel"
	dErrors "credregistry/pkg/domain-errors"
)

// ConcurrentResult tallies the outcomes of RunConcurrent.
type ConcurrentResult struct {
	Successes int32
	Conflicts int32
	NotFounds int32
	Forbidden int32
	Errors    int32
}

// Total returns the number of calls made.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Conflicts + r.NotFounds + r.Forbidden + r.Errors
}

// RunConcurrent calls fn from n goroutines at once and classifies each outcome.
// Store sentinels and service error codes are both recognized, so the helper
// works at either layer.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		tally [5]atomic.Int32
	)
	for i := range n {
		wg.Go(func() {
			<-start
			tally[classify(fn(i))].Add(1)
		})
	}
	close(start)
	wg.Wait()

	return &ConcurrentResult{
		Successes: tally[outcomeSuccess].Load(),
		Conflicts: tally[outcomeConflict].Load(),
		NotFounds: tally[outcomeNotFound].Load(),
		Forbidden: tally[outcomeForbidden].Load(),
		Errors:    tally[outcomeError].Load(),
	}
}

const (
	outcomeSuccess = iota
	outcomeConflict
	outcomeNotFound
	outcomeForbidden
	outcomeError
)

func classify(err error) int {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, sentinel.ErrConflict), dErrors.HasCode(err, dErrors.CodeConflict):
		return outcomeConflict
	case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
		return outcomeNotFound
	case dErrors.HasCode(err, dErrors.CodeForbidden):
		return outcomeForbidden
	default:
		return outcomeError
	}
}
