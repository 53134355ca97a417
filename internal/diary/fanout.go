package diary

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forEach calls fn for every index in [0, n). In sequential mode the calls
// run in index order on the caller's goroutine; in concurrent mode they run
// in parallel, bounded by the configured concurrency. fn reports failures
// through its own result slot, so one failing task never cancels siblings.
func (s *Service) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	if s.gate == nil || n <= 1 {
		for i := 0; i < n; i++ {
			fn(ctx, i)
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}
