package batch

import "context"

// Handle is a batch running in the background.
type Handle struct {
	results chan Result
	done    chan struct{}
	report  *Report
	err     error
}

// Stream starts req in a goroutine and returns immediately. Once ctx is done
// results nobody receives are dropped, so an abandoned handle does not keep
// the run alive.
func (e *Executor) Stream(ctx context.Context, req Request) *Handle {
	h := &Handle{
		results: make(chan Result, 16),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		defer close(h.results)
		h.report, h.err = e.Run(ctx, req, func(r Result) {
			select {
			case h.results <- r:
			case <-ctx.Done():
			}
		})
	}()

	return h
}

// Results yields each result as it is produced and is closed when the run
// ends.
func (h *Handle) Results() <-chan Result {
	return h.results
}

// Wait blocks until the run ends and returns its report. Results not yet
// received are discarded.
func (h *Handle) Wait() (*Report, error) {
	for range h.results {
	}
	<-h.done
	return h.report, h.err
}
