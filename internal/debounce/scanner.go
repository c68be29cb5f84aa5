package debounce

import "sync"

// ScanFunc executes one index scan for a query.
type ScanFunc[T any] func(query string) []T

// Scanner runs scans on a deferred goroutine and commits only the results of
// the most recently submitted query. Superseded scans' results are discarded
// when they arrive.
type Scanner[T any] struct {
	scan ScanFunc[T]

	mu      sync.Mutex
	seq     uint64
	results []T
	loading bool
	done    chan struct{}
}

// NewScanner constructs a scanner around the given scan function.
func NewScanner[T any](scan ScanFunc[T]) *Scanner[T] {
	return &Scanner[T]{scan: scan}
}

// Submit schedules a scan for the query. A blank query clears results and
// loading state immediately; otherwise loading is set until the scan's
// results are committed. The scan itself never runs on the caller's
// goroutine.
func (s *Scanner[T]) Submit(query string) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	if query == "" {
		s.results = nil
		s.loading = false
		s.mu.Unlock()
		return
	}
	s.loading = true
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		results := s.scan(query)
		s.mu.Lock()
		defer s.mu.Unlock()
		// Last write wins: a scan whose triggering query has since
		// changed is irrelevant.
		if seq != s.seq {
			return
		}
		s.results = results
		s.loading = false
	}()
}

// Results returns the committed results of the latest scan.
func (s *Scanner[T]) Results() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// Loading reports whether a scan for the latest query is still pending.
func (s *Scanner[T]) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Wait blocks until the most recently scheduled scan has finished. Test
// helper; production readers poll Results.
func (s *Scanner[T]) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}
