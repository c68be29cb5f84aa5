package debounce

import (
	"context"
	"time"
)

// Session ties a Debouncer to a Scanner: keystrokes go in, debounced scans
// run off-thread, and only the latest scan's results are observable.
type Session[T any] struct {
	debouncer *Debouncer
	scanner   *Scanner[T]
}

// NewSession constructs a session with the given settle delay and scan
// function.
func NewSession[T any](delay time.Duration, scan ScanFunc[T]) *Session[T] {
	return &Session[T]{
		debouncer: NewDebouncer(delay),
		scanner:   NewScanner(scan),
	}
}

// Input feeds a keystroke-level value. A blank value clears results
// immediately without waiting out the debounce window.
func (s *Session[T]) Input(value string) {
	if value == "" {
		s.debouncer.Stop()
		s.scanner.Submit("")
		return
	}
	s.debouncer.Set(value)
}

// Run pumps settled values into the scanner until ctx is cancelled.
func (s *Session[T]) Run(ctx context.Context) {
	defer s.debouncer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case value := <-s.debouncer.C():
			s.scanner.Submit(value)
		}
	}
}

// Results returns the committed results of the latest scan.
func (s *Session[T]) Results() []T { return s.scanner.Results() }

// Loading reports whether a scan for the latest settled query is pending.
func (s *Session[T]) Loading() bool { return s.scanner.Loading() }
