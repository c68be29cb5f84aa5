package debounce

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDebouncerEmitsAfterStability(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Set("apple")
	select {
	case got := <-d.C():
		require.Equal(t, "apple", got)
	case <-time.After(time.Second):
		t.Fatal("debounced value never emitted")
	}
}

func TestDebouncerRestartsWindowOnNewInput(t *testing.T) {
	d := NewDebouncer(60 * time.Millisecond)
	defer d.Stop()

	d.Set("a")
	time.Sleep(20 * time.Millisecond)
	d.Set("ap")
	time.Sleep(20 * time.Millisecond)
	d.Set("app")

	select {
	case got := <-d.C():
		require.Equal(t, "app", got, "only the final stable value may emit")
	case <-time.After(time.Second):
		t.Fatal("debounced value never emitted")
	}

	// No trailing emits from the cancelled timers.
	select {
	case got := <-d.C():
		t.Fatalf("unexpected extra emit %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncerKeepsOnlyLatestUnread(t *testing.T) {
	d := NewDebouncer(5 * time.Millisecond)
	defer d.Stop()

	d.Set("first")
	time.Sleep(30 * time.Millisecond)
	d.Set("second")
	time.Sleep(30 * time.Millisecond)

	select {
	case got := <-d.C():
		require.Equal(t, "second", got)
	default:
		t.Fatal("expected a buffered value")
	}
}

func TestDebouncerStopSuppressesPendingEmit(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)

	d.Set("apple")
	d.Stop()

	select {
	case got := <-d.C():
		t.Fatalf("unexpected emit %q after stop", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDebouncerFiredTimerCannotOvertakeNewerValue(t *testing.T) {
	d := NewDebouncer(time.Millisecond)
	defer d.Stop()

	// Race a near-expired timer against a replacing Set. The superseded
	// timer may fire, but its value must never be delivered.
	for i := 0; i < 50; i++ {
		d.Set("old")
		d.Set("new")
		time.Sleep(5 * time.Millisecond)

		select {
		case got := <-d.C():
			require.Equal(t, "new", got)
		case <-time.After(time.Second):
			t.Fatal("debounced value never emitted")
		}
		select {
		case got := <-d.C():
			t.Fatalf("stale emit %q", got)
		default:
		}
	}
}

func TestScannerRunsOffCaller(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := NewScanner(func(query string) []string {
		close(started)
		<-release
		return []string{query}
	})

	s.Submit("apple")
	// Submit returned while the scan is still running.
	<-started
	require.True(t, s.Loading())
	require.Nil(t, s.Results())

	close(release)
	s.Wait()
	require.False(t, s.Loading())
	require.Equal(t, []string{"apple"}, s.Results())
}

func TestScannerBlankQueryClearsImmediately(t *testing.T) {
	s := NewScanner(func(query string) []string { return []string{query} })
	s.Submit("apple")
	s.Wait()
	require.NotEmpty(t, s.Results())

	s.Submit("")
	require.False(t, s.Loading())
	require.Nil(t, s.Results())
}

func TestScannerLastWriteWins(t *testing.T) {
	var mu sync.Mutex
	gates := map[string]chan struct{}{
		"old": make(chan struct{}),
		"new": make(chan struct{}),
	}
	s := NewScanner(func(query string) []string {
		mu.Lock()
		gate := gates[query]
		mu.Unlock()
		<-gate
		return []string{query}
	})

	s.Submit("old")
	s.Submit("new")

	// Finish the newer scan first, then release the stale one.
	close(gates["new"])
	s.Wait()
	require.Equal(t, []string{"new"}, s.Results())

	close(gates["old"])
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []string{"new"}, s.Results(), "stale scan results must be discarded")
	require.False(t, s.Loading())
}

func TestSessionEndToEnd(t *testing.T) {
	session := NewSession(10*time.Millisecond, func(query string) []string {
		return []string{query + "!"}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go session.Run(ctx)

	session.Input("a")
	session.Input("ap")
	session.Input("apple")

	require.Eventually(t, func() bool {
		r := session.Results()
		return len(r) == 1 && r[0] == "apple!"
	}, time.Second, 5*time.Millisecond)

	session.Input("")
	require.Eventually(t, func() bool {
		return session.Results() == nil && !session.Loading()
	}, time.Second, 5*time.Millisecond)
}
