package resilience

import (
	"errors"
	"testing"
	"time"
)

var errDown = errors.New("runner unreachable")

// fakeClock lets tests move through the cooldown without sleeping.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := NewBreaker(threshold, cooldown)
	b.clock = func() time.Time { return clock.now }
	return b, clock
}

func trip(t *testing.T, b *Breaker, times int) {
	t.Helper()
	for range times {
		if err := b.Do(func() error { return errDown }); !errors.Is(err, errDown) {
			t.Fatalf("Do = %v, want the dependency error while tripping", err)
		}
	}
}

func TestBreakerPassesThroughWhileClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	calls := 0
	for range 10 {
		if err := b.Do(func() error { calls++; return nil }); err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
	if b.State() != "closed" {
		t.Errorf("state = %q, want closed", b.State())
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	trip(t, b, 3)

	if b.State() != "open" {
		t.Fatalf("state = %q, want open after 3 failures", b.State())
	}
	err := b.Do(func() error {
		t.Fatal("open circuit must not invoke the call")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("Do = %v, want ErrOpen", err)
	}
}

func TestBreakerFailureStreakResetsOnSuccess(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	trip(t, b, 2)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	// The streak restarted, so two more failures stay under the threshold.
	trip(t, b, 2)
	if b.State() != "closed" {
		t.Errorf("state = %q, want closed", b.State())
	}
}

func TestBreakerTrialCallClosesCircuit(t *testing.T) {
	b, clock := newTestBreaker(3, time.Minute)
	trip(t, b, 3)

	clock.advance(61 * time.Second)
	if b.State() != "half-open" {
		t.Fatalf("state = %q, want half-open after cooldown", b.State())
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if b.State() != "closed" {
		t.Errorf("state = %q, want closed after a successful trial", b.State())
	}
}

func TestBreakerTrialFailureRestartsCooldown(t *testing.T) {
	b, clock := newTestBreaker(3, time.Minute)
	trip(t, b, 3)

	clock.advance(61 * time.Second)
	if err := b.Do(func() error { return errDown }); !errors.Is(err, errDown) {
		t.Fatalf("trial call = %v, want the dependency error", err)
	}
	// The failed trial re-arms the full cooldown.
	clock.advance(30 * time.Second)
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Fatalf("Do = %v, want ErrOpen mid-cooldown", err)
	}
	clock.advance(31 * time.Second)
	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("Do after full cooldown: %v", err)
	}
}

func TestBreakerAdmitsOneTrialAtATime(t *testing.T) {
	b, clock := newTestBreaker(1, time.Minute)
	trip(t, b, 1)
	clock.advance(61 * time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// A second call during the in-flight trial is shed.
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("concurrent trial = %v, want ErrOpen", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if b.State() != "closed" {
		t.Errorf("state = %q, want closed", b.State())
	}
}
