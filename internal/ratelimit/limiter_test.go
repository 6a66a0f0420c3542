package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAcquireBurstImmediate(t *testing.T) {
	l := New(Config{RatePerSecond: 10, BurstSize: 3, MinSleep: time.Millisecond})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("burst of 3 took %v, expected immediate admission", elapsed)
	}
}

func TestAcquirePacesBeyondBurst(t *testing.T) {
	l := New(Config{RatePerSecond: 20, BurstSize: 1, MinSleep: time.Millisecond})

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	var stamps []time.Time
	for i := 0; i < 3; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		stamps = append(stamps, time.Now())
	}

	minSpacing := time.Second / 20
	for i := 1; i < len(stamps); i++ {
		spacing := stamps[i].Sub(stamps[i-1])
		// Allow scheduling slack below the theoretical spacing.
		if spacing < minSpacing-10*time.Millisecond {
			t.Errorf("acquire %d spaced %v, want >= %v", i, spacing, minSpacing)
		}
	}
}

func TestAcquireFIFO(t *testing.T) {
	l := New(Config{RatePerSecond: 50, BurstSize: 1, MinSleep: time.Millisecond})
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("drain burst: %v", err)
	}

	order := make(chan int, 3)
	release := make(chan struct{})
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			<-release
			// Stagger enqueue order deterministically.
			time.Sleep(time.Duration(i) * 20 * time.Millisecond)
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("acquire %d: %v", i, err)
				return
			}
			order <- i
		}()
	}
	close(release)

	for want := 0; want < 3; want++ {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("admission order: got %d, want %d", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for admissions")
		}
	}
}

func TestSlidingWindowCap(t *testing.T) {
	l := New(Config{RatePerSecond: 1000, BurstSize: 10, RatePerMinute: 3, MinSleep: time.Millisecond})

	for i := 0; i < 3; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded past the window cap, got %v", err)
	}
}

func TestReset(t *testing.T) {
	l := New(Config{RatePerSecond: 1, BurstSize: 2, MinSleep: time.Millisecond})

	for i := 0; i < 2; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	l.Reset()

	start := time.Now()
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after reset: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("acquire after reset took %v, expected immediate", elapsed)
	}
}

func TestAcquireCancellation(t *testing.T) {
	l := New(Config{RatePerSecond: 0.1, BurstSize: 1, MinSleep: time.Millisecond})
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("drain burst: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("acquire did not observe cancellation")
	}
}
