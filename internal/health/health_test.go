package health

import (
	"testing"
	"time"
)

func TestRunStopsCleanly(t *testing.T) {
	r := NewReporter(10*time.Millisecond, 90, 90)
	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	r.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after Stop was called")
	}
}

func TestZeroIntervalReturnsImmediately(t *testing.T) {
	r := NewReporter(0, 0, 0)
	done := make(chan struct{})
	go func() {
		r.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run with a zero interval should return immediately without ticking")
	}
}
