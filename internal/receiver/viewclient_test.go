package receiver

import (
	"testing"
	"time"
)

func TestNewViewClientNamedVsIndexedGainPaths(t *testing.T) {
	b := NewBase("view", 1, 10, nil, nil)

	named := NewViewClient(b, "alice", "xyz", true, 9000, 2, []string{"ambi", "wfs"}, nil)
	if got := named.gainPathWithIndex[0][0]; got != "/source/1/ambi" {
		t.Errorf("named render unit path = %q, want /source/1/ambi", got)
	}

	indexed := NewViewClient(b, "bob", "xyz", true, 9000, 2, []string{"one", "two"}, nil)
	if got := indexed.gainPathWithIndex[0][0]; got != "/source/1/send/0" {
		t.Errorf("unnamed render unit path = %q, want /source/1/send/0", got)
	}
}

func TestViewClientQualifiedName(t *testing.T) {
	b := NewBase("view", 1, 10, nil, nil)
	vc := NewViewClient(b, "alice", "xyz", true, 9000, 1, nil, nil)
	if got := vc.QualifiedName(); got != "view_alice" {
		t.Errorf("QualifiedName() = %q, want view_alice", got)
	}
}

func TestViewClientPositionPathIndexVsAtArg(t *testing.T) {
	ep, paths := listenUDP(t)
	b := NewBase("view", 1, 10, []EndpointConfig{ep}, nil)

	indexed := NewViewClient(b, "alice", "xyz", true, 9000, 1, nil, nil)
	src := testSource(t)
	src.SetPosition("xyz", []float64{1, 2, 3}, false)
	indexed.OnPositionChanged(0, src)
	expectPath(t, paths, "/source/1/xyz")

	withArg := NewViewClient(b, "bob", "xyz", false, 9000, 1, nil, nil)
	withArg.OnPositionChanged(0, src)
	expectPath(t, paths, "/source/xyz")
}

func TestViewClientReceivedPongResetsMissedCount(t *testing.T) {
	b := NewBase("view", 1, 10, nil, nil)
	vc := NewViewClient(b, "alice", "xyz", true, 9000, 1, nil, nil)

	vc.mu.Lock()
	vc.missedPongs = 5
	vc.mu.Unlock()

	vc.ReceivedPong()

	vc.mu.Lock()
	got := vc.missedPongs
	vc.mu.Unlock()
	if got != 0 {
		t.Errorf("missedPongs after ReceivedPong = %d, want 0", got)
	}
}

func TestViewClientWatchdogFiresDeadAfterSixMisses(t *testing.T) {
	ep, paths := listenUDP(t)
	b := NewBase("view", 1, 10, []EndpointConfig{ep}, nil)

	done := make(chan string, 1)
	vc := NewViewClient(b, "alice", "xyz", true, 9000, 1, nil, func(alias string) { done <- alias })

	// Shrink the watchdog's wait by driving ticks directly instead of
	// waiting 6 * 2s for the real timer.
	for i := 0; i < 6; i++ {
		vc.tick()
		select {
		case <-paths:
		case <-time.After(time.Second):
			t.Fatalf("expected a ping on tick %d", i)
		}
	}

	select {
	case alias := <-done:
		if alias != "alice" {
			t.Errorf("onDead alias = %q, want alice", alias)
		}
	case <-time.After(time.Second):
		t.Fatalf("onDead was not invoked after 6 missed pongs")
	}

	vc.mu.Lock()
	stopped := vc.stopped
	vc.mu.Unlock()
	if !stopped {
		t.Errorf("ViewClient should be marked stopped after reaching the miss threshold")
	}
}

func TestViewClientMissHookInvokedBeforeThreshold(t *testing.T) {
	ep, paths := listenUDP(t)
	b := NewBase("view", 1, 10, []EndpointConfig{ep}, nil)
	vc := NewViewClient(b, "alice", "xyz", true, 9000, 1, nil, nil)

	misses := make(chan string, 1)
	vc.SetMissHook(func(alias string) { misses <- alias })

	vc.tick()
	select {
	case <-paths:
	case <-time.After(time.Second):
		t.Fatalf("expected a ping")
	}

	select {
	case alias := <-misses:
		if alias != "alice" {
			t.Errorf("miss hook alias = %q, want alice", alias)
		}
	case <-time.After(time.Second):
		t.Fatalf("miss hook was not invoked")
	}
}

func TestViewClientStopPreventsFurtherTicks(t *testing.T) {
	b := NewBase("view", 1, 10, nil, nil)
	vc := NewViewClient(b, "alice", "xyz", true, 9000, 1, nil, nil)
	vc.StartWatchdog()
	vc.Stop()

	vc.mu.Lock()
	stopped := vc.stopped
	vc.mu.Unlock()
	if !stopped {
		t.Errorf("Stop() should mark the watchdog stopped")
	}
}
