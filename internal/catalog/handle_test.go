package catalog

import (
	"context"
	"testing"
	"time"
)

// TestYieldReturnsImmediatelyWhenIdle covers §4.2/§4.3: with no
// foreground mutation/query running, Yield must not sleep out its delta.
func TestYieldReturnsImmediatelyWhenIdle(t *testing.T) {
	h := openTestHandle(t)
	in := h.NewInterruption(time.Minute)

	start := time.Now()
	if err := in.Yield(context.Background()); err != nil {
		t.Fatalf("Yield: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Yield slept %v while idle, want near-instant return", elapsed)
	}
}

// TestYieldWaitsWhileForegroundActive covers the other half: once a
// foreground caller registers, Yield should block until it clears
// (instead of unconditionally sleeping the full delta every time).
func TestYieldWaitsWhileForegroundActive(t *testing.T) {
	h := openTestHandle(t)
	in := h.NewInterruption(2 * time.Second)

	end := h.beginForeground()
	cleared := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		end()
		close(cleared)
	}()

	start := time.Now()
	if err := in.Yield(context.Background()); err != nil {
		t.Fatalf("Yield: %v", err)
	}
	elapsed := time.Since(start)
	<-cleared

	if elapsed < 50*time.Millisecond {
		t.Errorf("Yield returned after %v, before the foreground caller cleared", elapsed)
	}
	if elapsed >= 2*time.Second {
		t.Errorf("Yield waited the full delta (%v) instead of noticing the foreground caller cleared early", elapsed)
	}
}

func TestForegroundActiveTracksNestedCalls(t *testing.T) {
	h := openTestHandle(t)
	if h.foregroundActive() {
		t.Fatal("foregroundActive true before any caller registered")
	}
	endOuter := h.beginForeground()
	endInner := h.beginForeground()
	if !h.foregroundActive() {
		t.Fatal("foregroundActive false with two registered callers")
	}
	endInner()
	if !h.foregroundActive() {
		t.Fatal("foregroundActive false with one registered caller remaining")
	}
	endOuter()
	if h.foregroundActive() {
		t.Fatal("foregroundActive true after all callers cleared")
	}
}
