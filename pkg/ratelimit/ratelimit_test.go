package ratelimit

import (
	"testing"
	"time"

	"msgcore/pkg/clock"
)

func TestSlidingWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(base)
	l := New(60*time.Second, 5, clk)

	for i := 0; i < 5; i++ {
		if !l.Admit("alice", ActionSend) {
			t.Fatalf("admit %d: expected admission", i)
		}
	}
	clk.Advance(10 * time.Second)
	if l.Admit("alice", ActionSend) {
		t.Fatalf("expected rejection inside window")
	}
	// first admit was at t=0, so at t=61s it has slid out
	clk.Set(base.Add(61 * time.Second))
	if !l.Admit("alice", ActionSend) {
		t.Fatalf("expected admission after window slid")
	}
}

func TestRejectionNotRecorded(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(base)
	l := New(60*time.Second, 2, clk)

	l.Admit("bob", ActionSend)
	clk.Advance(30 * time.Second)
	l.Admit("bob", ActionSend)

	// hammer while full; none of these may take a slot
	for i := 0; i < 10; i++ {
		clk.Advance(time.Second)
		if l.Admit("bob", ActionSend) {
			t.Fatalf("attempt %d: expected rejection", i)
		}
	}
	// the t=0 entry expires at t=60; rejections above must not have
	// extended the window
	clk.Set(base.Add(61 * time.Second))
	if !l.Admit("bob", ActionSend) {
		t.Fatalf("expected admission once oldest entry expired")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := New(60*time.Second, 1, clk)

	if !l.Admit("alice", ActionSend) {
		t.Fatalf("alice first send should pass")
	}
	if l.Admit("alice", ActionSend) {
		t.Fatalf("alice second send should fail")
	}
	if !l.Admit("bob", ActionSend) {
		t.Fatalf("bob is not affected by alice's window")
	}
	if !l.Admit("alice", "other.action") {
		t.Fatalf("different action has its own window")
	}
}

func TestPruneIdle(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(base)
	l := New(60*time.Second, 5, clk)

	l.Admit("alice", ActionSend)
	l.Admit("bob", ActionSend)
	if got := l.Keys(); got != 2 {
		t.Fatalf("expected 2 windows, got %d", got)
	}

	clk.Advance(30 * time.Second)
	l.Admit("bob", ActionSend)

	clk.Set(base.Add(61 * time.Second))
	removed := l.PruneIdle()
	if removed != 1 {
		t.Fatalf("expected to prune alice only, pruned %d", removed)
	}
	if got := l.Keys(); got != 1 {
		t.Fatalf("expected 1 window after prune, got %d", got)
	}
}
