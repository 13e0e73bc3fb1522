package h2

import "testing"

func TestFlowWindowDebitAndAvailable(t *testing.T) {
	var w flowWindow
	w.n = 100
	w.debit(40)
	if got := w.available(); got != 60 {
		t.Fatalf("available = %d, want 60", got)
	}
}

func TestFlowWindowShrinkCanGoNegative(t *testing.T) {
	var w flowWindow
	w.n = 100
	w.shrink(-150)
	if got := w.available(); got != -50 {
		t.Fatalf("available = %d, want -50", got)
	}
	w.shrink(50)
	if got := w.available(); got != 0 {
		t.Fatalf("available after regrow = %d, want 0", got)
	}
}

func TestFlowWindowAddRejectsOverflow(t *testing.T) {
	var w flowWindow
	w.n = maxWindowSize
	if err := w.add(1); err == nil {
		t.Fatal("expected overflow error")
	}
	if w.n != maxWindowSize {
		t.Fatalf("n mutated on overflow: %d", w.n)
	}
	w.n = 0
	if err := w.add(maxWindowSize); err != nil {
		t.Fatalf("add up to the limit failed: %v", err)
	}
}

func TestTakeRecvRefillsAtHalfConsumed(t *testing.T) {
	w := flowWindow{n: 100}
	advertised := int32(100)
	var consumed int32

	// Consume less than half: no refund yet.
	if refund := takeRecv(&w, &advertised, &consumed, 40); refund != 0 {
		t.Fatalf("refund = %d, want 0", refund)
	}
	if consumed != 40 {
		t.Fatalf("consumed = %d, want 40", consumed)
	}

	// Crossing half triggers a refund of everything consumed so far,
	// and the window is credited back by that amount.
	before := w.available()
	refund := takeRecv(&w, &advertised, &consumed, 30)
	if refund != 70 {
		t.Fatalf("refund = %d, want 70", refund)
	}
	if consumed != 0 {
		t.Fatalf("consumed after refund = %d, want 0", consumed)
	}
	if got, want := w.available(), before-30+int32(refund); got != want {
		t.Fatalf("available = %d, want %d", got, want)
	}
}
