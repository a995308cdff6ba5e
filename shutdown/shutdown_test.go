package shutdown

import (
	"context"
	"testing"
	"time"
)

// closed returns true if the channel is closed.
func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestSendReachesAllSubscribers(t *testing.T) {
	signal := New()

	sub1 := signal.Subscribe()
	sub2 := signal.Subscribe()

	if closed(sub1.C) || closed(sub2.C) {
		t.Fatal("subscription closed before Send")
	}

	if n := signal.Send(); n != 2 {
		t.Errorf("want 2 receivers, got %d", n)
	}

	if !closed(sub1.C) || !closed(sub2.C) {
		t.Error("subscription not closed after Send")
	}

	// Unsubscribing after the Send is harmless.
	sub1.Unsubscribe()
	sub1.Unsubscribe()
}

// TestNoReplay checks that a late subscriber does not see an earlier Send.
func TestNoReplay(t *testing.T) {
	signal := New()
	signal.Subscribe()
	signal.Send()

	late := signal.Subscribe()
	if closed(late.C) {
		t.Error("late subscriber saw an earlier Send")
	}

	if n := signal.Send(); n != 1 {
		t.Errorf("want 1 receiver, got %d", n)
	}
	if !closed(late.C) {
		t.Error("late subscriber did not see the second Send")
	}
}

func TestUnsubscribe(t *testing.T) {
	var signal Signal

	sub := signal.Subscribe()
	sub.Unsubscribe()

	if n := signal.Subscribers(); n != 0 {
		t.Errorf("want 0 subscribers, got %d", n)
	}
	if n := signal.Send(); n != 0 {
		t.Errorf("want 0 receivers, got %d", n)
	}
	if closed(sub.C) {
		t.Error("unsubscribed channel was closed")
	}
}

func TestSendOnDone(t *testing.T) {
	signal := New()
	sub := signal.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	signal.SendOnDone(ctx)
	cancel()

	select {
	case <-sub.C:
	case <-time.After(5 * time.Second):
		t.Error("signal not sent when the context was cancelled")
	}
}
