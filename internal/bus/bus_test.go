package bus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPublishAssignsIDAndTime(t *testing.T) {
	b := New(4)
	ev := &Event{Name: EventInvitationCreated}
	b.Publish(ev)
	if ev.ID == "" || ev.OccurredAt.IsZero() {
		t.Fatalf("expected id and time to be set: %+v", ev)
	}
	if b.Pending() != 1 {
		t.Fatalf("expected 1 pending, got %d", b.Pending())
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New(1)
	b.Publish(&Event{Name: "a"})
	b.Publish(&Event{Name: "b"})
	if b.Pending() != 1 || b.Dropped() != 1 {
		t.Fatalf("expected 1 pending and 1 dropped, got %d/%d", b.Pending(), b.Dropped())
	}
}

func TestDrainDeliversByNameAndWildcard(t *testing.T) {
	b := New(10)
	var named, all []string
	b.Subscribe(EventDateCompleted, func(_ context.Context, ev *Event) { named = append(named, ev.Name) })
	b.Subscribe(Wildcard, func(_ context.Context, ev *Event) { all = append(all, ev.Name) })

	b.Publish(&Event{Name: EventInvitationCreated})
	b.Publish(&Event{Name: EventDateCompleted})
	b.Drain(context.Background())

	if len(named) != 1 || named[0] != EventDateCompleted {
		t.Fatalf("unexpected named deliveries %v", named)
	}
	if len(all) != 2 {
		t.Fatalf("expected wildcard to see both events, got %v", all)
	}
}

func TestDispatchStopsOnCancel(t *testing.T) {
	b := New(10)
	var mu sync.Mutex
	got := 0
	done := make(chan struct{})
	b.Subscribe(Wildcard, func(context.Context, *Event) {
		mu.Lock()
		got++
		if got == 3 {
			close(done)
		}
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.Dispatch(ctx) }()

	for i := 0; i < 3; i++ {
		b.Publish(&Event{Name: EventTokensAwarded})
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
	cancel()
	if err := <-errCh; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
