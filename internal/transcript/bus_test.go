package transcript

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestBusDeliversToLocalSubscribers(t *testing.T) {
	b := NewBus("room1", nil, slog.Default())
	defer b.Close()

	ch1, cancel1 := b.Subscribe()
	ch2, cancel2 := b.Subscribe()
	defer cancel1()
	defer cancel2()

	if err := b.Publish(context.Background(), Record{ParticipantID: "alice", Original: "hello"}); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	for i, ch := range []<-chan Record{ch1, ch2} {
		select {
		case got := <-ch:
			if got.ParticipantID != "alice" {
				t.Errorf("subscriber %d: expected alice, got %q", i, got.ParticipantID)
			}
			if got.RoomID != "room1" {
				t.Errorf("subscriber %d: expected room1, got %q", i, got.RoomID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out waiting for record", i)
		}
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus("room1", nil, slog.Default())
	defer b.Close()

	ch, cancel := b.Subscribe()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("expected channel closed after unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

func TestBusCloseClosesSubscribers(t *testing.T) {
	b := NewBus("room1", nil, slog.Default())
	ch, _ := b.Subscribe()

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel closed after bus close")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}

	// Subscribing after close yields an already closed channel.
	ch2, cancel2 := b.Subscribe()
	defer cancel2()
	if _, ok := <-ch2; ok {
		t.Error("expected closed channel from subscribe after close")
	}
}

func TestBusSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBus("room1", nil, slog.Default())
	defer b.Close()

	_, cancel := b.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(context.Background(), Record{Original: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}
