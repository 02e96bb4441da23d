package app

import "testing"

func TestHubSequencesAndHistory(t *testing.T) {
	hub := NewNotificationHub(2)
	hub.Publish(NotifySessionChanged, "a")
	hub.Publish(NotifyLoansUpdated, "b")
	hub.Publish(NotifyLoansUpdated, "c")

	events := hub.Since(0)
	if len(events) != 2 {
		t.Fatalf("history must trim to the limit, got %d events", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("sequence numbers survive trimming: %d, %d", events[0].Seq, events[1].Seq)
	}
	if got := hub.Since(2); len(got) != 1 || got[0].Payload != "c" {
		t.Fatalf("resume from seq 2 must yield only the last event, got %v", got)
	}
	if hub.LastSeq() != 3 {
		t.Fatalf("last seq = %d, want 3", hub.LastSeq())
	}
}

func TestHubSubscribeReplayAndLive(t *testing.T) {
	hub := NewNotificationHub(16)
	hub.Publish(NotifySessionChanged, "first")

	replay, ch, cancel := hub.Subscribe(0)
	defer cancel()
	if len(replay) != 1 || replay[0].Payload != "first" {
		t.Fatalf("unexpected replay: %v", replay)
	}

	hub.Publish(NotifyLoansUpdated, "second")
	select {
	case event := <-ch:
		if event.Payload != "second" {
			t.Fatalf("unexpected live event: %v", event)
		}
	default:
		t.Fatal("live event not delivered")
	}
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	hub := NewNotificationHub(1024)
	_, ch, cancel := hub.Subscribe(0)
	defer cancel()

	for i := 0; i < 200; i++ {
		hub.Publish(NotifyLoansUpdated, i)
	}

	delivered := 0
	for range ch {
		delivered++
	}
	// channel closed after overflowing its buffer
	if delivered != 128 {
		t.Fatalf("expected 128 buffered events before the drop, got %d", delivered)
	}
	if len(hub.Since(0)) != 200 {
		t.Fatal("history must survive a dropped subscriber")
	}
}

func TestHubCancelIsIdempotent(t *testing.T) {
	hub := NewNotificationHub(4)
	_, _, cancel := hub.Subscribe(0)
	cancel()
	cancel()
	hub.Publish(NotifySessionChanged, nil) // must not panic on a removed sub
}
