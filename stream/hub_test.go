package stream

import (
	"testing"

	"hintro-api/domain"
)

func event(kind domain.EventKind, boardID string) domain.Event {
	ev, err := domain.NewEvent(kind, boardID, "entity-id")
	if err != nil {
		panic(err)
	}
	return ev
}

func TestBroadcastReachesOnlyBoardSubscribers(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe("board-a")
	b := hub.Subscribe("board-b")
	defer hub.Unsubscribe("board-a", a)
	defer hub.Unsubscribe("board-b", b)

	hub.Broadcast(event(domain.EventTaskCreated, "board-a"))

	select {
	case ev := <-a:
		if ev.BoardID != "board-a" {
			t.Fatalf("unexpected board id %q", ev.BoardID)
		}
	default:
		t.Fatal("expected event on board-a subscriber")
	}
	select {
	case ev := <-b:
		t.Fatalf("board-b subscriber received foreign event %+v", ev)
	default:
	}
}

func TestBroadcastFanOutTomultipleSubscribers(t *testing.T) {
	hub := NewHub()
	first := hub.Subscribe("board-a")
	second := hub.Subscribe("board-a")
	defer hub.Unsubscribe("board-a", first)
	defer hub.Unsubscribe("board-a", second)

	hub.Broadcast(event(domain.EventListUpdated, "board-a"))

	for i, ch := range []chan domain.Event{first, second} {
		select {
		case <-ch:
		default:
			t.Fatalf("subscriber %d missed the event", i)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe("board-a")
	if got := hub.Subscribers("board-a"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}

	hub.Unsubscribe("board-a", ch)
	if got := hub.Subscribers("board-a"); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}

	hub.Broadcast(event(domain.EventTaskDeleted, "board-a"))
	select {
	case ev := <-ch:
		t.Fatalf("unsubscribed channel received %+v", ev)
	default:
	}
}

func TestBroadcastDropsWhenSubscriberBufferFull(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe("board-a")
	defer hub.Unsubscribe("board-a", ch)

	// Nobody reads the channel; deliveries past the buffer must be dropped
	// without blocking the broadcaster.
	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Broadcast(event(domain.EventTaskUpdated, "board-a"))
	}

	if got := len(ch); got != subscriberBuffer {
		t.Fatalf("expected buffer capped at %d, got %d", subscriberBuffer, got)
	}
}

func TestBroadcastWithoutSubscribersIsNoOp(t *testing.T) {
	hub := NewHub()
	hub.Broadcast(event(domain.EventListDeleted, "board-a"))
}
