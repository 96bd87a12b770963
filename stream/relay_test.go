package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"hintro-api/domain"
)

func TestRelayFeedsHub(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	hub := NewHub()
	sub := hub.Subscribe("board-a")
	defer hub.Unsubscribe("board-a", sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Relay(ctx, nil, rc, "board-events", hub)
		close(done)
	}()
	// wait for subscription to start
	time.Sleep(50 * time.Millisecond)

	ev := event(domain.EventTaskCreated, "board-a")
	payload, _ := json.Marshal(ev)
	if err := rc.Publish(context.Background(), "board-events", payload).Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-sub:
		if got.Kind != domain.EventTaskCreated || got.BoardID != "board-a" {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("relay did not deliver the event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not exit")
	}
}

func TestRelayDropsMalformedAndUnscopedMessages(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	hub := NewHub()
	sub := hub.Subscribe("board-a")
	defer hub.Unsubscribe("board-a", sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Relay(ctx, nil, rc, "board-events", hub)
	time.Sleep(50 * time.Millisecond)

	if err := rc.Publish(context.Background(), "board-events", "not json").Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	noBoard, _ := json.Marshal(domain.Event{Kind: domain.EventTaskCreated})
	if err := rc.Publish(context.Background(), "board-events", noBoard).Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	select {
	case got := <-sub:
		t.Fatalf("expected no delivery, got %+v", got)
	default:
	}
}
