package simulator

import (
	"context"
	"testing"
	"time"
)

func TestStreamEventsAreInBoundsAndOrdered(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const width, height = 32, 24
	stream := Stream(ctx, width, height, 10000)

	first, ok := <-stream
	if !ok {
		t.Fatal("stream closed before start message")
	}
	if first.Type != "start" {
		t.Fatalf("expected start message first, got %q", first.Type)
	}
	if first.Meta["width"] != width || first.Meta["height"] != height {
		t.Fatalf("start meta geometry: %v", first.Meta)
	}

	var prev int64 = -1
	batches := 0
	for msg := range stream {
		if msg.Type != "events" {
			t.Fatalf("unexpected message type %q", msg.Type)
		}
		for _, ev := range msg.Events {
			if ev.X < 0 || ev.X >= width || ev.Y < 0 || ev.Y >= height {
				t.Fatalf("event out of bounds: %+v", ev)
			}
			if ev.T < prev {
				t.Fatalf("timestamps regressed: %d after %d", ev.T, prev)
			}
			prev = ev.T
			if ev.Polarity != 1 && ev.Polarity != -1 {
				t.Fatalf("invalid polarity: %+v", ev)
			}
		}
		batches++
		if batches >= 5 {
			cancel()
		}
	}
	if batches < 5 {
		t.Fatalf("expected at least 5 batches, got %d", batches)
	}
}
