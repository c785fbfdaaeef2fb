package accumulate

import (
	"context"
	"errors"
	"testing"

	"evisualiser-go/internal/types"
)

func mustNew(t *testing.T, cfg Config) *Accumulator {
	t.Helper()
	acc, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return acc
}

func addAll(t *testing.T, acc *Accumulator, events []types.Event) []Buffer {
	t.Helper()
	var sealed []Buffer
	for _, ev := range events {
		bufs, err := acc.Add(ev)
		if err != nil {
			t.Fatalf("Add(%+v): %v", ev, err)
		}
		sealed = append(sealed, bufs...)
	}
	return append(sealed, acc.Flush()...)
}

func TestTwoWindowScenario(t *testing.T) {
	acc := mustNew(t, Config{Width: 4, Height: 4, FPS: 2})
	if acc.BinWidth() != 500000 {
		t.Fatalf("unexpected bin width: %d", acc.BinWidth())
	}

	sealed := addAll(t, acc, []types.Event{
		{X: 0, Y: 0, T: 0, Polarity: 1},
		{X: 0, Y: 0, T: 100, Polarity: 1},
		{X: 1, Y: 1, T: 600000, Polarity: -1},
	})

	if len(sealed) != 2 {
		t.Fatalf("expected 2 buffers, got %d", len(sealed))
	}
	if sealed[0].Window != 0 || sealed[1].Window != 1 {
		t.Fatalf("unexpected window indices: %d, %d", sealed[0].Window, sealed[1].Window)
	}
	if got := sealed[0].At(0, 0); got != 2 {
		t.Fatalf("window 0 at (0,0): got %d, want 2", got)
	}
	if got := sealed[1].At(1, 1); got != -1 {
		t.Fatalf("window 1 at (1,1): got %d, want -1", got)
	}
	for i, v := range sealed[0].Counts {
		if i != 0 && v != 0 {
			t.Fatalf("window 0 index %d: got %d, want 0", i, v)
		}
	}
	for i, v := range sealed[1].Counts {
		if i != 1*4+1 && v != 0 {
			t.Fatalf("window 1 index %d: got %d, want 0", i, v)
		}
	}
}

func TestBoundaryEventOpensNextWindow(t *testing.T) {
	acc := mustNew(t, Config{Width: 2, Height: 2, FPS: 2})
	sealed := addAll(t, acc, []types.Event{
		{X: 0, Y: 0, T: 0, Polarity: 1},
		{X: 1, Y: 0, T: 500000, Polarity: 1},
	})

	if len(sealed) != 2 {
		t.Fatalf("expected 2 buffers, got %d", len(sealed))
	}
	if got := sealed[0].At(1, 0); got != 0 {
		t.Fatalf("boundary event leaked into window 0: %d", got)
	}
	if got := sealed[1].At(1, 0); got != 1 {
		t.Fatalf("boundary event missing from window 1: %d", got)
	}
}

func TestBlankInteriorWindows(t *testing.T) {
	acc := mustNew(t, Config{Width: 2, Height: 2, FPS: 1})
	sealed := addAll(t, acc, []types.Event{
		{X: 0, Y: 0, T: 0, Polarity: 1},
		{X: 0, Y: 1, T: 2600000, Polarity: 1},
	})

	if len(sealed) != 3 {
		t.Fatalf("expected 3 buffers, got %d", len(sealed))
	}
	for _, v := range sealed[1].Counts {
		if v != 0 {
			t.Fatalf("interior window not blank: %v", sealed[1].Counts)
		}
	}
	if got := sealed[2].At(0, 1); got != 1 {
		t.Fatalf("final window at (0,1): got %d, want 1", got)
	}
}

func TestOutOfBounds(t *testing.T) {
	acc := mustNew(t, Config{Width: 4, Height: 4, FPS: 10})
	if _, err := acc.Add(types.Event{X: 0, Y: 0, T: 0, Polarity: 1}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	_, err := acc.Add(types.Event{X: 4, Y: 0, T: 10, Polarity: 1})
	var oob *OutOfBoundsError
	if !errors.As(err, &oob) {
		t.Fatalf("expected OutOfBoundsError, got %v", err)
	}
	if oob.Event.X != 4 || oob.Window != 0 {
		t.Fatalf("unexpected error detail: %+v", oob)
	}

	if _, err := acc.Add(types.Event{X: 0, Y: -1, T: 20, Polarity: 1}); !errors.As(err, &oob) {
		t.Fatalf("expected OutOfBoundsError for negative y, got %v", err)
	}
}

func TestNonMonotonicTimestamp(t *testing.T) {
	acc := mustNew(t, Config{Width: 4, Height: 4, FPS: 10})
	if _, err := acc.Add(types.Event{X: 0, Y: 0, T: 1000, Polarity: 1}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	_, err := acc.Add(types.Event{X: 1, Y: 1, T: 999, Polarity: 1})
	var nm *NonMonotonicError
	if !errors.As(err, &nm) {
		t.Fatalf("expected NonMonotonicError, got %v", err)
	}
	if nm.T != 999 || nm.Prev != 1000 {
		t.Fatalf("unexpected error detail: %+v", nm)
	}
}

func TestEmptyStreamFlushesNothing(t *testing.T) {
	acc := mustNew(t, Config{Width: 4, Height: 4, FPS: 10})
	if sealed := acc.Flush(); sealed != nil {
		t.Fatalf("expected no buffers, got %d", len(sealed))
	}
}

func TestTieOrderIndependence(t *testing.T) {
	forward := []types.Event{
		{X: 0, Y: 0, T: 50, Polarity: 1},
		{X: 1, Y: 0, T: 50, Polarity: -1},
		{X: 0, Y: 0, T: 50, Polarity: 1},
	}
	reversed := []types.Event{forward[2], forward[1], forward[0]}

	a := addAll(t, mustNew(t, Config{Width: 2, Height: 1, FPS: 10}), forward)
	b := addAll(t, mustNew(t, Config{Width: 2, Height: 1, FPS: 10}), reversed)

	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected 1 buffer each, got %d and %d", len(a), len(b))
	}
	for i := range a[0].Counts {
		if a[0].Counts[i] != b[0].Counts[i] {
			t.Fatalf("tie order changed sums: %v vs %v", a[0].Counts, b[0].Counts)
		}
	}
}

func TestCountOnlyIgnoresPolarity(t *testing.T) {
	acc := mustNew(t, Config{Width: 2, Height: 1, FPS: 10, CountOnly: true})
	sealed := addAll(t, acc, []types.Event{
		{X: 0, Y: 0, T: 0, Polarity: -1},
		{X: 0, Y: 0, T: 1, Polarity: 1},
	})
	if got := sealed[0].At(0, 0); got != 2 {
		t.Fatalf("count mode at (0,0): got %d, want 2", got)
	}
}

func TestSealedBufferIsACopy(t *testing.T) {
	acc := mustNew(t, Config{Width: 2, Height: 1, FPS: 2})
	sealed := addAll(t, acc, []types.Event{
		{X: 0, Y: 0, T: 0, Polarity: 1},
		{X: 1, Y: 0, T: 600000, Polarity: 1},
	})
	if len(sealed) != 2 {
		t.Fatalf("expected 2 buffers, got %d", len(sealed))
	}
	if sealed[0].At(0, 0) != 1 || sealed[0].At(1, 0) != 0 {
		t.Fatalf("window 0 mutated after reuse: %v", sealed[0].Counts)
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, err := New(Config{Width: 0, Height: 4, FPS: 10}); err == nil {
		t.Fatal("expected error for zero width")
	}
	if _, err := New(Config{Width: 4, Height: 4, FPS: 0}); err == nil {
		t.Fatal("expected error for zero fps")
	}
}

func TestStream(t *testing.T) {
	events := make(chan types.Event, 4)
	events <- types.Event{X: 0, Y: 0, T: 0, Polarity: 1}
	events <- types.Event{X: 1, Y: 1, T: 600000, Polarity: -1}
	close(events)

	bufs, errc := Stream(context.Background(), Config{Width: 4, Height: 4, FPS: 2}, events)

	var sealed []Buffer
	for buf := range bufs {
		sealed = append(sealed, buf)
	}
	if err := <-errc; err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if len(sealed) != 2 {
		t.Fatalf("expected 2 buffers, got %d", len(sealed))
	}
	for i, buf := range sealed {
		if buf.Window != i {
			t.Fatalf("buffer %d has window %d", i, buf.Window)
		}
	}
}

func TestStreamSurfacesError(t *testing.T) {
	events := make(chan types.Event, 2)
	events <- types.Event{X: 0, Y: 0, T: 0, Polarity: 1}
	events <- types.Event{X: 99, Y: 0, T: 1, Polarity: 1}
	close(events)

	bufs, errc := Stream(context.Background(), Config{Width: 4, Height: 4, FPS: 2}, events)
	for range bufs {
	}

	var oob *OutOfBoundsError
	if err := <-errc; !errors.As(err, &oob) {
		t.Fatalf("expected OutOfBoundsError, got %v", err)
	}
}

func TestStreamCancellationDiscardsOpenBuffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan types.Event)

	bufs, errc := Stream(ctx, Config{Width: 4, Height: 4, FPS: 2}, events)
	events <- types.Event{X: 0, Y: 0, T: 0, Polarity: 1}
	cancel()

	for range bufs {
		t.Fatal("cancelled stream emitted a buffer")
	}
	if err := <-errc; err != nil {
		t.Fatalf("unexpected error after cancellation: %v", err)
	}
}
