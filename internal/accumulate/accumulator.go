package accumulate

import (
	"fmt"

	"evisualiser-go/internal/types"
)

const microsPerSecond = 1_000_000

// Config fixes the sensor geometry and the output frame rate for one
// conversion run.
type Config struct {
	Width  int
	Height int
	FPS    int
	// CountOnly accumulates +1 per event regardless of polarity.
	CountOnly bool
}

// Buffer is one sealed accumulation window: a dense row-major grid of
// signed per-pixel sums. Once sealed a Buffer is never written again
// and is safe to hand across goroutines.
type Buffer struct {
	Window int
	Width  int
	Height int
	Counts []int32
}

// At returns the accumulated value at (x, y).
func (b Buffer) At(x, y int) int32 {
	return b.Counts[y*b.Width+x]
}

// OutOfBoundsError reports an event whose coordinates fall outside the
// declared sensor geometry. Processing must stop; no frame is produced
// for the offending window.
type OutOfBoundsError struct {
	Event  types.Event
	Window int
	Width  int
	Height int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("event (%d,%d) t=%d outside %dx%d sensor in window %d",
		e.Event.X, e.Event.Y, e.Event.T, e.Width, e.Height, e.Window)
}

// NonMonotonicError reports a timestamp regression in the source.
type NonMonotonicError struct {
	T      int64
	Prev   int64
	Window int
}

func (e *NonMonotonicError) Error() string {
	return fmt.Sprintf("timestamp %d after %d in window %d: source is not time-ordered",
		e.T, e.Prev, e.Window)
}

// Accumulator folds a time-ordered event stream into sealed window
// buffers. It owns a single in-flight count grid; sealing copies the
// counts out and resets the grid, so the slot is reused across windows.
type Accumulator struct {
	cfg      Config
	binWidth int64
	t0       int64
	prev     int64
	window   int
	started  bool
	counts   []int32
}

// New validates the configuration and returns an empty accumulator.
// The bin width is 1e6/fps microseconds, by integer division, so it is
// fixed for a given fps.
func New(cfg Config) (*Accumulator, error) {
	if cfg.Width < 1 || cfg.Height < 1 {
		return nil, fmt.Errorf("invalid sensor geometry %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS < 1 || cfg.FPS > microsPerSecond {
		return nil, fmt.Errorf("invalid frame rate %d", cfg.FPS)
	}
	return &Accumulator{
		cfg:      cfg,
		binWidth: int64(microsPerSecond / cfg.FPS),
		counts:   make([]int32, cfg.Width*cfg.Height),
	}, nil
}

// BinWidth returns the window duration in microseconds.
func (a *Accumulator) BinWidth() int64 {
	return a.binWidth
}

// Windows returns the number of windows sealed so far.
func (a *Accumulator) Windows() int {
	return a.window
}

// Add folds one event into the open window. Windows are half-open
// [t0+k*dt, t0+(k+1)*dt): an event exactly on a boundary opens the next
// window. Any windows closed by the event's timestamp are returned as
// sealed buffers, including blank ones for windows that received no
// events, so the emitted frame count tracks the recording's real-time
// span.
func (a *Accumulator) Add(ev types.Event) ([]Buffer, error) {
	if !a.started {
		a.t0 = ev.T
		a.prev = ev.T
		a.started = true
	}
	if ev.T < a.prev {
		return nil, &NonMonotonicError{T: ev.T, Prev: a.prev, Window: a.window}
	}
	a.prev = ev.T
	if ev.X < 0 || ev.X >= a.cfg.Width || ev.Y < 0 || ev.Y >= a.cfg.Height {
		return nil, &OutOfBoundsError{
			Event:  ev,
			Window: a.window,
			Width:  a.cfg.Width,
			Height: a.cfg.Height,
		}
	}

	var sealed []Buffer
	for ev.T >= a.t0+int64(a.window+1)*a.binWidth {
		sealed = append(sealed, a.seal())
	}

	if a.cfg.CountOnly {
		a.counts[ev.Y*a.cfg.Width+ev.X]++
	} else {
		a.counts[ev.Y*a.cfg.Width+ev.X] += int32(ev.Polarity)
	}
	return sealed, nil
}

// Flush seals the final open window after the last event. An
// accumulator that never saw an event flushes to nothing: an empty
// stream produces zero frames.
func (a *Accumulator) Flush() []Buffer {
	if !a.started {
		return nil
	}
	return []Buffer{a.seal()}
}

func (a *Accumulator) seal() Buffer {
	counts := make([]int32, len(a.counts))
	copy(counts, a.counts)
	buf := Buffer{
		Window: a.window,
		Width:  a.cfg.Width,
		Height: a.cfg.Height,
		Counts: counts,
	}
	a.window++
	for i := range a.counts {
		a.counts[i] = 0
	}
	return buf
}
