package accumulate

import (
	"context"

	"evisualiser-go/internal/types"
)

// Stream runs the accumulator over a channel of events and emits sealed
// buffers in window order. The error channel carries at most one error;
// it is closed together with the buffer channel when the fold ends.
// On cancellation the open buffer is discarded, never emitted.
func Stream(ctx context.Context, cfg Config, events <-chan types.Event) (<-chan Buffer, <-chan error) {
	out := make(chan Buffer, 16)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		acc, err := New(cfg)
		if err != nil {
			errc <- err
			return
		}

		emit := func(buf Buffer) bool {
			select {
			case <-ctx.Done():
				return false
			case out <- buf:
				return true
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					for _, buf := range acc.Flush() {
						if !emit(buf) {
							return
						}
					}
					return
				}
				sealed, err := acc.Add(ev)
				if err != nil {
					errc <- err
					return
				}
				for _, buf := range sealed {
					if !emit(buf) {
						return
					}
				}
			}
		}
	}()

	return out, errc
}
