package render

import (
	"context"
	"sync"

	"evisualiser-go/internal/accumulate"
)

// Pool renders sealed buffers on a worker pool and emits frames in
// window order. Rendering is independent per buffer, so workers race
// freely; the gather stage holds out-of-order results until the next
// expected window arrives, because the video container downstream is
// ordered.
func Pool(ctx context.Context, workers int, in <-chan accumulate.Buffer, cfg Config) <-chan Frame {
	if workers < 1 {
		workers = 1
	}

	rendered := make(chan Frame, workers)
	out := make(chan Frame, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for buf := range in {
				frame := Render(buf, cfg)
				select {
				case <-ctx.Done():
					return
				case rendered <- frame:
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(rendered)
	}()

	go func() {
		defer close(out)
		pending := make(map[int]Frame)
		next := 0
		for frame := range rendered {
			pending[frame.Window] = frame
			for {
				ready, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				select {
				case <-ctx.Done():
					return
				case out <- ready:
				}
				next++
			}
		}
	}()

	return out
}
