package simulator

import (
	"context"
	"math"
	"math/rand"
	"time"

	"evisualiser-go/internal/types"
)

const (
	batchInterval = 10 * time.Millisecond
	orbitPeriod   = 4 * time.Second
)

// Stream produces a synthetic event-camera feed: a bright spot orbiting
// the sensor centre, emitting positive events on its leading edge and
// negative events on its trailing edge. Messages follow the ingest
// protocol (start, batches of events, no end), with timestamps on a
// simulated microsecond clock, so the feed exercises the full pipeline
// without hardware.
func Stream(ctx context.Context, width, height int, eventRate float64) <-chan types.RawMessage {
	out := make(chan types.RawMessage)
	go func() {
		defer close(out)

		select {
		case <-ctx.Done():
			return
		case out <- types.RawMessage{
			Type: "start",
			Meta: map[string]any{
				"type":   "start",
				"width":  width,
				"height": height,
				"source": "simulator",
			},
		}:
		}

		if eventRate < 1 {
			eventRate = 1
		}
		batchSize := int(eventRate * batchInterval.Seconds())
		if batchSize < 1 {
			batchSize = 1
		}

		ticker := time.NewTicker(batchInterval)
		defer ticker.Stop()

		centerX := float64(width) / 2
		centerY := float64(height) / 2
		orbit := math.Min(centerX, centerY) * 0.6
		spot := math.Max(2, math.Min(centerX, centerY)*0.15)
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))

		var simT int64
		step := batchInterval.Microseconds()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				phase := 2 * math.Pi * float64(simT%orbitPeriod.Microseconds()) / float64(orbitPeriod.Microseconds())
				cx := centerX + orbit*math.Cos(phase)
				cy := centerY + orbit*math.Sin(phase)
				// Motion direction, for splitting leading and trailing edges.
				dirX := -math.Sin(phase)
				dirY := math.Cos(phase)

				events := make([]types.Event, 0, batchSize)
				for i := 0; i < batchSize; i++ {
					angle := rng.Float64() * 2 * math.Pi
					radius := math.Abs(rng.NormFloat64()) * spot
					x := int(cx + radius*math.Cos(angle))
					y := int(cy + radius*math.Sin(angle))
					if x < 0 || x >= width || y < 0 || y >= height {
						continue
					}
					polarity := int8(-1)
					if (float64(x)-cx)*dirX+(float64(y)-cy)*dirY >= 0 {
						polarity = 1
					}
					t := simT + int64(i)*step/int64(batchSize)
					events = append(events, types.Event{X: x, Y: y, T: t, Polarity: polarity})
				}
				simT += step

				if len(events) == 0 {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case out <- types.RawMessage{Type: "events", Events: events}:
				}
			}
		}
	}()

	return out
}
