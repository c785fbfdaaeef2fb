package ingest

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"

	"evisualiser-go/internal/types"
)

// RawRecorder receives every raw wire payload before decoding, for
// capture-and-replay.
type RawRecorder interface {
	Record(payload []byte) error
}

var (
	decodeFailures atomic.Uint64
	decodeCount    atomic.Uint64
	decodeNanos    atomic.Uint64
)

// DecodeFailures returns the number of messages dropped by the decoder.
func DecodeFailures() uint64 {
	return decodeFailures.Load()
}

// DecodeTiming returns the decode call count and cumulative nanoseconds.
func DecodeTiming() (uint64, uint64) {
	return decodeCount.Load(), decodeNanos.Load()
}

// Stream connects a ZMQ PULL socket to the endpoint and returns a
// channel of decoded messages. Expects CBOR messages shaped like:
//
//	{ "type": "start", "width": <int>, "height": <int>, ... }
//	{ "type": "events", "events": [ [x, y, t, p], ... ] }
//	{ "type": "end", ... }
func Stream(ctx context.Context, endpoint string) (<-chan types.RawMessage, error) {
	return streamWithConfig(ctx, endpoint, 1, nil)
}

func StreamWithLogEvery(ctx context.Context, endpoint string, logEvery int) (<-chan types.RawMessage, error) {
	return streamWithConfig(ctx, endpoint, logEvery, nil)
}

func StreamWithLogEveryAndRecorder(ctx context.Context, endpoint string, logEvery int, recorder RawRecorder) (<-chan types.RawMessage, error) {
	return streamWithConfig(ctx, endpoint, logEvery, recorder)
}

func streamWithConfig(ctx context.Context, endpoint string, logEvery int, recorder RawRecorder) (<-chan types.RawMessage, error) {
	if logEvery < 1 {
		logEvery = 1
	}
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, err
	}

	out := make(chan types.RawMessage, 128)
	go func() {
		defer close(out)
		defer socket.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			payload, err := socket.RecvBytes(0)
			if err != nil {
				logEveryN(logEvery, "ingest recv error: %v", err)
				continue
			}
			if recorder != nil {
				if err := recorder.Record(payload); err != nil {
					logEveryN(logEvery, "ingest raw record failed: %v", err)
				}
			}

			msg, ok := decodeMessage(payload, logEvery)
			if !ok {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- msg:
			}
		}
	}()

	return out, nil
}

func decodeMessage(payload []byte, logEvery int) (types.RawMessage, bool) {
	start := time.Now()
	defer func() {
		decodeCount.Add(1)
		decodeNanos.Add(uint64(time.Since(start).Nanoseconds()))
	}()

	var decoded map[string]any
	if err := cbor.Unmarshal(payload, &decoded); err != nil {
		decodeFailures.Add(1)
		logEveryN(logEvery, "ingest CBOR decode error: %v", err)
		return types.RawMessage{}, false
	}

	msgType, _ := decoded["type"].(string)
	switch msgType {
	case "events":
		events, err := decodeEvents(decoded["events"])
		if err != nil {
			decodeFailures.Add(1)
			logEveryN(logEvery, "ingest invalid events message: %v", err)
			return types.RawMessage{}, false
		}
		return types.RawMessage{
			Type:    "events",
			Events:  events,
			Payload: payload,
		}, true
	case "start", "end":
		return types.RawMessage{
			Type:    msgType,
			Meta:    decoded,
			Payload: payload,
		}, true
	default:
		decodeFailures.Add(1)
		logEveryN(logEvery, "ingest ignoring message type %q", msgType)
		return types.RawMessage{}, false
	}
}

func decodeEvents(value any) ([]types.Event, error) {
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("events field is %T, not an array", value)
	}

	events := make([]types.Event, 0, len(list))
	for i, item := range list {
		record, ok := item.([]any)
		if !ok || len(record) != 4 {
			return nil, fmt.Errorf("event %d is not a 4-tuple", i)
		}
		x, err := toInt(record[0])
		if err != nil {
			return nil, fmt.Errorf("event %d x: %w", i, err)
		}
		y, err := toInt(record[1])
		if err != nil {
			return nil, fmt.Errorf("event %d y: %w", i, err)
		}
		t, err := toInt64(record[2])
		if err != nil {
			return nil, fmt.Errorf("event %d t: %w", i, err)
		}
		p, err := toPolarity(record[3])
		if err != nil {
			return nil, fmt.Errorf("event %d polarity: %w", i, err)
		}
		events = append(events, types.Event{X: x, Y: y, T: t, Polarity: p})
	}
	return events, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

// toPolarity accepts the encodings seen in event-camera tooling:
// signed +-1, the 0/1 convention where 0 means OFF, and booleans.
func toPolarity(v any) (int8, error) {
	switch n := v.(type) {
	case bool:
		if n {
			return 1, nil
		}
		return -1, nil
	default:
		i, err := toInt(v)
		if err != nil {
			return 0, err
		}
		switch i {
		case 1:
			return 1, nil
		case 0, -1:
			return -1, nil
		default:
			return 0, fmt.Errorf("invalid polarity %d", i)
		}
	}
}

var logCounter int

func logEveryN(n int, format string, args ...any) {
	logCounter++
	if logCounter%n == 0 {
		log.Printf(format, args...)
	}
}
