package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"evisualiser-go/internal/output"
)

func marshalMessage(t *testing.T, msg map[string]any) []byte {
	t.Helper()
	payload, err := cbor.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return payload
}

func TestDecodeEventsMessage(t *testing.T) {
	payload := marshalMessage(t, map[string]any{
		"type": "events",
		"events": []any{
			[]any{3, 7, 1500, 1},
			[]any{4, 8, 1501, 0},
			[]any{5, 9, 1502, -1},
		},
	})

	msg, ok := decodeMessage(payload, 1)
	if !ok {
		t.Fatal("decodeMessage returned ok=false")
	}
	if msg.Type != "events" {
		t.Fatalf("unexpected type: %q", msg.Type)
	}
	if len(msg.Events) != 3 {
		t.Fatalf("unexpected event count: %d", len(msg.Events))
	}

	first := msg.Events[0]
	if first.X != 3 || first.Y != 7 || first.T != 1500 || first.Polarity != 1 {
		t.Fatalf("unexpected first event: %+v", first)
	}
	// The 0/1 convention: 0 means a negative event.
	if msg.Events[1].Polarity != -1 {
		t.Fatalf("polarity 0 not mapped to -1: %+v", msg.Events[1])
	}
	if msg.Events[2].Polarity != -1 {
		t.Fatalf("polarity -1 not preserved: %+v", msg.Events[2])
	}
}

func TestDecodeStartMessageKeepsMeta(t *testing.T) {
	payload := marshalMessage(t, map[string]any{
		"type":   "start",
		"width":  128,
		"height": 128,
	})

	msg, ok := decodeMessage(payload, 1)
	if !ok {
		t.Fatal("decodeMessage returned ok=false")
	}
	if msg.Type != "start" {
		t.Fatalf("unexpected type: %q", msg.Type)
	}
	if msg.Meta["type"] != "start" {
		t.Fatalf("meta missing type: %v", msg.Meta)
	}
}

func TestDecodeRejectsMalformedEvents(t *testing.T) {
	cases := []map[string]any{
		{"type": "events", "events": []any{[]any{1, 2}}},
		{"type": "events", "events": []any{[]any{1, 2, 3, 5}}},
		{"type": "events", "events": "nope"},
		{"type": "telemetry"},
	}
	for i, msg := range cases {
		if _, ok := decodeMessage(marshalMessage(t, msg), 1); ok {
			t.Fatalf("case %d: malformed message decoded", i)
		}
	}
}

func TestDecodeCountsFailures(t *testing.T) {
	before := DecodeFailures()
	decodeMessage([]byte{0xff, 0x00}, 1)
	if DecodeFailures() != before+1 {
		t.Fatalf("decode failure not counted")
	}
}

func TestRawLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writer, err := output.NewRawLogWriter(dir, "capture")
	if err != nil {
		t.Fatalf("NewRawLogWriter: %v", err)
	}

	messages := []map[string]any{
		{"type": "start", "width": 16, "height": 16},
		{"type": "events", "events": []any{[]any{1, 2, 100, 1}}},
		{"type": "end"},
	}
	for _, msg := range messages {
		if err := writer.Record(marshalMessage(t, msg)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	path := writer.Path()
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	replayed, err := ReadRawLog(context.Background(), path, 1)
	if err != nil {
		t.Fatalf("ReadRawLog: %v", err)
	}

	var kinds []string
	for msg := range replayed {
		kinds = append(kinds, msg.Type)
		if msg.Type == "events" {
			if len(msg.Events) != 1 || msg.Events[0].T != 100 {
				t.Fatalf("unexpected replayed events: %+v", msg.Events)
			}
		}
	}
	if len(kinds) != 3 || kinds[0] != "start" || kinds[1] != "events" || kinds[2] != "end" {
		t.Fatalf("unexpected replay order: %v", kinds)
	}
}

func TestReadRawLogRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.bin")
	if err := os.WriteFile(path, []byte("NOTALOG0"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadRawLog(context.Background(), path, 1); err == nil {
		t.Fatal("expected error for bad magic")
	}
}
