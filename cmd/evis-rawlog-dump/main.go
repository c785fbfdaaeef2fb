package main

import (
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"evisualiser-go/internal/output"
)

const rawLogMagic = "EVISRAW1"

// evis-rawlog-dump prints decoded records from a raw event capture.
func main() {
	var (
		path  = flag.String("path", "", "Path to a raw capture .bin file")
		limit = flag.Int("limit", 1, "Number of records to dump (0 for all)")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("open raw log: %v", err)
	}
	defer f.Close()

	header := make([]byte, len(rawLogMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("read magic: %v", err)
	}
	if string(header) != rawLogMagic {
		log.Fatalf("unexpected raw log magic %q", string(header))
	}

	count := 0
	for {
		if *limit > 0 && count >= *limit {
			return
		}
		var meta [12]byte
		if _, err := io.ReadFull(f, meta[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return
			}
			log.Fatalf("read record header: %v", err)
		}
		ts := int64(binary.LittleEndian.Uint64(meta[:8]))
		size := binary.LittleEndian.Uint32(meta[8:12])
		if size == 0 {
			log.Printf("record %d: empty payload", count)
			continue
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(f, payload); err != nil {
			log.Fatalf("read payload: %v", err)
		}

		var decoded any
		if err := cbor.Unmarshal(payload, &decoded); err != nil {
			log.Printf("record %d: CBOR decode error: %v", count, err)
			continue
		}

		normalized := output.NormalizeJSONValue(decoded)
		summarize(normalized)
		pretty, err := json.MarshalIndent(normalized, "", "  ")
		if err != nil {
			log.Printf("record %d: JSON encode error: %v", count, err)
			continue
		}

		log.Printf("record %d captured=%s size=%d", count, time.Unix(0, ts).Format(time.RFC3339Nano), size)
		fmt.Println(string(pretty))
		count++
	}
}

// summarize replaces large event arrays with a count so dumps of dense
// batches stay readable.
func summarize(value any) {
	msg, ok := value.(map[string]any)
	if !ok {
		return
	}
	events, ok := msg["events"].([]any)
	if !ok || len(events) <= 8 {
		return
	}
	msg["events"] = fmt.Sprintf("[%d events, first %v, last %v]",
		len(events), events[0], events[len(events)-1])
}
