package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"evisualiser-go/internal/ingest"
	"evisualiser-go/internal/output"
)

// evis-record captures a live event stream to a raw log file that evis
// can convert later with -input.
func main() {
	var (
		endpoint = flag.String("endpoint", "tcp://localhost:31001", "ZMQ endpoint of the event stream")
		dir      = flag.String("dir", "rawlog", "Directory for capture files")
		prefix   = flag.String("prefix", "raw_events", "Capture file name prefix")
		logEvery = flag.Int("ingest-log-every", 100, "Log every Nth ingest error")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	writer, err := output.NewRawLogWriter(*dir, *prefix)
	if err != nil {
		log.Fatalf("start raw log: %v", err)
	}
	log.Printf("recording %s to %s", *endpoint, writer.Path())

	stream, err := ingest.StreamWithLogEveryAndRecorder(ctx, *endpoint, *logEvery, writer)
	if err != nil {
		_ = writer.Close()
		log.Fatalf("start ingest: %v", err)
	}

	var messages, events uint64
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			log.Printf("captured %d messages (%d events)", messages, events)
		case msg, ok := <-stream:
			if !ok {
				break loop
			}
			messages++
			events += uint64(len(msg.Events))
			if msg.Type == "end" {
				log.Printf("stream ended")
				break loop
			}
		}
	}

	if err := writer.Close(); err != nil {
		log.Fatalf("close raw log: %v", err)
	}
	log.Printf("recorded %d messages (%d events) to %s", messages, events, writer.Path())
}
