package ingest

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"evisualiser-go/internal/types"
)

const rawLogMagic = "EVISRAW1"

// ReadRawLog replays a captured raw event log as a message channel.
// The file is the capture format written by output.RawLogWriter: the
// magic string followed by records of an 8-byte capture timestamp, a
// 4-byte payload length and the raw CBOR payload. Records are decoded
// lazily, so arbitrarily large recordings replay in constant memory.
func ReadRawLog(ctx context.Context, path string, logEvery int) (<-chan types.RawMessage, error) {
	if logEvery < 1 {
		logEvery = 1
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := bufio.NewReaderSize(f, 1024*1024)
	header := make([]byte, len(rawLogMagic))
	if _, err := io.ReadFull(r, header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read raw log magic: %w", err)
	}
	if string(header) != rawLogMagic {
		_ = f.Close()
		return nil, fmt.Errorf("unexpected raw log magic %q", string(header))
	}

	out := make(chan types.RawMessage, 128)
	go func() {
		defer close(out)
		defer f.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			var meta [12]byte
			if _, err := io.ReadFull(r, meta[:]); err != nil {
				if err != io.EOF && err != io.ErrUnexpectedEOF {
					logEveryN(logEvery, "raw log read error: %v", err)
				}
				return
			}
			size := binary.LittleEndian.Uint32(meta[8:12])
			if size == 0 {
				continue
			}
			payload := make([]byte, size)
			if _, err := io.ReadFull(r, payload); err != nil {
				logEveryN(logEvery, "raw log truncated record: %v", err)
				return
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
