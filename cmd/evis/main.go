package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"evisualiser-go/internal/accumulate"
	"evisualiser-go/internal/config"
	"evisualiser-go/internal/ingest"
	"evisualiser-go/internal/output"
	"evisualiser-go/internal/render"
	"evisualiser-go/internal/server"
	"evisualiser-go/internal/simulator"
	"evisualiser-go/internal/types"
)

type metrics struct {
	rawMessages     atomic.Uint64
	eventMessages   atomic.Uint64
	metaMessages    atomic.Uint64
	eventsTotal     atomic.Uint64
	framesEncoded   atomic.Uint64
	framesBroadcast atomic.Uint64
	encodeCount     atomic.Uint64
	encodeNanos     atomic.Uint64
	firstT          atomic.Int64
	lastT           atomic.Int64
}

func (m *metrics) snapshot() map[string]any {
	return map[string]any{
		"raw_messages_total":     m.rawMessages.Load(),
		"event_messages_total":   m.eventMessages.Load(),
		"meta_messages_total":    m.metaMessages.Load(),
		"events_total":           m.eventsTotal.Load(),
		"frames_encoded_total":   m.framesEncoded.Load(),
		"frames_broadcast_total": m.framesBroadcast.Load(),
		"encode_total":           m.encodeCount.Load(),
		"encode_nanos_total":     m.encodeNanos.Load(),
	}
}

func main() {
	var (
		input          = flag.String("input", "", "Path to a captured raw event log to convert")
		endpoint       = flag.String("endpoint", "", "ZMQ endpoint of a live event stream (e.g. tcp://localhost:31001)")
		debug          = flag.Bool("debug", false, "Run with simulated events")
		debugEventRate = flag.Float64("debug-event-rate", 100000, "Simulated event rate (events/sec)")
		width          = flag.Int("width", 128, "Sensor width in pixels")
		height         = flag.Int("height", 128, "Sensor height in pixels")
		fps            = flag.Int("fps", 25, "Output video frame rate")
		modeFlag       = flag.String("mode", "polarity", "Render mode: polarity or magnitude")
		clamp          = flag.Int("clamp", 1, "Per-pixel event count that saturates a channel")
		countOnly      = flag.Bool("count-only", false, "Accumulate event counts, ignoring polarity")
		out            = flag.String("output", "output.mp4", "Output video path")
		outputDir      = flag.String("output-dir", "output", "Directory for stream metadata files")
		workers        = flag.Int("workers", 4, "Number of render workers")
		previewPort    = flag.Int("preview-port", 0, "HTTP port for the live preview (0 disables)")
		uiRate         = flag.Duration("ui-rate", 500*time.Millisecond, "Preview update interval")
		rawLogEnabled  = flag.Bool("raw-log", false, "Capture raw ingest payloads to disk")
		rawLogDir      = flag.String("raw-log-dir", "rawlog", "Directory for raw ingest captures")
		ingestLogEvery = flag.Int("ingest-log-every", 100, "Log every Nth ingest error")
		ingestFallback = flag.Bool("ingest-fallback", false, "Fall back to the simulator when ingest fails")
	)
	flag.Parse()

	mode, err := render.ParseMode(*modeFlag)
	if err != nil {
		log.Fatalf("invalid -mode: %v", err)
	}

	cfg := config.AppConfig{
		Width:          *width,
		Height:         *height,
		FPS:            *fps,
		Mode:           string(mode),
		Clamp:          *clamp,
		CountOnly:      *countOnly,
		Workers:        *workers,
		Input:          *input,
		Endpoint:       *endpoint,
		OutputPath:     *out,
		OutputDir:      *outputDir,
		Debug:          *debug,
		DebugEventRate: *debugEventRate,
		PreviewPort:    *previewPort,
		UIRate:         *uiRate,
		RawLogEnabled:  *rawLogEnabled,
		RawLogDir:      *rawLogDir,
		IngestLogEvery: *ingestLogEvery,
		IngestFallback: *ingestFallback,
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	raw, err := openSource(ctx, cfg)
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}

	// Geometry can arrive in the stream's start message; wait for it
	// before sizing the accumulator.
	raw, sensorW, sensorH := resolveGeometry(raw, cfg.Width, cfg.Height)
	if sensorW != cfg.Width || sensorH != cfg.Height {
		log.Printf("using %dx%d sensor geometry from stream metadata", sensorW, sensorH)
		cfg.Width = sensorW
		cfg.Height = sensorH
	}

	var m metrics
	uiMessages := make(chan any, 16)
	var latestMu sync.Mutex
	var latestPreview *types.PreviewFrame
	var stageMu sync.Mutex
	stage := "ingest"
	setStage := func(s string) {
		stageMu.Lock()
		stage = s
		stageMu.Unlock()
	}

	if cfg.PreviewPort > 0 {
		statusFn := func() map[string]any {
			stageMu.Lock()
			s := stage
			stageMu.Unlock()
			payload := map[string]any{"type": "status", "stage": s}
			metricsPayload := m.snapshot()
			metricsPayload["ingest_decode_failures_total"] = ingest.DecodeFailures()
			decodeCount, decodeNanos := ingest.DecodeTiming()
			metricsPayload["ingest_decode_total"] = decodeCount
			metricsPayload["ingest_decode_nanos_total"] = decodeNanos
			payload["metrics"] = metricsPayload
			return payload
		}
		snapshotFn := func() any {
			latestMu.Lock()
			defer latestMu.Unlock()
			if latestPreview == nil {
				return nil
			}
			return *latestPreview
		}
		go func() {
			log.Printf("preview at http://localhost:%d", cfg.PreviewPort)
			if err := server.Run(ctx, cfg, uiMessages, statusFn, snapshotFn); err != nil {
				log.Printf("preview server stopped: %v", err)
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snapshot := m.snapshot()
				log.Printf("pipeline stats: events=%v frames=%v decode_failures=%v",
					snapshot["events_total"],
					snapshot["frames_encoded_total"],
					ingest.DecodeFailures(),
				)
			}
		}
	}()

	// Demultiplex ingest messages: metadata goes to disk, events feed
	// the accumulator. An end message terminates the conversion.
	events := make(chan types.Event, 4096)
	runTimestamp := output.RunTimestamp()
	go func() {
		defer close(events)
		for msg := range raw {
			m.rawMessages.Add(1)
			switch msg.Type {
			case "events":
				m.eventMessages.Add(1)
				setStage("accumulating")
				for _, ev := range msg.Events {
					m.eventsTotal.Add(1)
					// firstT stores T+1 so a first event at t=0 still
					// marks the field as set.
					m.firstT.CompareAndSwap(0, ev.T+1)
					m.lastT.Store(ev.T)
					select {
					case <-ctx.Done():
						return
					case events <- ev:
					}
				}
			case "start", "end":
				m.metaMessages.Add(1)
				if err := output.WriteMetadata(cfg.OutputDir, runTimestamp, msg.Type, msg.Meta); err != nil {
					log.Printf("metadata write failed: %v", err)
				}
				if msg.Type == "end" {
					return
				}
			}
		}
	}()

	accCfg := accumulate.Config{
		Width:     cfg.Width,
		Height:    cfg.Height,
		FPS:       cfg.FPS,
		CountOnly: cfg.CountOnly,
	}
	renderCfg := render.Config{Mode: mode, Clamp: int32(cfg.Clamp)}

	buffers, accErrs := accumulate.Stream(ctx, accCfg, events)
	frames := render.Pool(ctx, cfg.Workers, buffers, renderCfg)

	var videoWriter *output.VideoWriter
	lastPreview := time.Time{}
	for frame := range frames {
		if videoWriter == nil {
			videoWriter, err = output.NewVideoWriter(cfg.OutputPath, cfg.Width, cfg.Height, cfg.FPS)
			if err != nil {
				log.Fatalf("encoding failed: %v", err)
			}
			setStage("encoding")
		}
		start := time.Now()
		err := videoWriter.WriteFrame(frame.Pix)
		m.encodeCount.Add(1)
		m.encodeNanos.Add(uint64(time.Since(start).Nanoseconds()))
		if err != nil {
			videoWriter.Abort()
			log.Fatalf("encoding failed: %v", err)
		}
		m.framesEncoded.Add(1)

		if cfg.PreviewPort > 0 && time.Since(lastPreview) >= cfg.UIRate {
			lastPreview = time.Now()
			broadcastPreview(frame, uiMessages, &m, &latestMu, &latestPreview)
		}
	}

	if err := <-accErrs; err != nil {
		if videoWriter != nil {
			videoWriter.Abort()
		}
		log.Fatalf("accumulation failed: %v", err)
	}
	if ctx.Err() != nil {
		if videoWriter != nil {
			videoWriter.Abort()
		}
		log.Printf("conversion cancelled; partial output discarded")
		return
	}

	if videoWriter == nil {
		log.Printf("no events received; no video written")
		return
	}

	frameCount := videoWriter.Frames()
	if err := videoWriter.Close(); err != nil {
		log.Fatalf("encoding failed: %v", err)
	}

	span := m.lastT.Load() - (m.firstT.Load() - 1)
	summary := map[string]any{
		"output":        cfg.OutputPath,
		"frames":        frameCount,
		"events":        m.eventsTotal.Load(),
		"span_us":       span,
		"fps":           cfg.FPS,
		"bin_width_us":  1000000 / cfg.FPS,
		"mode":          cfg.Mode,
		"clamp":         cfg.Clamp,
		"width":         cfg.Width,
		"height":        cfg.Height,
		"run_timestamp": runTimestamp,
	}
	if err := output.WriteSummary(cfg.OutputPath+".json", summary); err != nil {
		log.Printf("summary write failed: %v", err)
	}
	log.Printf("wrote %d frames (%d events, %.3fs span) to %s",
		frameCount, m.eventsTotal.Load(), float64(span)/1e6, cfg.OutputPath)
}

// openSource picks the event source: a captured raw log, a live ZMQ
// stream, or the simulator.
func openSource(ctx context.Context, cfg config.AppConfig) (<-chan types.RawMessage, error) {
	switch {
	case cfg.Input != "":
		return ingest.ReadRawLog(ctx, cfg.Input, cfg.IngestLogEvery)
	case cfg.Debug:
		return simulator.Stream(ctx, cfg.Width, cfg.Height, cfg.DebugEventRate), nil
	case cfg.Endpoint != "":
		var recorder ingest.RawRecorder
		if cfg.RawLogEnabled {
			writer, err := output.NewRawLogWriter(cfg.RawLogDir, "raw_events")
			if err != nil {
				return nil, fmt.Errorf("start raw log: %w", err)
			}
			recorder = writer
			go func() {
				<-ctx.Done()
				if err := writer.Close(); err != nil {
					log.Printf("raw log close failed: %v", err)
				}
			}()
		}
		stream, err := ingest.StreamWithLogEveryAndRecorder(ctx, cfg.Endpoint, cfg.IngestLogEvery, recorder)
		if err != nil {
			if cfg.IngestFallback {
				log.Printf("failed to start ingest: %v; falling back to simulator", err)
				return simulator.Stream(ctx, cfg.Width, cfg.Height, cfg.DebugEventRate), nil
			}
			return nil, err
		}
		return stream, nil
	default:
		return nil, fmt.Errorf("one of -input, -endpoint or -debug is required")
	}
}

// resolveGeometry consumes messages until the sensor geometry is known,
// either from a start message or by falling back to the flag values at
// the first events message, then replays what it consumed.
func resolveGeometry(raw <-chan types.RawMessage, width, height int) (<-chan types.RawMessage, int, int) {
	var buffered []types.RawMessage
	for msg := range raw {
		buffered = append(buffered, msg)
		if msg.Type == "start" {
			if w, h, ok := metaGeometry(msg.Meta); ok {
				width, height = w, h
				break
			}
			continue
		}
		if msg.Type == "events" {
			break
		}
	}

	out := make(chan types.RawMessage, len(buffered))
	go func() {
		defer close(out)
		for _, msg := range buffered {
			out <- msg
		}
		for msg := range raw {
			out <- msg
		}
	}()
	return out, width, height
}

func metaGeometry(meta map[string]any) (int, int, bool) {
	norm, ok := output.NormalizeJSONValue(meta).(map[string]any)
	if !ok {
		return 0, 0, false
	}
	w, err := toInt(norm["width"])
	if err != nil {
		return 0, 0, false
	}
	h, err := toInt(norm["height"])
	if err != nil {
		return 0, 0, false
	}
	if w < 1 || h < 1 {
		return 0, 0, false
	}
	return w, h, true
}

func broadcastPreview(frame render.Frame, uiMessages chan any, m *metrics, latestMu *sync.Mutex, latestPreview **types.PreviewFrame) {
	data, err := render.EncodePNG(frame)
	if err != nil {
		log.Printf("preview encode failed: %v", err)
		return
	}
	preview := types.PreviewFrame{
		Type:   "frame",
		Window: frame.Window,
		Width:  frame.Width,
		Height: frame.Height,
		PNG:    base64.StdEncoding.EncodeToString(data),
	}
	latestMu.Lock()
	*latestPreview = &preview
	latestMu.Unlock()
	select {
	case uiMessages <- preview:
		m.framesBroadcast.Add(1)
	default:
	}
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
	case float32:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}
