package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"evisualiser-go/internal/config"
)

func TestHandleConfig(t *testing.T) {
	srv := &Server{
		cfg: config.AppConfig{
			Width:      128,
			Height:     96,
			FPS:        25,
			Mode:       "polarity",
			Clamp:      3,
			OutputPath: "out.mp4",
		},
	}

	req := httptest.NewRequest("GET", "/config", nil)
	rec := httptest.NewRecorder()
	srv.handleConfig(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if payload["width"].(float64) != 128 {
		t.Fatalf("unexpected width: %v", payload["width"])
	}
	if payload["fps"].(float64) != 25 {
		t.Fatalf("unexpected fps: %v", payload["fps"])
	}
	if payload["mode"] != "polarity" {
		t.Fatalf("unexpected mode: %v", payload["mode"])
	}
}

func TestHandleStatus(t *testing.T) {
	srv := &Server{
		statusFn: func() map[string]any {
			return map[string]any{
				"stage":   "accumulating",
				"metrics": map[string]any{"frames_encoded_total": uint64(7)},
			}
		},
	}

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	srv.handleStatus(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["stage"] != "accumulating" {
		t.Fatalf("unexpected stage: %v", payload["stage"])
	}
	metrics, ok := payload["metrics"].(map[string]any)
	if !ok {
		t.Fatalf("metrics missing: %v", payload)
	}
	if metrics["ws_clients"].(float64) != 0 {
		t.Fatalf("unexpected ws_clients: %v", metrics["ws_clients"])
	}
}
