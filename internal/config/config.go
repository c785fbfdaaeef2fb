package config

import "time"

type AppConfig struct {
	Width          int
	Height         int
	FPS            int
	Mode           string
	Clamp          int
	CountOnly      bool
	Workers        int
	Input          string
	Endpoint       string
	OutputPath     string
	OutputDir      string
	Debug          bool
	DebugEventRate float64
	PreviewPort    int
	UIRate         time.Duration
	RawLogEnabled  bool
	RawLogDir      string
	IngestLogEvery int
	IngestFallback bool
}
