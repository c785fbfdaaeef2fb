package output

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RunTimestamp names output artifacts for one conversion run.
func RunTimestamp() string {
	return time.Now().Format("20060102_150405")
}

// WriteMetadata saves a stream metadata message (start/end payloads)
// as pretty-printed JSON under outputDir.
func WriteMetadata(outputDir string, runTimestamp string, kind string, meta map[string]any) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s.json", runTimestamp, kind))
	data, err := json.MarshalIndent(NormalizeJSONValue(meta), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, append(data, '\n'), 0o644)
}

// WriteSummary saves the conversion summary next to the video output.
func WriteSummary(path string, summary map[string]any) error {
	data, err := json.MarshalIndent(NormalizeJSONValue(summary), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// NormalizeJSONValue rewrites CBOR-decoded values into shapes the JSON
// encoder accepts: non-string map keys are stringified and raw byte
// strings become base64.
func NormalizeJSONValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = NormalizeJSONValue(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = NormalizeJSONValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = NormalizeJSONValue(item)
		}
		return out
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	default:
		return v
	}
}
