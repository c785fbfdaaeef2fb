package output

import (
	"fmt"
	"os"
	"path/filepath"

	vidio "github.com/AlexEidt/Vidio"
)

// VideoWriter encodes rendered RGBA frames into a video container.
// Frames go to a hidden partial file in the target directory; Close
// renames it into place once the stream is complete, so a failed or
// aborted conversion never leaves a file at the final path.
type VideoWriter struct {
	path    string
	partial string
	writer  *vidio.VideoWriter
	frames  int
}

// NewVideoWriter opens the encoder for the given geometry and frame
// rate. The container format follows the output path's extension.
func NewVideoWriter(path string, width, height, fps int) (*VideoWriter, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("invalid video geometry %dx%d", width, height)
	}
	if fps < 1 {
		return nil, fmt.Errorf("invalid frame rate %d", fps)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	partial := PartialPath(path)
	writer, err := vidio.NewVideoWriter(partial, width, height, &vidio.Options{
		FPS: float64(fps),
	})
	if err != nil {
		return nil, fmt.Errorf("open video encoder: %w", err)
	}
	return &VideoWriter{
		path:    path,
		partial: partial,
		writer:  writer,
	}, nil
}

// WriteFrame appends one RGBA frame (width*height*4 bytes, row-major).
func (w *VideoWriter) WriteFrame(pix []byte) error {
	if err := w.writer.Write(pix); err != nil {
		return fmt.Errorf("encode frame %d: %w", w.frames, err)
	}
	w.frames++
	return nil
}

// Frames returns the number of frames written so far.
func (w *VideoWriter) Frames() int {
	return w.frames
}

// Close finalizes the encoder and moves the file to its final path.
// A writer that never received a frame removes the partial file and
// produces no output.
func (w *VideoWriter) Close() error {
	w.writer.Close()
	if w.frames == 0 {
		return os.Remove(w.partial)
	}
	if err := os.Rename(w.partial, w.path); err != nil {
		_ = os.Remove(w.partial)
		return fmt.Errorf("finalize video: %w", err)
	}
	return nil
}

// Abort discards the partial file after a pipeline failure.
func (w *VideoWriter) Abort() {
	w.writer.Close()
	_ = os.Remove(w.partial)
}

// PartialPath returns the in-progress name for an output path. The
// extension is preserved so the encoder still derives the container
// format from it.
func PartialPath(path string) string {
	return filepath.Join(filepath.Dir(path), ".partial-"+filepath.Base(path))
}
