package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"evisualiser-go/internal/accumulate"
)

// Mode selects how accumulated counts map to pixels.
type Mode string

const (
	// ModePolarity draws positive sums green and negative sums red,
	// the classic address-event visualisation convention.
	ModePolarity Mode = "polarity"
	// ModeMagnitude draws the absolute event count as grayscale.
	ModeMagnitude Mode = "magnitude"
)

// ParseMode validates a mode name from the command line.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePolarity, ModeMagnitude:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown render mode %q", s)
	}
}

// Config fixes the rendering policy for one conversion run. Clamp is
// the saturation count: a per-pixel sum of +-Clamp or beyond maps to a
// fully saturated channel. Values are scaled linearly below the clamp
// and clamped above it, never wrapped.
type Config struct {
	Mode  Mode
	Clamp int32
}

// Frame is one rendered image: row-major RGBA bytes, top-to-bottom and
// left-to-right, matching the accumulator's coordinates.
type Frame struct {
	Window int
	Width  int
	Height int
	Pix    []byte
}

// Render maps one sealed buffer to a frame. It is stateless and
// deterministic per buffer, so frames can be rendered in parallel.
func Render(buf accumulate.Buffer, cfg Config) Frame {
	clamp := cfg.Clamp
	if clamp < 1 {
		clamp = 1
	}

	pix := make([]byte, buf.Width*buf.Height*4)
	for i, v := range buf.Counts {
		o := i * 4
		switch cfg.Mode {
		case ModeMagnitude:
			m := v
			if m < 0 {
				m = -m
			}
			s := scale(m, clamp)
			pix[o] = s
			pix[o+1] = s
			pix[o+2] = s
		default:
			if v > 0 {
				pix[o+1] = scale(v, clamp)
			} else if v < 0 {
				pix[o] = scale(-v, clamp)
			}
		}
		pix[o+3] = 0xff
	}

	return Frame{
		Window: buf.Window,
		Width:  buf.Width,
		Height: buf.Height,
		Pix:    pix,
	}
}

func scale(v, clamp int32) byte {
	if v >= clamp {
		return 0xff
	}
	return byte(int64(v) * 255 / int64(clamp))
}

// EncodePNG encodes a frame for the preview stream.
func EncodePNG(f Frame) ([]byte, error) {
	img := &image.NRGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
