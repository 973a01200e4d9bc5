package imageio

import (
	"bytes"
	stdimage "image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/teximage"
)

func writeTestPNG(t *testing.T, w, h int, fill color.Color) string {
	t.Helper()
	img := stdimage.NewNRGBA(stdimage.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	path := filepath.Join(t.TempDir(), "test.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
	return path
}

func TestOpenReportsDimensionsAndChannels(t *testing.T) {
	path := writeTestPNG(t, 4, 2, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	r := New()
	spec, err := r.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if spec.Width != 4 || spec.Height != 2 {
		t.Fatalf("expected 4x2, got %dx%d", spec.Width, spec.Height)
	}
	if spec.Channels != 4 {
		t.Fatalf("expected 4 channels for NRGBA with alpha, got %d", spec.Channels)
	}
}

func TestReadImageBottomUpOrigin(t *testing.T) {
	// top row red, bottom row blue
	img := stdimage.NewNRGBA(stdimage.Rect(0, 0, 1, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(0, 1, color.NRGBA{B: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "rows.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := New()
	dst := make([]float32, 1*2*4)
	if err := r.ReadImage(path, teximage.PixelU8x4, false, dst); err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	// source row 0 lands at dstY=1, so red should be at index 4..7
	if dst[4] < 0.9 {
		t.Fatalf("expected top source row (red) to land at bottom-up dst row 1, got %v", dst[4:8])
	}
	if dst[2] < 0.9 {
		t.Fatalf("expected bottom source row (blue) to land at dst row 0, got %v", dst[0:4])
	}
}

func TestFormatNameReportsPNG(t *testing.T) {
	path := writeTestPNG(t, 2, 2, color.NRGBA{A: 255})
	r := New()
	format, err := r.FormatName(path)
	if err != nil {
		t.Fatalf("FormatName: %v", err)
	}
	if format != "png" {
		t.Fatalf("expected png, got %q", format)
	}
}

func TestCloseEvictsCache(t *testing.T) {
	path := writeTestPNG(t, 2, 2, color.NRGBA{A: 255})
	r := New()
	if _, err := r.Open(path); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := r.Close(path); err != nil {
		t.Fatalf("Close: %v", err)
	}
	r.mu.Lock()
	_, cached := r.cache[path]
	r.mu.Unlock()
	if cached {
		t.Fatal("expected cache entry evicted after Close")
	}
}
