package teximage

import (
	"os"
	"path/filepath"
	"testing"
)

type fakeReader struct {
	spec ImageSpec
	err  error
}

func (f fakeReader) Open(path string) (ImageSpec, error)       { return f.spec, f.err }
func (f fakeReader) ReadImage(string, PixelKind, bool, []float32) error { return nil }
func (f fakeReader) FormatName(string) (string, error)          { return "", nil }
func (f fakeReader) Close(string) error                         { return nil }

type fakeVolumeReader struct {
	has  bool
	res  VolumeResolution
	err  error
}

func (f fakeVolumeReader) HasGrid(string, string) (bool, error) { return f.has, f.err }
func (f fakeVolumeReader) Resolution(string, string) (VolumeResolution, error) {
	return f.res, nil
}
func (f fakeVolumeReader) LoadPreprocess(string, string, float32, bool) ([]int32, int, error) {
	return nil, 0, nil
}
func (f fakeVolumeReader) LoadImage(string, string, []int32, int, bool, []float32) error {
	return nil
}

type fakeBuiltins struct {
	meta ImageMetaData
	err  error
}

func (f fakeBuiltins) Info(string, any) (ImageMetaData, error) { return f.meta, f.err }
func (f fakeBuiltins) PixelsU8(string, any, int, []byte, bool, bool) (int, error) {
	return 0, nil
}
func (f fakeBuiltins) PixelsF32(string, any, int, []float32, bool, bool) (int, error) {
	return 0, nil
}

type fakeColorspace struct {
	detected string
	dataSet  map[string]bool
}

func (f fakeColorspace) DetectKnown(colorspace, format string, isHDR bool) string {
	if f.detected != "" {
		return f.detected
	}
	return colorspace
}
func (f fakeColorspace) IsData(colorspace string) bool { return f.dataSet[colorspace] }
func (f fakeColorspace) ToSceneLinear(string, []float32, int, int, int, int, bool) error {
	return nil
}

func writeTempFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tex.png")
	if err := os.WriteFile(path, []byte("fake"), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestProbeFileMissing(t *testing.T) {
	id := ImageIdentity{Path: "/nonexistent/path/for/sure.png"}
	_, err := probe(id, fakeReader{}, nil, nil, nil, 0)
	if err != ErrFileMissing {
		t.Fatalf("expected ErrFileMissing, got %v", err)
	}
}

func TestProbeDirectoryRejected(t *testing.T) {
	dir := t.TempDir()
	id := ImageIdentity{Path: dir}
	_, err := probe(id, fakeReader{}, nil, nil, nil, 0)
	if err != ErrFileIsDirectory {
		t.Fatalf("expected ErrFileIsDirectory, got %v", err)
	}
}

func TestProbeImageRGBRaw(t *testing.T) {
	path := writeTempFile(t)
	id := ImageIdentity{Path: path, Colorspace: "raw"}
	reader := fakeReader{spec: ImageSpec{Width: 4, Height: 4, Channels: 3}}
	cs := fakeColorspace{detected: "raw"}
	m, err := probe(id, reader, nil, nil, cs, 0)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if m.Kind != PixelU8x4 || m.Channels != 3 {
		t.Fatalf("expected PixelU8x4/3 channels, got %v/%d", m.Kind, m.Channels)
	}
	if m.CompressAsSRGB {
		t.Fatal("raw colorspace must not set CompressAsSRGB")
	}
}

func TestProbeImageSRGB8Bit(t *testing.T) {
	path := writeTempFile(t)
	id := ImageIdentity{Path: path, Colorspace: "sRGB"}
	reader := fakeReader{spec: ImageSpec{Width: 4, Height: 4, Channels: 4}}
	cs := fakeColorspace{detected: "sRGB"}
	m, err := probe(id, reader, nil, nil, cs, 0)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if !m.CompressAsSRGB {
		t.Fatal("expected CompressAsSRGB set for sRGB colorspace")
	}
	if m.Kind != PixelU8x4 {
		t.Fatalf("expected kind unchanged (PixelU8x4), got %v", m.Kind)
	}
}

func TestProbeImagePromotesU16ToHalfForNamedTransform(t *testing.T) {
	path := writeTempFile(t)
	id := ImageIdentity{Path: path, Colorspace: "Linear Rec.709"}
	reader := fakeReader{spec: ImageSpec{Width: 4, Height: 4, Channels: 4, FormatIsUnsignedShort: true}}
	cs := fakeColorspace{detected: "Linear Rec.709"}
	m, err := probe(id, reader, nil, nil, cs, 0)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if m.Kind != PixelF16x4 {
		t.Fatalf("expected promotion to PixelF16x4, got %v", m.Kind)
	}
	if !m.IsHalf || !m.IsFloat {
		t.Fatal("expected IsHalf and IsFloat set after promotion")
	}
}

func TestProbeVolumeVectorGridName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smoke.vdb")
	if err := os.WriteFile(path, []byte("fake"), 0o644); err != nil {
		t.Fatalf("write temp vdb: %v", err)
	}
	id := ImageIdentity{Path: path, GridName: "velocity", Colorspace: "raw"}
	vol := fakeVolumeReader{has: true, res: VolumeResolution{X: 8, Y: 8, Z: 8}}
	cs := fakeColorspace{detected: "raw"}
	m, err := probe(id, fakeReader{}, vol, nil, cs, 0)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if m.Kind != PixelF32x4 || m.Channels != 4 {
		t.Fatalf("expected vector grid to be F32x4/4, got %v/%d", m.Kind, m.Channels)
	}
}

func TestProbeVolumeGridMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smoke.vdb")
	if err := os.WriteFile(path, []byte("fake"), 0o644); err != nil {
		t.Fatalf("write temp vdb: %v", err)
	}
	id := ImageIdentity{Path: path, GridName: "density"}
	vol := fakeVolumeReader{has: false}
	_, err := probe(id, fakeReader{}, vol, nil, nil, 0)
	if err != ErrGridMissing {
		t.Fatalf("expected ErrGridMissing, got %v", err)
	}
}

func TestProbeBuiltinSkipsFilesystem(t *testing.T) {
	id := ImageIdentity{BuiltinData: &struct{}{}}
	builtins := fakeBuiltins{meta: ImageMetaData{Width: 2, Height: 2, Channels: 3, IsFloat: true}}
	m, err := probe(id, fakeReader{}, nil, builtins, nil, 0)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if m.Kind != PixelF32x4 {
		t.Fatalf("expected PixelF32x4 for float builtin, got %v", m.Kind)
	}
}
