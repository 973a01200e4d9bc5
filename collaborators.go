package teximage

import "context"

// ImageSpec describes the shape and per-channel storage of an opened
// 2D image, as reported by an ImageReader before any pixels are read.
type ImageSpec struct {
	Width, Height, Depth int
	Channels              int
	// FormatIsFloat/FormatIsHalf/FormatIsUnsignedShort classify the
	// main pixel format; ChannelIsFloat/ChannelIsHalf/ChannelIsUnsignedShort
	// (when non-nil) override per-channel, for files with mixed
	// per-channel formats (e.g. EXR).
	FormatIsFloat         bool
	FormatIsHalf          bool
	FormatIsUnsignedShort bool
	ChannelIsFloat        []bool
	ChannelIsHalf         []bool
	ChannelIsUnsignedShort []bool

	// Colorspace is the colorspace hint embedded in the file, if any.
	Colorspace string
	// Deep reports whether the file stores deep (multi-sample-per-pixel)
	// data; the merge compositor rejects deep inputs.
	Deep bool
}

// ImageReader is the external collaborator that wraps a concrete image
// decoding library. The core never decodes file formats itself.
type ImageReader interface {
	// Open inspects path far enough to fill an ImageSpec without
	// decoding pixel data.
	Open(path string) (ImageSpec, error)
	// ReadImage decodes into dst, sized width*height*depth*channels
	// elements of the requested base kind, associating alpha
	// (premultiplying RGB by A) iff associateAlpha is set.
	ReadImage(path string, base PixelKind, associateAlpha bool, dst []float32) error
	// FormatName returns the decoder's name for the file format. The
	// core does not call it.
	FormatName(path string) (string, error)
	Close(path string) error
}

// VolumeResolution reports a volume grid's voxel dimensions.
type VolumeResolution struct {
	X, Y, Z int
}

// VolumeReader is the external collaborator wrapping the dense-grid
// (.vdb) decoder.
type VolumeReader interface {
	HasGrid(path, gridName string) (bool, error)
	Resolution(path, gridName string) (VolumeResolution, error)
	// LoadPreprocess scans the dense grid for active tiles at the given
	// isovalue and returns the tile-offset table plus the padded-tile
	// flag's resulting buffer size, without allocating the final
	// device-ready pixel array.
	LoadPreprocess(path, gridName string, isovalue float32, padded bool) (offsets []int32, size int, err error)
	// LoadImage decodes the dense grid straight-through (no
	// scanline reversal, unlike 2D) into out, honoring the
	// previously computed offsets/size/padded layout.
	LoadImage(path, gridName string, offsets []int32, size int, padded bool, out []float32) error
}

// BuiltinCallbacks is the external collaborator for host-resident
// ("builtin") pixel data that does not live on disk — e.g. a baked
// procedural texture generated by the scene itself.
type BuiltinCallbacks interface {
	// Info fills dimensions, channel count, and float/byte-ness for
	// builtin data, skipping filesystem checks entirely.
	Info(path string, data any) (ImageMetaData, error)
	// PixelsU8 copies tile's pixels as bytes into out, returning the
	// element count written.
	PixelsU8(path string, data any, tile int, out []byte, associateAlpha bool, freeCache bool) (int, error)
	// PixelsF32 copies tile's pixels as float32 into out, returning the
	// element count written.
	//
	// TODO: half-precision builtin reads (pixels_f16) and tile-indexed
	// reads are not exercised by the current design; see spec's open
	// question on the builtin callback path.
	PixelsF32(path string, data any, tile int, out []float32, associateAlpha bool, freeCache bool) (int, error)
}

// ColorSpace is the external collaborator providing colorspace
// normalization and linearization math.
type ColorSpace interface {
	// DetectKnown maps a scene/file-declared colorspace name to one the
	// core understands: "raw", "sRGB", or a named conversion it can run
	// through ToSceneLinear. format and isHDR help disambiguate
	// per-format defaults (e.g. raw JPEG vs. linear EXR).
	DetectKnown(colorspace, format string, isHDR bool) string
	// IsData reports whether colorspace names a non-color data channel
	// (normal maps, masks) that must never be gamma-converted.
	IsData(colorspace string) bool
	// ToSceneLinear converts buf (w*h*d*channels float32 elements, RGB
	// or single-channel) in place from colorspace into scene-linear.
	ToSceneLinear(colorspace string, buf []float32, w, h, d, channels int, compressAsSRGB bool) error
}

// DeviceInfo describes the fixed capabilities of a Device relevant to
// the pixel pipeline and probe (spec §6: info.type, info.has_half_images).
type DeviceInfo struct {
	Name              string
	HasHalfImages     bool
	SupportsPaddedTiles bool
	// TextureLimit is the largest single dimension the device's texture
	// path accepts; 0 means unlimited. Exceeding it triggers the Pixel
	// Pipeline's staging-buffer downscale path.
	TextureLimit int
}

// DeviceMemory is an opaque handle to one device-side allocation plus
// its reported size, used for statistics and companion-buffer bookkeeping.
type DeviceMemory struct {
	Handle any
	Size   uint64
}

// Device is the external collaborator the core treats as an allocator
// for typed device buffers; it never manages GPU kernels or command
// submission (that is out of scope).
type Device interface {
	Info() DeviceInfo
	// Alloc reserves a device buffer named name, sized to hold
	// dims.Width*Height*Depth elements of kind, and returns a handle to it.
	Alloc(name string, kind PixelKind, dims [3]int) (DeviceMemory, error)
	// CopyToDevice uploads data into mem, which must have been
	// returned by Alloc on the same Device.
	CopyToDevice(mem DeviceMemory, data []byte) error
	// Free releases a device allocation.
	Free(mem DeviceMemory) error
}

// Task is one unit of loader work the Pool executes.
type Task func(ctx context.Context) error

// Pool is the external collaborator providing the bounded worker pool
// that runs loader tasks in parallel during device_update.
type Pool interface {
	Push(t Task)
	// WaitWork blocks until every pushed task has completed (or the
	// context is cancelled) and returns the first error encountered, if any.
	WaitWork(ctx context.Context) error
}

// Progress is polled at loader entry for cooperative cancellation and
// receives coarse status updates.
type Progress interface {
	GetCancel() bool
	SetStatus(phase, detail string)
}

// noopProgress satisfies Progress for callers with nothing to report.
type noopProgress struct{}

func (noopProgress) GetCancel() bool             { return false }
func (noopProgress) SetStatus(_, _ string) {}

// NoopProgress returns a Progress that never cancels and discards status.
func NoopProgress() Progress { return noopProgress{} }
