package teximage

import (
	"os"
	"strings"
)

// knownVectorGridNames lists the volume grid names that are treated as
// 4-channel (RGBA) rather than scalar.
var knownVectorGridNames = map[string]bool{
	"color":    true,
	"velocity": true,
}

// probe fills an ImageMetaData for id without decoding pixel data,
// following spec §4.C's five-step algorithm.
func probe(id ImageIdentity, reader ImageReader, volumes VolumeReader, builtins BuiltinCallbacks, colorspace ColorSpace, isovalue float32) (ImageMetaData, error) {
	if id.IsBuiltin() {
		return probeBuiltin(id, builtins)
	}

	if info, err := os.Stat(id.Path); err != nil {
		return ImageMetaData{}, ErrFileMissing
	} else if info.IsDir() {
		return ImageMetaData{}, ErrFileIsDirectory
	}

	if strings.HasSuffix(strings.ToLower(id.Path), ".vdb") {
		return probeVolume(id, volumes, colorspace)
	}

	return probeImage(id, reader, colorspace)
}

func probeBuiltin(id ImageIdentity, builtins BuiltinCallbacks) (ImageMetaData, error) {
	if builtins == nil {
		return ImageMetaData{}, ErrDecoderUnavailable
	}
	m, err := builtins.Info(id.Path, id.BuiltinData)
	if err != nil {
		return ImageMetaData{}, err
	}
	if m.Channels >= 3 {
		m.Channels = 4
	} else if m.Channels <= 0 {
		m.Channels = 1
	}
	if m.IsFloat {
		if m.Channels == 4 {
			m.Kind = PixelF32x4
		} else {
			m.Kind = PixelF32
		}
	} else {
		if m.Channels == 4 {
			m.Kind = PixelU8x4
		} else {
			m.Kind = PixelU8
		}
	}
	return m, nil
}

func probeVolume(id ImageIdentity, volumes VolumeReader, colorspace ColorSpace) (ImageMetaData, error) {
	if volumes == nil {
		return ImageMetaData{}, ErrDecoderUnavailable
	}
	has, err := volumes.HasGrid(id.Path, id.GridName)
	if err != nil {
		return ImageMetaData{}, err
	}
	if !has {
		return ImageMetaData{}, ErrGridMissing
	}
	res, err := volumes.Resolution(id.Path, id.GridName)
	if err != nil {
		return ImageMetaData{}, err
	}
	if res.X <= 0 || res.Y <= 0 || res.Z <= 0 {
		return ImageMetaData{}, ErrZeroDimension
	}

	channels := 1
	kind := PixelF32
	if knownVectorGridNames[id.GridName] {
		channels = 4
		kind = PixelF32x4
	}

	m := ImageMetaData{
		Width: res.X, Height: res.Y, Depth: res.Z,
		Channels: channels,
		Kind:     kind,
		IsFloat:  true,
	}
	applyColorspace(&m, id, colorspace, false)
	return m, nil
}

func probeImage(id ImageIdentity, reader ImageReader, colorspace ColorSpace) (ImageMetaData, error) {
	if reader == nil {
		return ImageMetaData{}, ErrDecoderUnavailable
	}
	spec, err := reader.Open(id.Path)
	if err != nil {
		return ImageMetaData{}, ErrDecoderUnavailable
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return ImageMetaData{}, ErrZeroDimension
	}
	depth := spec.Depth
	if depth <= 0 {
		depth = 1
	}

	channels := spec.Channels
	switch {
	case channels > 4:
		channels = 4
	case channels <= 0:
		channels = 1
	}
	// 2- and 3-channel sources keep their count here and get a 4-wide
	// kind; the pixel pipeline expands them to RGBA.
	wide := channels >= 2

	isHalf := spec.FormatIsHalf
	isFloat := spec.FormatIsFloat || spec.FormatIsHalf
	isUshort := spec.FormatIsUnsignedShort

	kind := pixelKindFor(isHalf, isFloat, isUshort, wide)

	m := ImageMetaData{
		Width: spec.Width, Height: spec.Height, Depth: depth,
		Channels: channels,
		Kind:     kind,
		IsFloat:  isFloat,
		IsHalf:   isHalf,
	}
	applyColorspace(&m, id, colorspace, isHDR(kind))
	return m, nil
}

// pixelKindFor picks a PixelKind from the (is_half, is_float, is_ushort,
// wide) tuple per spec §4.C step 4.
func pixelKindFor(isHalf, isFloat, isUshort, wide bool) PixelKind {
	switch {
	case isHalf && wide:
		return PixelF16x4
	case isHalf:
		return PixelF16
	case isFloat && wide:
		return PixelF32x4
	case isFloat:
		return PixelF32
	case isUshort && wide:
		return PixelU16x4
	case isUshort:
		return PixelU16
	case wide:
		return PixelU8x4
	default:
		return PixelU8
	}
}

func isHDR(kind PixelKind) bool {
	return kind.IsFloat()
}

// applyColorspace runs detect_colorspace (spec §4.C step 5), mutating m
// in place: raw leaves m untouched; sRGB sets CompressAsSRGB and keeps
// the type; anything else sets CompressAsSRGB only for 8-bit inputs and
// promotes 16-bit unsigned kinds to half so that linearization's HDR
// output has somewhere to live.
func applyColorspace(m *ImageMetaData, id ImageIdentity, cs ColorSpace, isHDRInput bool) {
	name := id.Colorspace
	if cs != nil {
		name = cs.DetectKnown(id.Colorspace, "", isHDRInput)
	}
	m.Colorspace = name

	switch strings.ToLower(name) {
	case "raw", "":
		return
	case "srgb":
		m.CompressAsSRGB = true
		return
	default:
		if m.Kind == PixelU8 || m.Kind == PixelU8x4 {
			m.CompressAsSRGB = true
			return
		}
		switch m.Kind {
		case PixelU16:
			m.Kind = PixelF16
			m.IsFloat, m.IsHalf = true, true
		case PixelU16x4:
			m.Kind = PixelF16x4
			m.IsFloat, m.IsHalf = true, true
		}
	}
}
