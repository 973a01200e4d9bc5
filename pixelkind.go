package teximage

import (
	"math"

	"github.com/mrjoshuak/go-openexr/half"
)

// PixelKind is the closed set of eight device pixel layouts the manager
// normalizes every decoded image into.
type PixelKind uint8

// The eight PixelKind values, in the enumeration order the flat handle
// tag bits are defined against (see handle.go).
const (
	PixelF32x4 PixelKind = iota
	PixelU8x4
	PixelF16x4
	PixelF32
	PixelU8
	PixelF16
	PixelU16x4
	PixelU16
)

// pixelKindInfo mirrors the teacher's format.FormatInfo enum-table pattern:
// a single source of truth for per-kind geometry and conversion constants.
type pixelKindInfo struct {
	name        string
	channels    int
	elemBytes   int
	isFloat     bool
	isHalf      bool
	storageUnit float32 // value representing 1.0 in this storage type (unused for float kinds)
}

var pixelKindTable = [8]pixelKindInfo{
	PixelF32x4: {name: "float4", channels: 4, elemBytes: 4, isFloat: true},
	PixelU8x4:  {name: "byte4", channels: 4, elemBytes: 1, storageUnit: 255},
	PixelF16x4: {name: "half4", channels: 4, elemBytes: 2, isFloat: true, isHalf: true},
	PixelF32:   {name: "float", channels: 1, elemBytes: 4, isFloat: true},
	PixelU8:    {name: "byte", channels: 1, elemBytes: 1, storageUnit: 255},
	PixelF16:   {name: "half", channels: 1, elemBytes: 2, isFloat: true, isHalf: true},
	PixelU16x4: {name: "ushort4", channels: 4, elemBytes: 2, storageUnit: 65535},
	PixelU16:   {name: "ushort", channels: 1, elemBytes: 2, storageUnit: 65535},
}

// IsValid reports whether k is one of the eight defined PixelKind values.
func (k PixelKind) IsValid() bool {
	return int(k) < len(pixelKindTable)
}

// String returns the device buffer debug name component for k
// (one of float4, byte4, half4, float, byte, half, ushort4, ushort).
func (k PixelKind) String() string {
	if !k.IsValid() {
		return "invalid"
	}
	return pixelKindTable[k].name
}

// Channels returns 4 for the *x4 kinds and 1 for the scalar kinds.
// PixelKind.channels ∈ {1,4} always — intermediate 2/3-channel data exists
// only inside the pixel pipeline's working buffer.
func (k PixelKind) Channels() int {
	if !k.IsValid() {
		return 0
	}
	return pixelKindTable[k].channels
}

// ElemBytes returns the storage width in bytes of a single channel element.
func (k PixelKind) ElemBytes() int {
	if !k.IsValid() {
		return 0
	}
	return pixelKindTable[k].elemBytes
}

// IsFloat reports whether k stores values as float32 or half (as opposed
// to a quantized integer).
func (k PixelKind) IsFloat() bool {
	return k.IsValid() && pixelKindTable[k].isFloat
}

// IsHalf reports whether k is one of the half-precision kinds.
func (k PixelKind) IsHalf() bool {
	return k.IsValid() && pixelKindTable[k].isHalf
}

// FourWideVariant returns the RGBA (4-channel) counterpart of a scalar
// kind, or k itself if it is already 4-wide. The probe does not call
// it; it picks PixelF32x4 directly for known vector-valued grid names.
func (k PixelKind) FourWideVariant() PixelKind {
	switch k {
	case PixelF32:
		return PixelF32x4
	case PixelU8:
		return PixelU8x4
	case PixelF16:
		return PixelF16x4
	case PixelU16:
		return PixelU16x4
	default:
		return k
	}
}

// ScalarVariant returns the single-channel counterpart of a 4-wide kind,
// or k itself if it is already scalar.
func (k PixelKind) ScalarVariant() PixelKind {
	switch k {
	case PixelF32x4:
		return PixelF32
	case PixelU8x4:
		return PixelU8
	case PixelF16x4:
		return PixelF16
	case PixelU16x4:
		return PixelU16
	default:
		return k
	}
}

// HalfToFloatVariant downgrades a half-precision kind to its float32
// counterpart, used when the target device does not support half
// textures (spec §4.D step 2).
func (k PixelKind) HalfToFloatVariant() PixelKind {
	switch k {
	case PixelF16x4:
		return PixelF32x4
	case PixelF16:
		return PixelF32
	default:
		return k
	}
}

// CastFromFloat quantizes a scene-linear-or-encoded float value into the
// byte representation k uses for one channel.
//
// Rounding rule (spec §4.A): floats are clamped to [0,1] before integer
// quantization and multiplied by the storage maximum (255 or 65535) with
// nearest rounding; half uses IEEE 754 half conversion; float32 passes
// through untouched.
func CastFromFloat(k PixelKind, v float32) []byte {
	switch {
	case k.IsHalf():
		h := half.FromFloat32(v)
		bits := h.Bits()
		return []byte{byte(bits), byte(bits >> 8)}
	case k.IsFloat():
		bits := math.Float32bits(v)
		return []byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)}
	case k.ElemBytes() == 1:
		return []byte{quantizeU8(v)}
	default: // 2-byte integer storage (U16/U16x4)
		q := quantizeU16(v)
		return []byte{byte(q), byte(q >> 8)}
	}
}

// CastToFloat expands one channel's stored bytes for kind k back to a
// float32 in [0,1] (for integer storage) or pass-through (for float/half).
func CastToFloat(k PixelKind, b []byte) float32 {
	switch {
	case k.IsHalf():
		bits := uint16(b[0]) | uint16(b[1])<<8
		return half.FromBits(bits).Float32()
	case k.IsFloat():
		bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		return math.Float32frombits(bits)
	case k.ElemBytes() == 1:
		return float32(b[0]) / 255.0
	default:
		q := uint16(b[0]) | uint16(b[1])<<8
		return float32(q) / 65535.0
	}
}

func quantizeU8(v float32) byte {
	v = clamp01(v)
	return byte(v*255.0 + 0.5)
}

func quantizeU16(v float32) uint16 {
	v = clamp01(v)
	return uint16(v*65535.0 + 0.5)
}

func clamp01(v float32) float32 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 1
	}
	return v
}
