package teximage

// Interpolation selects how the rendering kernels sample a texture.
// The manager only records this mode; sampling itself is a kernel concern.
type Interpolation uint8

const (
	InterpClosest Interpolation = iota
	InterpLinear
	InterpCubic
	InterpSmartCubic
)

func (i Interpolation) String() string {
	switch i {
	case InterpClosest:
		return "closest"
	case InterpLinear:
		return "linear"
	case InterpCubic:
		return "cubic"
	case InterpSmartCubic:
		return "smart_cubic"
	default:
		return "invalid"
	}
}

// Extension selects how out-of-[0,1] texture coordinates are handled.
type Extension uint8

const (
	ExtendRepeat Extension = iota
	ExtendClamp
	ExtendClip
)

func (e Extension) String() string {
	switch e {
	case ExtendRepeat:
		return "repeat"
	case ExtendClamp:
		return "extend"
	case ExtendClip:
		return "clip"
	default:
		return "invalid"
	}
}

// AlphaMode controls how the pixel pipeline treats a decoded alpha
// channel.
type AlphaMode uint8

const (
	// AlphaAuto requests associated (premultiplied) alpha from the
	// reader; this is the default for color textures composited over a
	// background.
	AlphaAuto AlphaMode = iota
	// AlphaIgnore discards the decoded alpha and overwrites it with the
	// storage unit value (opaque).
	AlphaIgnore
	// AlphaChannelPacked treats the four channels as independent data,
	// requesting unassociated alpha.
	AlphaChannelPacked
	// AlphaAssociated requests associated (premultiplied) alpha
	// explicitly, regardless of the Auto heuristic.
	AlphaAssociated
	// AlphaUnassociated requests unassociated alpha explicitly.
	AlphaUnassociated
)

func (a AlphaMode) String() string {
	switch a {
	case AlphaAuto:
		return "auto"
	case AlphaIgnore:
		return "ignore"
	case AlphaChannelPacked:
		return "channel_packed"
	case AlphaAssociated:
		return "associated"
	case AlphaUnassociated:
		return "unassociated"
	default:
		return "invalid"
	}
}

// wantsAssociatedAlpha reports whether the pixel pipeline should request
// premultiplied alpha from the ImageReader for this mode (spec §4.E
// step 1): Auto and Associated do; ChannelPacked, Ignore, and
// Unassociated request unassociated alpha (Ignore doesn't care about
// the source association since it overwrites A, but decoding
// unassociated avoids an unnecessary premultiply/unpremultiply pass).
func (a AlphaMode) wantsAssociatedAlpha() bool {
	return a == AlphaAuto || a == AlphaAssociated
}

// ImageIdentity is the deduplication key: every field participates in
// equality, and two records in the same PixelKind vector never share an
// identity.
type ImageIdentity struct {
	// Path is the source file path. When BuiltinData is set it is an
	// optional name, passed through to the BuiltinCallbacks.
	Path string
	// GridName names a grid within a multi-grid volume file; empty for
	// 2D images and for single-grid volumes.
	GridName string
	// BuiltinData identifies host-provided pixels by pointer identity
	// rather than by path; nil for file-backed images.
	BuiltinData any
	Interpolation Interpolation
	Extension     Extension
	Alpha         AlphaMode
	// Colorspace is an interned/opaque colorspace name as declared by
	// the scene (e.g. "sRGB", "raw", "Linear Rec.709").
	Colorspace string
}

// Equal reports whether two identities refer to the same deduplication
// bucket. BuiltinData is compared by identity (==), matching the spec's
// "compared by identity" rule for host-provided pixel pointers.
func (id ImageIdentity) Equal(other ImageIdentity) bool {
	return id.Path == other.Path &&
		id.GridName == other.GridName &&
		id.BuiltinData == other.BuiltinData &&
		id.Interpolation == other.Interpolation &&
		id.Extension == other.Extension &&
		id.Alpha == other.Alpha &&
		id.Colorspace == other.Colorspace
}

// IsVolume reports whether this identity names a grid within a
// multi-grid volume file.
func (id ImageIdentity) IsVolume() bool {
	return id.GridName != ""
}

// IsBuiltin reports whether this identity refers to host-resident
// pixels rather than a file path.
func (id ImageIdentity) IsBuiltin() bool {
	return id.BuiltinData != nil
}
