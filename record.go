package teximage

// DeviceBuffer is the owned device-side allocation for one record's main
// pixel data, plus (for sparse volumes) its companion tile-offset
// buffer. The core treats both as opaque handles obtained from and
// released through the Device collaborator.
type DeviceBuffer struct {
	Main DeviceMemory
	// Info is the sparse tile-offset companion buffer, named
	// "<main_name>_info". Zero value when Grid != GridSparse/GridSparsePadded.
	Info DeviceMemory

	Grid GridKind
	// DenseWidth/Height/Depth record the pre-sparse, pre-downscale
	// dimensions (spec §4.E step 10: "tag dense_{width,height,depth} to
	// the pre-sparse dimensions").
	DenseWidth, DenseHeight, DenseDepth int
}

// ImageRecord is one entry in a Slot Table vector: a fully described,
// possibly-not-yet-loaded image or volume reference.
type ImageRecord struct {
	Identity ImageIdentity
	Metadata ImageMetaData

	Users uint32

	// NeedLoad is set on create, on frame change for animated images,
	// and whenever identity-bearing fields change; cleared only after a
	// successful device upload.
	NeedLoad bool

	Animated bool
	Frame    float32

	IsVolume bool
	Isovalue float32

	// Buffer is nil until the first successful device_update for this
	// record installs one (spec invariant: (>0, false, none) is
	// impossible — a live, loaded record always has a buffer).
	Buffer *DeviceBuffer

	// DebugName is the device buffer label:
	// __tex_image_<type_name>_<flat_slot_zero_padded_3>.
	DebugName string
}

// IsEmpty reports whether this slot holds no record (a free slot
// available for allocate to reuse in place).
func (r *ImageRecord) IsEmpty() bool {
	return r == nil
}

// EligibleForFree reports whether the record's refcount has dropped to
// zero and it is a candidate for eviction on the next device_update.
func (r *ImageRecord) EligibleForFree() bool {
	return r.Users == 0
}

// EligibleForLoad reports whether the record is dirty and should be
// (re)loaded by the next device_update pass.
func (r *ImageRecord) EligibleForLoad() bool {
	return r.Users > 0 && r.NeedLoad
}

// IsResident reports whether the record is loaded and valid.
func (r *ImageRecord) IsResident() bool {
	return r.Users > 0 && !r.NeedLoad && r.Buffer != nil
}

// MemorySize returns the record's device-side footprint in bytes, or 0
// if it has not been uploaded. Used by collect_statistics.
func (r *ImageRecord) MemorySize() uint64 {
	if r.Buffer == nil {
		return 0
	}
	return r.Buffer.Main.Size + r.Buffer.Info.Size
}
