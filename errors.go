package teximage

import "errors"

// Sentinel errors for the probe and cache failure kinds listed in
// spec.md §7. Loader failures (DecodeFailed, AllocFailed,
// OutOfMemory) never propagate to the caller of add_image — they
// result in a magenta placeholder and a record marked loaded — but are
// still defined here so internal code and the OnDecodeError diagnostics
// hook can use errors.Is consistently.
var (
	// ErrIdentityNotFound is returned by lookups against a stale or
	// unknown handle/identity.
	ErrIdentityNotFound = errors.New("teximage: identity not found")

	// ErrCapExceeded is returned by AddImage when the total live record
	// count across every PixelKind vector has reached TexNumMax and no
	// empty slot is available.
	ErrCapExceeded = errors.New("teximage: slot table at capacity")

	// ErrFileMissing is a probe failure: the source path does not exist.
	ErrFileMissing = errors.New("teximage: file missing")

	// ErrFileIsDirectory is a probe failure: the source path is a directory.
	ErrFileIsDirectory = errors.New("teximage: path is a directory")

	// ErrDecoderUnavailable is a probe failure: no ImageReader could
	// open the file's format.
	ErrDecoderUnavailable = errors.New("teximage: no decoder available for file")

	// ErrGridMissing is a probe failure: the named grid does not exist
	// in the volume file.
	ErrGridMissing = errors.New("teximage: grid not found in volume file")

	// ErrDecodeFailed is a loader failure: the pipeline installs a
	// placeholder and marks the record loaded; this error is only
	// surfaced via ManagerOptions.OnDecodeError.
	ErrDecodeFailed = errors.New("teximage: decode failed")

	// ErrAllocFailed is a loader failure: device buffer allocation failed.
	ErrAllocFailed = errors.New("teximage: device allocation failed")

	// ErrOutOfMemory is a loader failure: the data copied to a device
	// buffer does not fit its allocation, or the device upload failed.
	ErrOutOfMemory = errors.New("teximage: out of memory")

	// ErrInvalidHandle is returned by operations given a stale or
	// out-of-range handle.
	ErrInvalidHandle = errors.New("teximage: invalid handle")

	// ErrZeroDimension is returned by the probe when a file reports a
	// zero width or height or a volume grid a zero resolution on any
	// axis, and by the CPU device's Alloc for a zero dimension.
	ErrZeroDimension = errors.New("teximage: zero-sized image dimension")
)
