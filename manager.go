package teximage

import (
	"fmt"
	"sync"
)

// ManagerOptions configures a Manager. The zero value is usable: its
// HasHalfImages=false downgrades half kinds to float, TexNumMax falls
// back to a generous default, and decode errors are discarded silently.
type ManagerOptions struct {
	// TexNumMax bounds the total live record count summed across every
	// PixelKind vector. Zero selects a default of 4096, matching the
	// renderer's largest historical scene.
	TexNumMax int

	Reader    ImageReader
	Volumes   VolumeReader
	Builtins  BuiltinCallbacks
	Colorspace ColorSpace

	// HasHalfImages should mirror the target Device's capability;
	// AddImage downgrades F16/F16x4 metadata to F32/F32x4 when false.
	HasHalfImages bool

	// OnDecodeError, when set, is invoked with every loader failure that
	// the pixel pipeline otherwise swallows behind a placeholder image
	// (spec's render-path error policy: one bad image never aborts the
	// render).
	OnDecodeError func(id ImageIdentity, err error)
}

func (o ManagerOptions) texNumMax() int {
	if o.TexNumMax > 0 {
		return o.TexNumMax
	}
	return 4096
}

// AddImageOptions carries the per-call parameters of add_image beyond
// the identity itself.
type AddImageOptions struct {
	Animated bool
	Frame    float32
	IsVolume bool
	Isovalue float32
}

// Manager is the Image Cache (spec §4.D): the single-threaded,
// reference-counted, deduplicating front door for every image and
// volume an active scene references. All of its methods are intended
// to run on one goroutine (the scene-description thread); only the
// Coordinator's DeviceUpdate path runs concurrently. DeviceUpdate takes
// the Manager's mutex while it walks the slot table, frees records and
// clears the dirty flag; its loader tasks then work on their own
// records without that lock.
type Manager struct {
	opts ManagerOptions
	mu   sync.Mutex

	slots *slotTable

	animationFrame float32
	needUpdate     bool
}

// NewManager constructs a Manager ready to accept AddImage calls.
func NewManager(opts ManagerOptions) *Manager {
	return &Manager{
		opts:  opts,
		slots: newSlotTable(opts.texNumMax()),
	}
}

// AddImage implements spec §4.D's add_image: probe metadata, downgrade
// half formats the device can't sample, dedupe by identity within the
// resulting PixelKind's vector, and either bump an existing record's
// refcount or allocate a new one.
func (m *Manager) AddImage(id ImageIdentity, opts AddImageOptions) (Handle, ImageMetaData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, err := probe(id, m.opts.Reader, m.opts.Volumes, m.opts.Builtins, m.opts.Colorspace, opts.Isovalue)
	if err != nil {
		return InvalidHandle, ImageMetaData{}, err
	}

	if !m.opts.HasHalfImages {
		meta.Kind = meta.Kind.HalfToFloatVariant()
		meta.IsHalf = false
	}

	if h, rec := m.slots.find(id); rec != nil {
		rec.Users++
		changed := rec.Frame != opts.Frame || rec.Isovalue != opts.Isovalue || !metaEqual(rec.Metadata, meta)
		rec.Frame = opts.Frame
		rec.Isovalue = opts.Isovalue
		if changed {
			rec.Metadata = meta
			rec.NeedLoad = true
			m.needUpdate = true
		}
		return h, rec.Metadata, nil
	}

	rec := &ImageRecord{
		Identity: id,
		Metadata: meta,
		Users:    1,
		NeedLoad: true,
		Animated: opts.Animated,
		Frame:    opts.Frame,
		IsVolume: opts.IsVolume,
		Isovalue: opts.Isovalue,
	}
	h, err := m.slots.allocate(meta.Kind, rec)
	if err != nil {
		Logger().Debug("add_image: slot table at capacity", "path", id.Path)
		return InvalidHandle, ImageMetaData{}, err
	}
	rec.DebugName = debugName(meta.Kind, h)
	m.needUpdate = true
	Logger().Debug("add_image: new record", "path", id.Path, "name", rec.DebugName)
	return h, meta, nil
}

// AddImageUser implements spec §4.D's add_image_user: bump the
// refcount of an already-resident handle.
func (m *Manager) AddImageUser(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.slots.lookup(h)
	if rec == nil {
		return ErrInvalidHandle
	}
	rec.Users++
	return nil
}

// RemoveImage decrements h's refcount; it never frees the slot
// directly — the next DeviceUpdate drops zero-user records.
func (m *Manager) RemoveImage(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.slots.lookup(h)
	if rec == nil {
		return ErrInvalidHandle
	}
	if rec.Users > 0 {
		rec.Users--
	}
	if rec.Users == 0 {
		m.needUpdate = true
	}
	return nil
}

// RemoveImageByIdentity locates the live record matching id across
// every PixelKind vector and delegates to RemoveImage.
func (m *Manager) RemoveImageByIdentity(id ImageIdentity) error {
	m.mu.Lock()
	h, rec := m.slots.find(id)
	m.mu.Unlock()
	if rec == nil {
		return ErrIdentityNotFound
	}
	return m.RemoveImage(h)
}

// TagReload marks the first live record matching id dirty, forcing a
// reload on the next DeviceUpdate even though its identity hasn't changed.
func (m *Manager) TagReload(id ImageIdentity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, rec := m.slots.find(id)
	if rec == nil {
		return ErrIdentityNotFound
	}
	rec.NeedLoad = true
	m.needUpdate = true
	return nil
}

// SetAnimationFrame stores frame if it differs from the current value
// and reports whether any live record is animated, signaling the
// caller that a reload pass may be warranted.
func (m *Manager) SetAnimationFrame(frame float32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == m.animationFrame {
		return false
	}
	m.animationFrame = frame

	hasAnimated := false
	m.slots.forEach(func(_ Handle, r *ImageRecord) bool {
		if r.Animated {
			hasAnimated = true
			return false
		}
		return true
	})
	return hasAnimated
}

// GetImageMetadata returns the metadata currently recorded for h.
func (m *Manager) GetImageMetadata(h Handle) (ImageMetaData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.slots.lookup(h)
	if rec == nil {
		return ImageMetaData{}, ErrInvalidHandle
	}
	return rec.Metadata, nil
}

// ImageMemory implements spec §6's image_memory(handle) -> device_buffer:
// it returns the DeviceBuffer a resident record uploaded, so a renderer
// can bind it for sampling. It returns ErrInvalidHandle for a stale or
// unknown handle and nil (no error) if the record exists but has not yet
// been uploaded by a DeviceUpdate pass.
func (m *Manager) ImageMemory(h Handle) (*DeviceBuffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.slots.lookup(h)
	if rec == nil {
		return nil, ErrInvalidHandle
	}
	return rec.Buffer, nil
}

// NeedUpdate reports whether any AddImage/RemoveImage/TagReload call
// since the last DeviceUpdate dirtied the manager's state.
func (m *Manager) NeedUpdate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.needUpdate
}

// clearNeedUpdate is called by the Coordinator after a DeviceUpdate pass.
func (m *Manager) clearNeedUpdate() {
	m.mu.Lock()
	m.needUpdate = false
	m.mu.Unlock()
}

// CollectStatistics returns the (debug name, device memory size) pair
// for every resident record, used for scene memory reporting.
func (m *Manager) CollectStatistics() []MemoryStat {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats []MemoryStat
	m.slots.forEach(func(_ Handle, r *ImageRecord) bool {
		if r.Buffer != nil {
			stats = append(stats, MemoryStat{Name: r.DebugName, Bytes: r.MemorySize()})
		}
		return true
	})
	return stats
}

// MemoryStat is one entry of CollectStatistics's report.
type MemoryStat struct {
	Name  string
	Bytes uint64
}

func metaEqual(a, b ImageMetaData) bool {
	return a == b
}

// debugName formats the device buffer label per spec §6:
// __tex_image_<type_name>_<flat_slot_zero_padded_3>.
func debugName(kind PixelKind, h Handle) string {
	_, slot := DecodeHandle(h)
	return fmt.Sprintf("__tex_image_%s_%03d", kind.String(), slot)
}
