package teximage

import (
	"context"
	"sync"
)

// CoordinatorOptions configures a Coordinator.
type CoordinatorOptions struct {
	// WorkerCount sizes the internal worker pool used by DeviceUpdate.
	// Zero selects WorkerPool's own default (GOMAXPROCS).
	WorkerCount int

	Reader     ImageReader
	Colorspace ColorSpace

	// ExternalTextures, when set, makes DeviceUpdate bypass the pixel
	// pipeline for every non-builtin record and resolve it through an
	// external mip-mapped texture cache instead (spec §4.G's external
	// texture system path).
	ExternalTextures ExternalTextureSystem
}

// ExternalTextureSystem is the collaborator fronting an on-disk
// mip-mapped texture cache (the renderer's ".tx" path). When configured,
// the Coordinator never allocates an owned device buffer for the
// records it resolves through it.
type ExternalTextureSystem interface {
	// Resolve returns an opaque handle for path, generating a mip-map
	// file via an auto-converter if one does not already exist for the
	// given extension mode and colorspace.
	Resolve(path string, extension Extension, colorspace string) (any, error)
}

// externalTextureBinding records the parallel, flat-slot-indexed table
// the external path uses instead of a DeviceBuffer.
type externalTextureBinding struct {
	Handle        any
	Interpolation Interpolation
	Extension     Extension
	Linear        bool
}

// Coordinator is the Device Upload Coordinator (spec §4.G): it owns the
// single device mutex guarding every allocation, copy, and destruction
// against a Device, and schedules loader tasks across a Pool.
type Coordinator struct {
	device Device
	opts   CoordinatorOptions

	deviceMu sync.Mutex

	pool Pool

	externalMu sync.Mutex
	external   map[Handle]externalTextureBinding
}

// NewCoordinator constructs a Coordinator targeting dev.
func NewCoordinator(dev Device, opts CoordinatorOptions) *Coordinator {
	return &Coordinator{
		device:   dev,
		opts:     opts,
		pool:     NewWorkerPool(opts.WorkerCount),
		external: make(map[Handle]externalTextureBinding),
	}
}

// DeviceUpdate implements spec §4.G's device_update: if the manager has
// nothing dirty, return immediately; otherwise free zero-user records,
// enqueue a loader for every dirty live one, run the pool to
// completion, and clear the manager's dirty flag.
func (c *Coordinator) DeviceUpdate(m *Manager, progress Progress) error {
	if progress == nil {
		progress = NoopProgress()
	}
	if !m.NeedUpdate() {
		return nil
	}

	m.mu.Lock()
	type job struct {
		handle Handle
		rec    *ImageRecord
	}
	var toFree []job
	var toLoad []job
	m.slots.forEach(func(h Handle, r *ImageRecord) bool {
		if r.EligibleForFree() {
			toFree = append(toFree, job{h, r})
		} else if r.EligibleForLoad() {
			toLoad = append(toLoad, job{h, r})
		}
		return true
	})
	m.mu.Unlock()

	Logger().Debug("device_update: pass starting", "to_free", len(toFree), "to_load", len(toLoad))

	for _, j := range toFree {
		Logger().Debug("device_update: freeing zero-user record", "name", j.rec.DebugName)
		c.freeRecord(j.rec)
		m.mu.Lock()
		m.slots.free(j.handle)
		m.mu.Unlock()
	}

	var firstErr error
	var errMu sync.Mutex
	for _, j := range toLoad {
		j := j
		c.pool.Push(func(ctx context.Context) error {
			if progress.GetCancel() {
				return nil
			}
			progress.SetStatus("loading", j.rec.Identity.Path)
			Logger().Debug("device_update: loading dirty record", "path", j.rec.Identity.Path, "name", j.rec.DebugName)
			if err := c.loadRecord(j.handle, j.rec, m.opts.OnDecodeError); err != nil {
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return err
			}
			return nil
		})
	}
	if err := c.pool.WaitWork(context.Background()); err != nil && firstErr == nil {
		firstErr = err
	}

	m.clearNeedUpdate()
	Logger().Info("device_update: pass complete", "freed", len(toFree), "loaded", len(toLoad))
	return firstErr
}

// DeviceUpdateSlot implements device_update_slot: the same load-or-free
// decision scoped to a single record, executed synchronously without
// the pool.
func (c *Coordinator) DeviceUpdateSlot(m *Manager, h Handle) error {
	m.mu.Lock()
	rec := m.slots.lookup(h)
	m.mu.Unlock()
	if rec == nil {
		return ErrInvalidHandle
	}

	if rec.EligibleForFree() {
		c.freeRecord(rec)
		m.mu.Lock()
		m.slots.free(h)
		m.mu.Unlock()
		return nil
	}
	if rec.EligibleForLoad() {
		return c.loadRecord(h, rec, m.opts.OnDecodeError)
	}
	return nil
}

// DeviceLoadBuiltin enqueues only records whose identity carries
// builtin data, for the case where host-resident pixels must be
// consumed before the host frees them.
func (c *Coordinator) DeviceLoadBuiltin(m *Manager, builtins BuiltinCallbacks) error {
	m.mu.Lock()
	type job struct {
		handle Handle
		rec    *ImageRecord
	}
	var jobs []job
	m.slots.forEach(func(h Handle, r *ImageRecord) bool {
		if r.Identity.IsBuiltin() && r.EligibleForLoad() {
			jobs = append(jobs, job{h, r})
		}
		return true
	})
	m.mu.Unlock()

	for _, j := range jobs {
		if err := c.loadBuiltinRecord(j.rec, builtins); err != nil {
			return err
		}
	}
	return nil
}

// DeviceFreeBuiltin implements spec §6's device_free_builtin(device): it
// releases the device-side buffer of every resident builtin-backed record,
// for the case where the host is about to free the pixel buffers it
// handed the Coordinator through BuiltinCallbacks and needs the device
// copies torn down first. Freed records are left in place with NeedLoad
// set, so a later DeviceLoadBuiltin call can bring them back.
func (c *Coordinator) DeviceFreeBuiltin(m *Manager) error {
	m.mu.Lock()
	type job struct {
		handle Handle
		rec    *ImageRecord
	}
	var jobs []job
	m.slots.forEach(func(h Handle, r *ImageRecord) bool {
		if r.Identity.IsBuiltin() && r.Buffer != nil {
			jobs = append(jobs, job{h, r})
		}
		return true
	})
	m.mu.Unlock()

	for _, j := range jobs {
		c.freeRecord(j.rec)
		j.rec.NeedLoad = true
	}
	return nil
}

// DeviceFree implements spec §6's device_free(device): it releases every
// resident record's device buffer regardless of user count, for full
// teardown (scene shutdown or device loss). It leaves the slot table and
// every record's identity/metadata intact, with NeedLoad set, so a fresh
// DeviceUpdate against a new device can repopulate them.
func (c *Coordinator) DeviceFree(m *Manager) error {
	m.mu.Lock()
	type job struct {
		handle Handle
		rec    *ImageRecord
	}
	var jobs []job
	m.slots.forEach(func(h Handle, r *ImageRecord) bool {
		if r.Buffer != nil {
			jobs = append(jobs, job{h, r})
		}
		return true
	})
	m.mu.Unlock()

	for _, j := range jobs {
		c.freeRecord(j.rec)
		j.rec.NeedLoad = true
	}

	m.mu.Lock()
	m.needUpdate = true
	m.mu.Unlock()
	return nil
}

func (c *Coordinator) loadRecord(h Handle, rec *ImageRecord, onDecodeError func(ImageIdentity, error)) error {
	if c.opts.ExternalTextures != nil && !rec.Identity.IsBuiltin() && !rec.IsVolume {
		return c.loadExternal(h, rec)
	}

	var reportErr func(error)
	if onDecodeError != nil {
		reportErr = func(err error) { onDecodeError(rec.Identity, err) }
	}

	// Decoding and normalization run on this task's local buffers with
	// no lock held (spec §5: decoding is not serialized); only the
	// final alloc/copy inside runPixelPipeline takes deviceMu, via
	// pipelineInputs.deviceMu.
	buf, err := runPixelPipeline(pipelineInputs{
		rec:           rec,
		reader:        c.opts.Reader,
		colorspace:    c.opts.Colorspace,
		device:        c.device,
		deviceInfo:    c.device.Info(),
		deviceMu:      &c.deviceMu,
		onDecodeError: reportErr,
	})
	if err != nil {
		return err
	}
	rec.Buffer = buf
	rec.NeedLoad = false
	return nil
}

func (c *Coordinator) loadBuiltinRecord(rec *ImageRecord, builtins BuiltinCallbacks) error {
	if builtins == nil {
		return ErrDecoderUnavailable
	}
	kind := rec.Metadata.Kind
	n := rec.Metadata.Width * rec.Metadata.Height * rec.Metadata.Depth * kind.Channels()
	buf := make([]float32, n)
	if _, err := builtins.PixelsF32(rec.Identity.Path, rec.Identity.BuiltinData, 0, buf, rec.Identity.Alpha.wantsAssociatedAlpha(), false); err != nil {
		return err
	}
	devBuf, err := finalizeDeviceBuffer(pipelineInputs{rec: rec, device: c.device, deviceMu: &c.deviceMu}, buf, rec.Metadata.Width, rec.Metadata.Height, rec.Metadata.Depth, rec.Metadata.Width, rec.Metadata.Height, rec.Metadata.Depth, GridDense, nil)
	if err != nil {
		return err
	}
	rec.Buffer = devBuf
	rec.NeedLoad = false
	return nil
}

func (c *Coordinator) loadExternal(h Handle, rec *ImageRecord) error {
	handle, err := c.opts.ExternalTextures.Resolve(rec.Identity.Path, rec.Identity.Extension, rec.Metadata.Colorspace)
	if err != nil {
		return err
	}
	c.externalMu.Lock()
	c.external[h] = externalTextureBinding{
		Handle:        handle,
		Interpolation: rec.Identity.Interpolation,
		Extension:     rec.Identity.Extension,
		Linear:        !rec.Metadata.CompressAsSRGB,
	}
	c.externalMu.Unlock()
	rec.NeedLoad = false
	return nil
}

func (c *Coordinator) freeRecord(rec *ImageRecord) {
	c.deviceMu.Lock()
	defer c.deviceMu.Unlock()

	if rec.Buffer == nil {
		return
	}
	c.device.Free(rec.Buffer.Main)
	if rec.Buffer.Info.Handle != nil {
		c.device.Free(rec.Buffer.Info)
	}
	rec.Buffer = nil
}
