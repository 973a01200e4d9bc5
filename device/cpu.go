package device

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/teximage"
)

// CPUOptions configures a CPU device.
type CPUOptions struct {
	// TextureLimit caps the largest single dimension the device accepts
	// before the pixel pipeline's downscale path kicks in. Zero means
	// unlimited.
	TextureLimit int
	// HasHalfImages advertises half-precision support; the CPU backend
	// stores half data as raw bytes either way, so this only affects
	// what the probe/manager decide to allocate.
	HasHalfImages bool
	SupportsPaddedTiles bool
}

// allocation is one CPU-resident buffer, addressed by an incrementing id.
type allocation struct {
	name string
	kind teximage.PixelKind
	dims [3]int
	data []byte
}

// CPU is a host-memory reference implementation of the Device
// collaborator: allocations are plain byte slices, useful for testing
// the manager/coordinator/pipeline without a real GPU backend and as
// the fallback when no accelerated device is configured.
type CPU struct {
	opts CPUOptions

	mu    sync.Mutex
	nextID uint64
	allocs map[uint64]*allocation
}

// NewCPU constructs a CPU device.
func NewCPU(opts CPUOptions) *CPU {
	return &CPU{opts: opts, allocs: make(map[uint64]*allocation)}
}

// Info implements teximage.Device.
func (c *CPU) Info() teximage.DeviceInfo {
	return teximage.DeviceInfo{
		Name:                "cpu",
		HasHalfImages:       c.opts.HasHalfImages,
		SupportsPaddedTiles: c.opts.SupportsPaddedTiles,
		TextureLimit:        c.opts.TextureLimit,
	}
}

// Alloc implements teximage.Device.
func (c *CPU) Alloc(name string, kind teximage.PixelKind, dims [3]int) (teximage.DeviceMemory, error) {
	size := dims[0] * dims[1] * dims[2] * kind.Channels() * kind.ElemBytes()
	if size <= 0 {
		return teximage.DeviceMemory{}, teximage.ErrZeroDimension
	}

	id := atomic.AddUint64(&c.nextID, 1)
	a := &allocation{name: name, kind: kind, dims: dims, data: make([]byte, size)}

	c.mu.Lock()
	c.allocs[id] = a
	c.mu.Unlock()

	return teximage.DeviceMemory{Handle: id, Size: uint64(size)}, nil
}

// CopyToDevice implements teximage.Device.
func (c *CPU) CopyToDevice(mem teximage.DeviceMemory, data []byte) error {
	id, ok := mem.Handle.(uint64)
	if !ok {
		return teximage.ErrInvalidHandle
	}
	c.mu.Lock()
	a, ok := c.allocs[id]
	c.mu.Unlock()
	if !ok {
		return teximage.ErrInvalidHandle
	}
	n := copy(a.data, data)
	if n < len(data) {
		return teximage.ErrOutOfMemory
	}
	return nil
}

// Free implements teximage.Device.
func (c *CPU) Free(mem teximage.DeviceMemory) error {
	id, ok := mem.Handle.(uint64)
	if !ok {
		return teximage.ErrInvalidHandle
	}
	c.mu.Lock()
	delete(c.allocs, id)
	c.mu.Unlock()
	return nil
}

// Peek returns the raw bytes stored for mem, for tests and debug tooling.
func (c *CPU) Peek(mem teximage.DeviceMemory) ([]byte, bool) {
	id, ok := mem.Handle.(uint64)
	if !ok {
		return nil, false
	}
	c.mu.Lock()
	a, ok := c.allocs[id]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	return a.data, true
}
