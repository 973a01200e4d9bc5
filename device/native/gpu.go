//go:build !nogpu

// Package native provides a GPU-backed Device collaborator on top of
// gogpu/wgpu's hardware abstraction layer, adapted from the render
// backend's lazy-default-view Texture wrapper: each allocation owns a
// hal.Texture and a mutex-guarded destroyed flag instead of the
// render backend's on-demand default view, since the pixel pipeline
// always uploads the whole buffer up front and never needs sub-views.
package native

import (
	"errors"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/teximage"
)

// ErrTextureDestroyed mirrors the render backend's texture-lifecycle
// error for operations against a freed allocation.
var ErrTextureDestroyed = errors.New("native: texture has been destroyed")

// Options configures a Device.
type Options struct {
	TextureLimit        int
	HasHalfImages       bool
	SupportsPaddedTiles bool
}

// texture is one GPU-resident allocation: a hal.Texture plus the
// bookkeeping the render backend's Texture wrapper uses to guard
// double-destroy.
type texture struct {
	mu        sync.RWMutex
	halTexture hal.Texture
	device    hal.Device
	destroyed bool
	size      uint64
}

// Device is the GPU-backed Device collaborator: allocation, upload,
// and destruction all funnel through the caller-supplied hal.Device,
// matching the render backend's ownership model (gg receives a device,
// it never creates one).
type Device struct {
	provider gpucontext.DeviceProvider
	opts     Options

	mu     sync.Mutex
	nextID uint64
	live   map[uint64]*texture
}

// New wraps provider (typically the host application's shared GPU
// device/queue pair) as a teximage.Device.
func New(provider gpucontext.DeviceProvider, opts Options) *Device {
	return &Device{provider: provider, opts: opts, live: make(map[uint64]*texture)}
}

// Info implements teximage.Device.
func (d *Device) Info() teximage.DeviceInfo {
	return teximage.DeviceInfo{
		Name:                "gpu",
		HasHalfImages:       d.opts.HasHalfImages,
		SupportsPaddedTiles: d.opts.SupportsPaddedTiles,
		TextureLimit:        d.opts.TextureLimit,
	}
}

// Alloc implements teximage.Device: it creates a hal.Texture sized to
// hold dims voxels of kind, in the wgpu format most directly matching
// the PixelKind's channel/element layout.
func (d *Device) Alloc(name string, kind teximage.PixelKind, dims [3]int) (teximage.DeviceMemory, error) {
	halDevice := d.provider.Device().(hal.Device)

	dimension := gputypes.TextureDimension2D
	if dims[2] > 1 {
		dimension = gputypes.TextureDimension3D
	}

	desc := &hal.TextureDescriptor{
		Label: name,
		Size: hal.Extent3D{
			Width:              uint32(dims[0]),
			Height:             uint32(dims[1]),
			DepthOrArrayLayers: uint32(maxInt(dims[2], 1)),
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     dimension,
		Format:        wgpuFormatFor(kind),
		Usage:         gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding,
	}

	halTex, err := halDevice.CreateTexture(desc)
	if err != nil {
		return teximage.DeviceMemory{}, teximage.ErrAllocFailed
	}

	size := uint64(dims[0] * dims[1] * maxInt(dims[2], 1) * kind.Channels() * kind.ElemBytes())
	tex := &texture{halTexture: halTex, device: halDevice, size: size}

	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.live[id] = tex
	d.mu.Unlock()

	return teximage.DeviceMemory{Handle: id, Size: size}, nil
}

// CopyToDevice implements teximage.Device.
func (d *Device) CopyToDevice(mem teximage.DeviceMemory, data []byte) error {
	tex, err := d.lookup(mem)
	if err != nil {
		return err
	}
	tex.mu.RLock()
	defer tex.mu.RUnlock()
	if tex.destroyed {
		return ErrTextureDestroyed
	}
	if err := tex.device.WriteTexture(tex.halTexture, data); err != nil {
		return teximage.ErrOutOfMemory
	}
	return nil
}

// Free implements teximage.Device.
func (d *Device) Free(mem teximage.DeviceMemory) error {
	tex, err := d.lookup(mem)
	if err != nil {
		return err
	}
	tex.mu.Lock()
	if !tex.destroyed {
		tex.halTexture.Destroy()
		tex.destroyed = true
	}
	tex.mu.Unlock()

	id, _ := mem.Handle.(uint64)
	d.mu.Lock()
	delete(d.live, id)
	d.mu.Unlock()
	return nil
}

func (d *Device) lookup(mem teximage.DeviceMemory) (*texture, error) {
	id, ok := mem.Handle.(uint64)
	if !ok {
		return nil, teximage.ErrInvalidHandle
	}
	d.mu.Lock()
	tex, ok := d.live[id]
	d.mu.Unlock()
	if !ok {
		return nil, teximage.ErrInvalidHandle
	}
	return tex, nil
}

// wgpuFormatFor picks the wgpu texture format that stores kind's
// channel/element layout without lossy repacking.
func wgpuFormatFor(kind teximage.PixelKind) gputypes.TextureFormat {
	switch kind {
	case teximage.PixelF32x4:
		return gputypes.TextureFormatRGBA32Float
	case teximage.PixelF32:
		return gputypes.TextureFormatR32Float
	case teximage.PixelU8x4:
		return gputypes.TextureFormatRGBA8Unorm
	case teximage.PixelU8:
		return gputypes.TextureFormatR8Unorm
	case teximage.PixelF16x4:
		return gputypes.TextureFormatRGBA16Float
	case teximage.PixelF16:
		return gputypes.TextureFormatR16Float
	case teximage.PixelU16x4:
		return gputypes.TextureFormatRGBA16Unorm
	case teximage.PixelU16:
		return gputypes.TextureFormatR16Unorm
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
